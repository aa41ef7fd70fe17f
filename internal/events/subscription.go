package events

import (
	"sync"

	"go.uber.org/zap"
)

// Handler observes events delivered to a subscription.
type Handler func(Event)

// Subscription delivers events for one topic to one handler, in emit order.
type Subscription struct {
	bus     *Bus
	topic   Topic
	handler Handler

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
	done   chan struct{}
}

func newSubscription(b *Bus, topic Topic, handler Handler) *Subscription {
	s := &Subscription{
		bus:     b,
		topic:   topic,
		handler: handler,
		done:    make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Topic returns the topic this subscription listens to.
func (s *Subscription) Topic() Topic {
	return s.topic
}

func (s *Subscription) push(e Event) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, e)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *Subscription) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		e := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.deliver(e)
	}
}

func (s *Subscription) deliver(e Event) {
	defer func() {
		if r := recover(); r != nil {
			s.bus.logger.Error("event handler panicked",
				zap.String("event", e.Name),
				zap.String("topic", string(s.topic)),
				zap.Any("panic", r))
		}
	}()
	s.handler(e)
}

// Close stops delivery and waits for an in-flight handler to return.
// Queued events that were not yet delivered are dropped.
func (s *Subscription) Close() {
	s.bus.remove(s)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.queue = nil
	s.cond.Broadcast()
	s.mu.Unlock()
	<-s.done
}
