package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Event is a single entry in the game log.
type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Topic returns the topic the event is published on.
func (e Event) Topic() Topic {
	if i := strings.IndexByte(e.Name, '.'); i > 0 {
		return Topic(e.Name[:i])
	}
	return Topic(e.Name)
}

// Sink persists events outside the process. The Postgres backend implements it.
type Sink interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error
}

// Subscriber is a channel that receives every event, used by stream clients.
type Subscriber chan Event

// Bus is the game's event bus and append-only log. One Bus is constructed per
// session and passed to every service that emits or observes events.
type Bus struct {
	logger    *zap.Logger
	history   *gameLog
	sessionID string
	total     atomic.Int64

	mu       sync.RWMutex
	subs     map[*Subscription]struct{}
	channels map[Subscriber]struct{}

	sinkMu          sync.RWMutex
	sink            Sink
	sinkErrorLogged bool
}

// NewBus creates a bus whose log keeps the last logSize events.
func NewBus(logger *zap.Logger, logSize int) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger:   logger,
		history:  newGameLog(logSize),
		subs:     make(map[*Subscription]struct{}),
		channels: make(map[Subscriber]struct{}),
	}
}

// SetSink sets the persistent sink and the session id stored with each row.
func (b *Bus) SetSink(sink Sink, sessionID string) {
	b.sinkMu.Lock()
	b.sink = sink
	b.sessionID = sessionID
	b.sinkErrorLogged = false
	b.sinkMu.Unlock()
}

// Emit validates, records and publishes an event.
func (b *Bus) Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	b.history.append(e)
	b.total.Add(1)
	b.log(e)
	b.persist(ts, e)
	b.publish(e)

	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

func (b *Bus) log(e Event) {
	fields := make([]zap.Field, 0, len(e.Fields)+1)
	fields = append(fields, zap.String("event", e.Name))
	for k, v := range e.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	msg := e.Message
	if msg == "" {
		msg = e.Name
	}
	switch e.Level {
	case "error":
		b.logger.Error(msg, fields...)
	case "warning", "warn":
		b.logger.Warn(msg, fields...)
	case "debug":
		b.logger.Debug(msg, fields...)
	default:
		b.logger.Info(msg, fields...)
	}
}

func (b *Bus) persist(ts time.Time, e Event) {
	b.sinkMu.RLock()
	sink := b.sink
	sessionID := b.sessionID
	errorLogged := b.sinkErrorLogged
	b.sinkMu.RUnlock()

	if sink == nil {
		return
	}
	if err := sink.Append(ts, e.Level, e.Name, e.Message, e.Fields, sessionID); err != nil {
		if errorLogged {
			return
		}
		b.sinkMu.Lock()
		first := !b.sinkErrorLogged
		b.sinkErrorLogged = true
		b.sinkMu.Unlock()
		if first {
			// Added straight to the log; going through Emit would recurse into the failing sink.
			b.history.append(Event{
				Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
				Level:     "error",
				Name:      "system.error",
				Message:   "event sink append failed",
				Fields:    map[string]interface{}{"error": err.Error()},
			})
			b.logger.Error("event sink append failed", zap.Error(err))
		}
	}
}

func (b *Bus) publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	topic := e.Topic()
	for sub := range b.subs {
		if sub.topic == TopicAll || sub.topic == topic {
			sub.push(e)
		}
	}
	for ch := range b.channels {
		select {
		case ch <- e:
		default:
			// Buffer full; stream clients resync from /state.
		}
	}
}

// Subscribe registers a handler for one topic (TopicAll for every event).
// Each subscription has its own delivery goroutine, so a slow or panicking
// handler does not affect other observers.
func (b *Bus) Subscribe(topic Topic, handler Handler) *Subscription {
	sub := newSubscription(b, topic, handler)
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	go sub.run()
	return sub
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// SubscribeChan adds a channel subscriber. Events are dropped for a full channel.
func (b *Bus) SubscribeChan() Subscriber {
	ch := make(Subscriber, 64)
	b.mu.Lock()
	b.channels[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel subscriber and closes it.
func (b *Bus) Unsubscribe(ch Subscriber) {
	b.mu.Lock()
	_, ok := b.channels[ch]
	delete(b.channels, ch)
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Close stops every subscription and closes every channel subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	for ch := range b.channels {
		close(ch)
	}
	b.channels = make(map[Subscriber]struct{})
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// SubscriberCount returns the number of handler and channel subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs) + len(b.channels)
}

// Snapshot returns the retained game log.
func (b *Bus) Snapshot() []Event {
	return b.history.last(0)
}

// RecentEvents returns the last n events; n <= 0 returns all retained events.
func (b *Bus) RecentEvents(n int) []Event {
	return b.history.last(n)
}

// TotalCount returns the number of events emitted since the bus was created.
func (b *Bus) TotalCount() int64 {
	return b.total.Load()
}

// Restore appends previously persisted events to the log without publishing them.
func (b *Bus) Restore(evts []Event) {
	b.history.append(evts...)
}

// Clear resets the log. Used for testing.
func (b *Bus) Clear() {
	b.history.reset()
}
