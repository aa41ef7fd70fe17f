package events

import "sync"

// gameLog retains the most recent events of a session, oldest first.
type gameLog struct {
	mu    sync.RWMutex
	ring  []Event
	start int
	n     int
}

func newGameLog(capacity int) *gameLog {
	if capacity <= 0 {
		capacity = 1
	}
	return &gameLog{ring: make([]Event, capacity)}
}

// append drops the oldest entry once the log is at capacity.
func (l *gameLog) append(evts ...Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range evts {
		if l.n < len(l.ring) {
			l.ring[(l.start+l.n)%len(l.ring)] = e
			l.n++
			continue
		}
		l.ring[l.start] = e
		l.start = (l.start + 1) % len(l.ring)
	}
}

// last returns up to n of the newest entries in arrival order. n <= 0
// returns everything retained.
func (l *gameLog) last(n int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > l.n {
		n = l.n
	}
	out := make([]Event, n)
	first := l.start + l.n - n
	for i := range out {
		out[i] = l.ring[(first+i)%len(l.ring)]
	}
	return out
}

func (l *gameLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	clear(l.ring)
	l.start, l.n = 0, 0
}
