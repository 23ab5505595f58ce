package monitoring

import "sync"

// Feed fans request events out to live subscribers (the dashboard
// WebSocket). Slow subscribers lose events rather than stalling requests.
type Feed struct {
	mu   sync.Mutex
	subs map[chan RequestEvent]struct{}
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[chan RequestEvent]struct{})}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called when the subscriber goes away.
func (f *Feed) Subscribe() (<-chan RequestEvent, func()) {
	ch := make(chan RequestEvent, 64)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber without blocking.
func (f *Feed) Publish(ev RequestEvent) {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
