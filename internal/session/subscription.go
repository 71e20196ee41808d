package session

import "sync"

// Subscription signals view changes on C until Close.
type Subscription struct {
	C <-chan struct{}

	ch   chan struct{}
	c    *Controller
	once sync.Once
}

// Subscribe returns a handle notified whenever the displayed list, the peer or
// the connection changes. Notifications coalesce; read Messages for the state.
func (c *Controller) Subscribe() *Subscription {
	ch := make(chan struct{}, 1)
	s := &Subscription{C: ch, ch: ch, c: c}
	c.subMu.Lock()
	c.subs[s] = struct{}{}
	c.subMu.Unlock()
	return s
}

// Close stops notifications. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.c.subMu.Lock()
		delete(s.c.subs, s)
		s.c.subMu.Unlock()
	})
}

func (c *Controller) notify() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for s := range c.subs {
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
}
