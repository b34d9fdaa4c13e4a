package vault

import (
	"reflect"
	"sync"
)

// --------------------------------------------------------------------------
// Watch Subscriptions
// --------------------------------------------------------------------------

// subscriber is one Watch channel. Emissions are de-duplicated against the
// last delivered value; the channel holds only the most recent value so a
// slow consumer never blocks the vault.
type subscriber struct {
	ch   chan any
	mu   sync.Mutex
	last any
	seen bool
}

func (s *subscriber) emit(val any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen && reflect.DeepEqual(s.last, val) {
		return
	}
	s.last, s.seen = val, true

	// replace a pending value instead of blocking
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- val:
	default:
	}
}

// subscriptions is the per-cache-key subscriber registry.
type subscriptions struct {
	mu     sync.Mutex
	byKey  map[string]map[uint64]*subscriber
	seq    uint64
	closed bool
}

func newSubscriptions() *subscriptions {
	return &subscriptions{byKey: map[string]map[uint64]*subscriber{}}
}

// add registers a subscriber for ck. Returns nil once the registry is
// closed. The cancel func is idempotent and closes the channel.
func (s *subscriptions) add(ck string) (*subscriber, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, func() {}
	}

	sub := &subscriber{ch: make(chan any, 1)}
	s.seq++
	id := s.seq

	if s.byKey[ck] == nil {
		s.byKey[ck] = map[uint64]*subscriber{}
	}
	s.byKey[ck][id] = sub

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if subs, ok := s.byKey[ck]; ok {
			if _, ok := subs[id]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(s.byKey, ck)
				}
				close(sub.ch)
			}
		}
	}
	return sub, cancel
}

// active reports whether anyone watches ck. Lets the publisher skip the
// (possibly decrypting) value resolution when nobody listens.
func (s *subscriptions) active(ck string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey[ck]) > 0
}

func (s *subscriptions) publish(ck string, val any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.byKey[ck] {
		sub.emit(val)
	}
}

// publishAll notifies every subscriber of every key. Used by ClearAll.
func (s *subscriptions) publishAll(val any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, subs := range s.byKey {
		for _, sub := range subs {
			sub.emit(val)
		}
	}
}

func (s *subscriptions) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for ck, subs := range s.byKey {
		for id, sub := range subs {
			delete(subs, id)
			close(sub.ch)
		}
		delete(s.byKey, ck)
	}
}
