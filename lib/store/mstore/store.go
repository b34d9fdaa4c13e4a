package mstore

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sealkv/sealkv/lib/store"
)

type storeImpl struct {
	data *xsync.MapOf[string, store.Value]

	// txMu serializes transactions so a snapshot never observes half a
	// commit; single-key reads bypass it entirely
	txMu sync.Mutex

	watchMu  sync.Mutex
	watchers map[uint64]chan struct{}
	watchSeq uint64

	closed atomic.Bool
}

// NewMemoryStore creates a new in-memory durable store. State does not
// survive the process; this backend is intended for tests and for callers
// that only need the caching and encryption semantics.
func NewMemoryStore() store.IDurableStore {
	return &storeImpl{
		data:     xsync.NewMapOf[string, store.Value](),
		watchers: map[uint64]chan struct{}{},
	}
}

// notify signals all watchers that a transaction committed. Sends are
// non-blocking: each watcher channel has capacity one, so back-to-back
// commits coalesce into a single pending signal.
func (s *storeImpl) notify() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(key string) (store.Value, bool, error) {
	if s.closed.Load() {
		return store.Value{}, false, store.NewError(store.RetCClosed, "store is closed")
	}
	v, ok := s.data.Load(key)
	return v, ok, nil
}

func (s *storeImpl) Snapshot() (map[string]store.Value, error) {
	if s.closed.Load() {
		return nil, store.NewError(store.RetCClosed, "store is closed")
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	out := make(map[string]store.Value, s.data.Size())
	s.data.Range(func(key string, value store.Value) bool {
		out[key] = value
		return true
	})
	return out, nil
}

func (s *storeImpl) Apply(tx store.Tx) error {
	if s.closed.Load() {
		return store.NewError(store.RetCClosed, "store is closed")
	}
	if tx.Empty() {
		return nil
	}

	s.txMu.Lock()
	for k, v := range tx.Put {
		s.data.Store(k, v)
	}
	for _, k := range tx.Delete {
		s.data.Delete(k)
	}
	s.txMu.Unlock()

	s.notify()
	return nil
}

func (s *storeImpl) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.watchMu.Lock()
	s.watchSeq++
	id := s.watchSeq
	s.watchers[id] = ch
	s.watchMu.Unlock()

	cancel := func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		if _, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(ch)
		}
	}

	return ch, cancel
}

func (s *storeImpl) Clear() error {
	if s.closed.Load() {
		return store.NewError(store.RetCClosed, "store is closed")
	}

	s.txMu.Lock()
	s.data.Clear()
	s.txMu.Unlock()

	s.notify()
	return nil
}

func (s *storeImpl) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
	}
	return nil
}
