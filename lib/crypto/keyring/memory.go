package keyring

import (
	"crypto/rand"
	"io"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// entry is one stored key with its access policy
type entry struct {
	key             []byte
	requireUnlocked bool
	invalidated     bool
}

// MemoryKeyring is an in-memory IKeyring. It additionally exposes the
// provider failure modes as test hooks: the whole ring can be "locked" like
// a locked device, and individual keys can be invalidated the way a
// hardware keystore invalidates them when the device credential changes.
//
// Keys tagged requireUnlocked are inaccessible while the ring is locked;
// untagged keys stay accessible, matching platform keystore behavior.
type MemoryKeyring struct {
	keys   *xsync.MapOf[string, entry]
	locked atomic.Bool
}

// NewMemoryKeyring creates an empty, unlocked in-memory keyring.
func NewMemoryKeyring() *MemoryKeyring {
	return &MemoryKeyring{
		keys: xsync.NewMapOf[string, entry](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see keyring.IKeyring)
// --------------------------------------------------------------------------

func (r *MemoryKeyring) Fetch(alias string) ([]byte, error) {
	e, ok := r.keys.Load(alias)
	if !ok {
		return nil, ErrKeyNotFound
	}
	if e.invalidated {
		return nil, ErrKeyInvalidated
	}
	if e.requireUnlocked && r.locked.Load() {
		return nil, ErrLocked
	}

	key := make([]byte, len(e.key))
	copy(key, e.key)
	return key, nil
}

func (r *MemoryKeyring) Generate(alias string, size int, requireUnlocked bool) ([]byte, error) {
	if requireUnlocked && r.locked.Load() {
		return nil, ErrLocked
	}

	key := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}

	r.keys.Store(alias, entry{key: key, requireUnlocked: requireUnlocked})

	out := make([]byte, len(key))
	copy(out, key)
	return out, nil
}

func (r *MemoryKeyring) Delete(alias string) error {
	r.keys.Delete(alias)
	return nil
}

func (r *MemoryKeyring) SetAccessibility(alias string, requireUnlocked bool) error {
	var err error
	r.keys.Compute(alias, func(e entry, loaded bool) (entry, bool) {
		if !loaded {
			err = ErrKeyNotFound
			return e, true
		}
		if e.invalidated {
			err = ErrKeyInvalidated
			return e, false
		}
		e.requireUnlocked = requireUnlocked
		return e, false
	})
	return err
}

// --------------------------------------------------------------------------
// Provider Simulation Hooks
// --------------------------------------------------------------------------

// Lock simulates the device entering the locked state.
func (r *MemoryKeyring) Lock() {
	r.locked.Store(true)
}

// Unlock simulates the device being unlocked.
func (r *MemoryKeyring) Unlock() {
	r.locked.Store(false)
}

// Invalidate simulates the provider permanently invalidating the key for
// alias. The key material is discarded; only the invalidation marker stays.
func (r *MemoryKeyring) Invalidate(alias string) {
	r.keys.Compute(alias, func(e entry, loaded bool) (entry, bool) {
		if !loaded {
			return e, true
		}
		return entry{invalidated: true, requireUnlocked: e.requireUnlocked}, false
	})
}
