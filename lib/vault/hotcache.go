package vault

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Hot Cache
// --------------------------------------------------------------------------

// hotCache is the in-memory working set the read path resolves against.
// All access is lock-free; consistency with the durable store is the
// refresher's job, not the cache's.
type hotCache struct {
	data *xsync.MapOf[string, any]
}

func newHotCache() *hotCache {
	return &hotCache{data: xsync.NewMapOf[string, any]()}
}

func (c *hotCache) get(ck string) (any, bool) {
	return c.data.Load(ck)
}

func (c *hotCache) put(ck string, v any) {
	c.data.Store(ck, v)
}

func (c *hotCache) remove(ck string) {
	c.data.Delete(ck)
}

func (c *hotCache) clear() {
	c.data.Clear()
}

func (c *hotCache) rangeAll(f func(ck string, v any) bool) {
	c.data.Range(f)
}

// swapPlainToCipher installs ct at ck only if the slot still holds the
// exact plaintext captured at enqueue time. A mismatch means a newer write
// landed in the meantime and must not be clobbered by older ciphertext.
func (c *hotCache) swapPlainToCipher(ck string, plain plainText, ct cipherText) bool {
	swapped := false
	c.data.Compute(ck, func(old any, loaded bool) (any, bool) {
		if loaded && old == plain {
			swapped = true
			return ct, false
		}
		if !loaded {
			// slot was deleted while the batch was in flight
			return nil, true
		}
		return old, false
	})
	return swapped
}

// installUnlessDirty stores v at ck unless the key is dirty, and reports
// whether the slot changed. The dirty check runs inside the per-entry
// compute, and writers mark dirty before they update the cache, so a
// racing write either makes this a no-op or overwrites it afterwards -
// stale store state can never shadow an optimistic write.
func (c *hotCache) installUnlessDirty(ck string, v any, isDirty func(string) bool) bool {
	changed := false
	c.data.Compute(ck, func(old any, loaded bool) (any, bool) {
		if isDirty(ck) {
			return old, !loaded
		}
		if !loaded || old != v {
			changed = true
			return v, false
		}
		return old, false
	})
	return changed
}

// removeUnlessDirty evicts ck unless the key is dirty, and reports whether
// an entry was removed. Same race argument as installUnlessDirty.
func (c *hotCache) removeUnlessDirty(ck string, isDirty func(string) bool) bool {
	removed := false
	c.data.Compute(ck, func(old any, loaded bool) (any, bool) {
		if isDirty(ck) {
			return old, !loaded
		}
		removed = loaded
		return nil, true
	})
	return removed
}

// upgradeCipherToPlain caches the decryption result at ck, but only while
// the slot still holds the ciphertext that was decrypted. Used by the read
// path under PolicyPlainText.
func (c *hotCache) upgradeCipherToPlain(ck string, ct cipherText, plain plainText) {
	c.data.Compute(ck, func(old any, loaded bool) (any, bool) {
		if loaded && old == ct {
			return plain, false
		}
		if !loaded {
			return nil, true
		}
		return old, false
	})
}

// --------------------------------------------------------------------------
// Dirty-Key Tracker
// --------------------------------------------------------------------------

// dirtySet records cache keys whose authoritative value lives in the hot
// cache rather than the durable store. Entries are added when a write is
// enqueued and never removed during normal operation: clearing a dirty flag
// after a flush would race with the refresher and briefly resurrect stale
// store state. The set only resets on ClearAll.
type dirtySet struct {
	keys *xsync.MapOf[string, struct{}]
}

func newDirtySet() *dirtySet {
	return &dirtySet{keys: xsync.NewMapOf[string, struct{}]()}
}

func (d *dirtySet) mark(ck string) {
	d.keys.Store(ck, struct{}{})
}

func (d *dirtySet) contains(ck string) bool {
	_, ok := d.keys.Load(ck)
	return ok
}

// snapshot returns the current membership as a plain set. The refresher
// consults one snapshot per cycle instead of many point lookups.
func (d *dirtySet) snapshot() map[string]struct{} {
	out := map[string]struct{}{}
	d.keys.Range(func(ck string, _ struct{}) bool {
		out[ck] = struct{}{}
		return true
	})
	return out
}

func (d *dirtySet) reset() {
	d.keys.Clear()
}
