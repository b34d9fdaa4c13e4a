package vault

import (
	"sync"
	"sync/atomic"

	"github.com/sealkv/sealkv/lib/crypto"
	"github.com/sealkv/sealkv/lib/store"
	"github.com/sealkv/sealkv/lib/util"
)

// --------------------------------------------------------------------------
// Background Refresher
// --------------------------------------------------------------------------

// refresher keeps the hot cache consistent with the durable store. It
// subscribes to the store's change signal and folds every committed state
// into the cache; dirty keys are skipped so an optimistic in-memory write
// is never overwritten by older persisted state.
//
// Before the first ordinary fold the refresher runs two startup-only
// reconciliation passes: the access-policy migration and the orphaned
// ciphertext cleanup. With LazyLoad both passes and the first fold are
// deferred until first access.
type refresher struct {
	st     store.IDurableStore
	engine crypto.IEngine
	hot    *hotCache
	dirty  *dirtySet
	ttl    *ttlCache

	policy          MemoryPolicy
	ns              string
	requireUnlocked bool

	// notify is called with every cache key whose resolved value may have
	// changed during a fold
	notify func(ck string)

	met *vaultMetrics
	log util.ILogger

	warmMu sync.Mutex
	warm   atomic.Bool

	stop chan struct{}
	done chan struct{}
}

func newRefresher(st store.IDurableStore, engine crypto.IEngine, hot *hotCache, dirty *dirtySet, ttl *ttlCache, opts *Options, notify func(ck string), met *vaultMetrics) *refresher {
	r := &refresher{
		st:              st,
		engine:          engine,
		hot:             hot,
		dirty:           dirty,
		ttl:             ttl,
		policy:          opts.MemoryPolicy,
		ns:              opts.Namespace,
		requireUnlocked: opts.RequireUnlockedDevice,
		notify:          notify,
		met:             met,
		log:             util.GetLogger("vault/refresher"),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}

	ch, cancel := st.Watch()
	go r.run(ch, cancel)

	if !opts.LazyLoad {
		go func() {
			if err := r.ensureWarm(); err != nil {
				r.log.Warningf("eager warmup failed, retrying on first access: %v", err)
			}
		}()
	}
	return r
}

// ensureWarm performs the one-time cold load: startup reconciliation
// followed by the initial fold. Concurrent callers serialize; a failure
// leaves the vault cold so the next access retries.
func (r *refresher) ensureWarm() error {
	if r.warm.Load() {
		return nil
	}

	r.warmMu.Lock()
	defer r.warmMu.Unlock()

	if r.warm.Load() {
		return nil
	}

	snap, err := r.st.Snapshot()
	if err != nil {
		return err
	}

	// reconciliation failures are logged, not fatal: the passes rerun on
	// the next cold start and the read path degrades to defaults meanwhile
	if err := r.migrateAccessPolicy(snap); err != nil {
		r.log.Warningf("access-policy migration incomplete: %v", err)
	}
	if err := r.cleanOrphans(snap); err != nil {
		r.log.Warningf("orphan cleanup incomplete: %v", err)
	}

	if err := r.fold(); err != nil {
		return err
	}

	r.warm.Store(true)
	return nil
}

func (r *refresher) shutdown() {
	close(r.stop)
	<-r.done
}

func (r *refresher) run(ch <-chan struct{}, cancel func()) {
	defer close(r.done)
	defer cancel()

	for {
		select {
		case <-r.stop:
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			// a cold vault folds during warmup instead
			if !r.warm.Load() {
				continue
			}
			if err := r.fold(); err != nil {
				r.log.Warningf("refresh failed: %v", err)
			}
		}
	}
}

// --------------------------------------------------------------------------
// Fold
// --------------------------------------------------------------------------

// fold reconciles one committed store state into the hot cache:
//
//  1. every non-dirty store entry is installed in its policy-dependent
//     representation
//  2. every cache key that is neither in the store nor dirty is evicted,
//     so the cache never resurrects deleted keys
func (r *refresher) fold() error {
	snap, err := r.st.Snapshot()
	if err != nil {
		return err
	}

	// one dirty snapshot per cycle for the valid-key set; the installs
	// below additionally re-check dirtiness per entry to close the race
	// with a write landing mid-cycle
	dirty := r.dirty.snapshot()

	var changed []string

	for ck, v := range snap {
		if _, isDirty := dirty[ck]; isReservedKey(ck) || isDirty {
			continue
		}

		var entry any
		if isEncryptedKey(ck) {
			entry = r.encryptedEntry(ck, v.Str)
		} else {
			entry = v.Any()
		}

		if r.hot.installUnlessDirty(ck, entry, r.dirty.contains) {
			changed = append(changed, ck)
		}
	}

	// evict every key outside the valid-key set (store keys plus dirty
	// keys), so external deletes take effect without touching in-flight
	// writes
	r.hot.rangeAll(func(ck string, _ any) bool {
		if isReservedKey(ck) {
			return true
		}
		if _, ok := snap[ck]; ok {
			return true
		}
		if _, isDirty := dirty[ck]; isDirty {
			return true
		}
		if r.hot.removeUnlessDirty(ck, r.dirty.contains) {
			r.ttl.purge(ck)
			changed = append(changed, ck)
		}
		return true
	})

	r.met.refreshCycles.Inc()

	for _, ck := range changed {
		r.notify(ck)
	}
	return nil
}

// encryptedEntry picks the cache representation of one persisted
// ciphertext. Under PolicyPlainText the fold decrypts eagerly; if that
// fails the ciphertext is installed as-is and the read path deals with it.
func (r *refresher) encryptedEntry(ck, raw string) any {
	if r.policy != PolicyPlainText {
		return cipherText(raw)
	}

	plain, err := r.engine.Decrypt(keyAlias(r.ns, logicalKey(ck)), raw)
	if err != nil {
		r.log.Debugf("deferring decryption of %q to the read path: %v", logicalKey(ck), err)
		return cipherText(raw)
	}
	return plainText(plain)
}

// --------------------------------------------------------------------------
// Startup Reconciliation
// --------------------------------------------------------------------------

// migrateAccessPolicy re-tags all encryption keys of this namespace when
// the configured device-unlock requirement differs from the one recorded in
// the store. The marker is written only after every key migrated, so a
// crash mid-way safely retries on the next startup.
func (r *refresher) migrateAccessPolicy(snap map[string]store.Value) error {
	want := markerFor(r.requireUnlocked)
	if v, ok := snap[markerKey]; ok && v.Str == want {
		return nil
	}

	migrated := 0
	for ck := range snap {
		if !isEncryptedKey(ck) {
			continue
		}
		alias := keyAlias(r.ns, logicalKey(ck))
		if err := r.engine.UpdateKeyAccessibility(alias, r.requireUnlocked); err != nil {
			// dead keys are the orphan cleanup's problem, not the
			// migration's
			if crypto.IsPermanent(err) || crypto.CodeOf(err) == crypto.RetCKeyUnavailable {
				continue
			}
			return err
		}
		migrated++
	}

	if migrated > 0 {
		r.log.Infof("migrated %d encryption keys to access policy %q", migrated, want)
	}

	return r.st.Apply(store.Tx{Put: map[string]store.Value{
		markerKey: store.StringValue(want),
	}})
}

// cleanOrphans removes encrypted entries whose key material is permanently
// gone (invalidated or undecryptable), together with their dead key
// material. Entries that merely fail because the device is locked are left
// untouched.
func (r *refresher) cleanOrphans(snap map[string]store.Value) error {
	var orphans []string
	var deadAliases []string

	for ck, v := range snap {
		if !isEncryptedKey(ck) {
			continue
		}
		alias := keyAlias(r.ns, logicalKey(ck))
		if _, err := r.engine.Decrypt(alias, v.Str); err != nil {
			// a missing key is just as unrecoverable as an invalidated one
			if crypto.IsPermanent(err) || crypto.CodeOf(err) == crypto.RetCKeyUnavailable {
				orphans = append(orphans, ck)
				deadAliases = append(deadAliases, alias)
			}
		}
	}

	if len(orphans) == 0 {
		return nil
	}

	r.log.Infof("removing %d orphaned encrypted entries", len(orphans))
	if err := r.st.Apply(store.Tx{Delete: orphans}); err != nil {
		return err
	}

	for i, ck := range orphans {
		delete(snap, ck)
		r.hot.remove(ck)
		r.ttl.purge(ck)
		if err := r.engine.DeleteKey(deadAliases[i]); err != nil {
			r.log.Debugf("deleting dead key material failed: %v", err)
		}
	}
	return nil
}
