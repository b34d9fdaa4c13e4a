package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sealkv/sealkv/lib/codec"
	"github.com/sealkv/sealkv/lib/crypto"
	"github.com/sealkv/sealkv/lib/store"
	"github.com/sealkv/sealkv/lib/util"
)

// --------------------------------------------------------------------------
// Vault Implementation
// --------------------------------------------------------------------------

type vaultImpl struct {
	opts   Options
	st     store.IDurableStore
	engine crypto.IEngine
	codec  codec.ICodec

	hot   *hotCache
	dirty *dirtySet
	ttl   *ttlCache

	b    *batcher
	r    *refresher
	subs *subscriptions

	met *vaultMetrics
	log util.ILogger

	closed atomic.Bool
}

// New creates a vault on top of the given durable store and encryption
// engine. A nil codec defaults to JSON, a nil opts to DefaultOptions. The
// vault does not take ownership of the store; closing the vault leaves it
// open.
func New(st store.IDurableStore, engine crypto.IEngine, cdc codec.ICodec, opts *Options) (IVault, error) {
	if st == nil {
		return nil, errors.New("vault: durable store must not be nil")
	}
	if engine == nil {
		return nil, errors.New("vault: encryption engine must not be nil")
	}
	if cdc == nil {
		cdc = codec.NewJSONCodec()
	}

	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.Namespace == "" {
		o.Namespace = "default"
	}
	if o.PlaintextCacheTTL <= 0 {
		o.PlaintextCacheTTL = DefaultPlaintextCacheTTL
	}
	if o.CoalesceWindow <= 0 {
		o.CoalesceWindow = DefaultCoalesceWindow
	}
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = DefaultMaxBatchSize
	}

	v := &vaultImpl{
		opts:   o,
		st:     st,
		engine: engine,
		codec:  cdc,
		hot:    newHotCache(),
		dirty:  newDirtySet(),
		ttl:    newTTLCache(o.PlaintextCacheTTL),
		subs:   newSubscriptions(),
		met:    newVaultMetrics(o.Namespace),
		log:    util.GetLogger("vault"),
	}

	v.b = newBatcher(st, engine, v.hot, &o, v.met)
	v.r = newRefresher(st, engine, v.hot, v.dirty, v.ttl, &o, v.publish, v.met)

	return v, nil
}

func (v *vaultImpl) checkOpen() error {
	if v.closed.Load() {
		return ErrClosed
	}
	return nil
}

func validateKey(key string) error {
	if key == "" {
		return errors.New("vault: key must not be empty")
	}
	if strings.ContainsRune(key, '\x00') {
		return errors.New("vault: key must not contain NUL bytes")
	}
	if strings.HasPrefix(key, encPrefix) {
		return errors.New(`vault: key must not start with the reserved prefix "encrypted_"`)
	}
	return nil
}

// warm triggers the one-time cold load. Failures degrade reads to defaults
// and are retried on the next non-direct access.
func (v *vaultImpl) warm() {
	if err := v.r.ensureWarm(); err != nil {
		v.log.Warningf("cold load failed, serving defaults: %v", err)
	}
}

// publish pushes the current resolved value of ck to its watchers. Called
// after optimistic writes and by the refresher after folds.
func (v *vaultImpl) publish(ck string) {
	if !v.subs.active(ck) {
		return
	}

	encrypted := isEncryptedKey(ck)
	key := ck
	if encrypted {
		key = logicalKey(ck)
	}

	val, err := v.resolve(key, nil, encrypted)
	if err != nil {
		// locked slots emit once they become readable again
		return
	}
	v.subs.publish(ck, val)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see interface.go)
// --------------------------------------------------------------------------

func (v *vaultImpl) Get(ctx context.Context, key string, def any, encrypted bool) (any, error) {
	if err := v.checkOpen(); err != nil {
		return def, err
	}
	if err := ctx.Err(); err != nil {
		return def, err
	}
	if err := validateKey(key); err != nil {
		return def, err
	}

	v.warm()
	return v.resolve(key, def, encrypted)
}

func (v *vaultImpl) GetDirect(key string, def any, encrypted bool) (any, error) {
	if err := v.checkOpen(); err != nil {
		return def, err
	}
	if err := validateKey(key); err != nil {
		return def, err
	}
	return v.resolve(key, def, encrypted)
}

func (v *vaultImpl) GetJSON(ctx context.Context, key string, out any, encrypted bool) (bool, error) {
	if err := v.checkOpen(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateKey(key); err != nil {
		return false, err
	}

	v.warm()

	ck := cacheKey(key, encrypted)

	if encrypted {
		plain, found, err := v.loadPlaintext(ck)
		if err != nil || !found {
			return false, err
		}
		if err := v.codec.Decode([]byte(plain), out); err != nil {
			v.log.Warningf("undecodable payload for %q", key)
			return false, nil
		}
		return true, nil
	}

	raw, ok := v.hot.get(ck)
	if !ok {
		return false, nil
	}
	s, isStr := raw.(string)
	if !isStr || s == nullSentinel {
		return false, nil
	}
	if err := v.codec.Decode([]byte(s), out); err != nil {
		return false, nil
	}
	return true, nil
}

func (v *vaultImpl) Put(ctx context.Context, key string, value any, encrypted bool) error {
	if err := v.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	v.warm()
	return v.putDirect(key, value, encrypted)
}

func (v *vaultImpl) PutDirect(key string, value any, encrypted bool) error {
	if err := v.checkOpen(); err != nil {
		return err
	}
	return v.putDirect(key, value, encrypted)
}

func (v *vaultImpl) putDirect(key string, value any, encrypted bool) error {
	if err := validateKey(key); err != nil {
		return err
	}

	ck := cacheKey(key, encrypted)
	op := &writeOp{ck: ck}

	if encrypted {
		raw, err := v.codec.Encode(value)
		if err != nil {
			return fmt.Errorf("vault: encode %q: %w", key, err)
		}
		plain := plainText(raw)

		// dirty before the cache update so a concurrent fold can never
		// observe the new value without the skip flag
		v.dirty.mark(ck)
		v.hot.put(ck, plain)
		v.ttl.purge(ck)

		op.kind = opPutEncrypted
		op.plain = plain
		op.alias = keyAlias(v.opts.Namespace, key)
	} else {
		var entry any
		switch {
		case value == nil:
			entry = nullSentinel
		default:
			if prim, ok := normalizePrimitive(value); ok {
				entry = prim
			} else {
				raw, err := v.codec.Encode(value)
				if err != nil {
					return fmt.Errorf("vault: encode %q: %w", key, err)
				}
				entry = string(raw)
			}
		}

		v.dirty.mark(ck)
		v.hot.put(ck, entry)

		op.kind = opPut
		op.value = entry
	}

	if !v.b.enqueue(op) {
		return ErrClosed
	}

	v.publish(ck)
	return nil
}

func (v *vaultImpl) Delete(ctx context.Context, key string, encrypted bool) error {
	if err := v.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	v.warm()
	return v.deleteDirect(key, encrypted)
}

func (v *vaultImpl) DeleteDirect(key string, encrypted bool) error {
	if err := v.checkOpen(); err != nil {
		return err
	}
	return v.deleteDirect(key, encrypted)
}

func (v *vaultImpl) deleteDirect(key string, encrypted bool) error {
	if err := validateKey(key); err != nil {
		return err
	}

	ck := cacheKey(key, encrypted)

	v.dirty.mark(ck)
	v.hot.remove(ck)
	v.ttl.purge(ck)

	op := &writeOp{kind: opDelete, ck: ck, encrypted: encrypted}
	if encrypted {
		op.alias = keyAlias(v.opts.Namespace, key)
	}
	if !v.b.enqueue(op) {
		return ErrClosed
	}

	v.publish(ck)
	return nil
}

func (v *vaultImpl) Watch(ctx context.Context, key string, encrypted bool) (<-chan any, error) {
	if err := v.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	v.warm()

	ck := cacheKey(key, encrypted)
	sub, cancel := v.subs.add(ck)
	if sub == nil {
		return nil, ErrClosed
	}

	// seed the stream with the current value; a locked slot stays silent
	// until it becomes readable
	if cur, err := v.resolve(key, nil, encrypted); err == nil {
		sub.emit(cur)
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return sub.ch, nil
}

func (v *vaultImpl) Sync(ctx context.Context) error {
	if err := v.checkOpen(); err != nil {
		return err
	}

	done := make(chan struct{})
	if !v.b.enqueue(&writeOp{kind: opSync, done: done}) {
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (v *vaultImpl) ClearAll(ctx context.Context) error {
	if err := v.checkOpen(); err != nil {
		return err
	}

	// drain pending writes first so none of them re-persist after the wipe
	if err := v.Sync(ctx); err != nil {
		return err
	}

	snap, err := v.st.Snapshot()
	if err != nil {
		return err
	}

	if err := v.st.Clear(); err != nil {
		return err
	}

	for ck := range snap {
		if !isEncryptedKey(ck) {
			continue
		}
		alias := keyAlias(v.opts.Namespace, logicalKey(ck))
		if err := v.engine.DeleteKey(alias); err != nil {
			v.log.Debugf("deleting key material failed: %v", err)
		}
	}

	v.hot.clear()
	v.ttl.clear()
	// the only place the dirty set ever resets
	v.dirty.reset()

	v.subs.publishAll(nil)
	return nil
}

func (v *vaultImpl) Close() error {
	if !v.closed.CompareAndSwap(false, true) {
		return nil
	}

	v.r.shutdown()
	v.b.shutdown()
	v.subs.closeAll()
	return nil
}
