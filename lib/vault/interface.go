package vault

import (
	"context"
	"errors"
	"time"
)

// --------------------------------------------------------------------------
// Memory Policies
// --------------------------------------------------------------------------

// MemoryPolicy controls what the hot cache holds for encrypted values and
// therefore how much decrypted material lives in process memory.
type MemoryPolicy int

const (
	// PolicyPlainText keeps decrypted values in the hot cache permanently.
	// Fastest reads, weakest memory hygiene.
	PolicyPlainText MemoryPolicy = iota
	// PolicyEncrypted keeps only ciphertext in the hot cache; every read
	// decrypts. Strongest memory hygiene, slowest repeated reads.
	PolicyEncrypted
	// PolicyEncryptedTimedCache keeps ciphertext in the hot cache and
	// shortcuts repeated reads through a TTL-bounded plaintext cache.
	PolicyEncryptedTimedCache
)

func (p MemoryPolicy) String() string {
	switch p {
	case PolicyPlainText:
		return "plaintext"
	case PolicyEncrypted:
		return "encrypted"
	case PolicyEncryptedTimedCache:
		return "encrypted-timed-cache"
	default:
		return "unknown"
	}
}

// ParseMemoryPolicy converts a string to a MemoryPolicy
func ParseMemoryPolicy(s string) (MemoryPolicy, error) {
	switch s {
	case "plaintext":
		return PolicyPlainText, nil
	case "encrypted":
		return PolicyEncrypted, nil
	case "encrypted-timed-cache":
		return PolicyEncryptedTimedCache, nil
	default:
		return PolicyPlainText, errors.New("invalid memory policy: " + s + ". must be one of plaintext, encrypted, encrypted-timed-cache")
	}
}

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Default configuration values
const (
	DefaultPlaintextCacheTTL = 5 * time.Second
	DefaultCoalesceWindow    = 16 * time.Millisecond
	DefaultMaxBatchSize      = 128
)

// Options configures a vault during initialization
type Options struct {
	// Namespace scopes key aliases and metrics. One vault instance
	// corresponds to one durable-store namespace.
	Namespace string
	// MemoryPolicy for encrypted values (default: PolicyPlainText)
	MemoryPolicy MemoryPolicy
	// PlaintextCacheTTL bounds the plaintext cache under
	// PolicyEncryptedTimedCache (default: 5s)
	PlaintextCacheTTL time.Duration
	// RequireUnlockedDevice tags encryption keys so they are only usable
	// while the device is unlocked. Changing this between runs triggers
	// the access-policy migration on the next startup.
	RequireUnlockedDevice bool
	// LazyLoad defers the background refresher's first run until first
	// access instead of at construction.
	LazyLoad bool
	// CoalesceWindow is how long the write batcher keeps accumulating
	// after the first operation of a batch (default: 16ms)
	CoalesceWindow time.Duration
	// MaxBatchSize caps how many operations one batch may hold
	// (default: 128)
	MaxBatchSize int
}

// DefaultOptions returns the default vault options
func DefaultOptions() *Options {
	return &Options{
		Namespace:         "default",
		MemoryPolicy:      PolicyPlainText,
		PlaintextCacheTTL: DefaultPlaintextCacheTTL,
		CoalesceWindow:    DefaultCoalesceWindow,
		MaxBatchSize:      DefaultMaxBatchSize,
	}
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

// ErrLocked is returned by synchronous read APIs when an encrypted value
// exists but its key is temporarily inaccessible (device locked). The value
// is not lost; the read succeeds once the device is unlocked.
var ErrLocked = errors.New("vault: device locked, encrypted value temporarily unavailable")

// ErrClosed is returned by all operations after Close.
var ErrClosed = errors.New("vault: vault is closed")

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IVault is the public surface of the encrypted key-value persistence
// layer.
//
// Reads resolve against the in-memory hot cache and therefore return
// instantly, except for a single synchronous load from the durable store
// the first time a cold vault is accessed. Writes update the hot cache
// optimistically and are persisted asynchronously by a coalescing batcher;
// a crash can lose at most the not-yet-flushed tail of writes.
//
// The Direct variants never block beyond the optimistic cache update: they
// skip the one-time cold load and serve whatever the hot cache holds.
//
// Reads never fail for "value missing or unreadable" - they return the
// caller's default. The one surfaced condition is ErrLocked, so callers
// can prompt for device unlock instead of silently losing data.
type IVault interface {
	// Get resolves the value for key, coerced to the dynamic type of def.
	// An absent or unreadable value resolves to def; an explicitly stored
	// null resolves to nil.
	Get(ctx context.Context, key string, def any, encrypted bool) (value any, err error)
	// GetDirect is Get without the one-time cold load.
	GetDirect(key string, def any, encrypted bool) (value any, err error)
	// GetJSON decodes a complex value into out. The boolean return value
	// indicates whether a decodable value was found.
	GetJSON(ctx context.Context, key string, out any, encrypted bool) (found bool, err error)

	// Put stores value under key. The hot cache reflects the write
	// immediately; persistence (and encryption, if requested) happens
	// asynchronously. A nil value stores an explicit null.
	Put(ctx context.Context, key string, value any, encrypted bool) (err error)
	// PutDirect is Put without the one-time cold load.
	PutDirect(key string, value any, encrypted bool) (err error)

	// Delete removes key from the vault and the durable store and deletes
	// the associated encryption key.
	Delete(ctx context.Context, key string, encrypted bool) (err error)
	// DeleteDirect is Delete without the one-time cold load.
	DeleteDirect(key string, encrypted bool) (err error)

	// Watch returns a de-duplicated stream of resolved values for one key.
	// The current value is emitted first; the channel closes when ctx is
	// cancelled or the vault is closed.
	Watch(ctx context.Context, key string, encrypted bool) (values <-chan any, err error)

	// Sync blocks until every write enqueued before the call has been
	// attempted against the durable store.
	Sync(ctx context.Context) (err error)
	// ClearAll wipes the durable store, all associated encryption keys,
	// the hot cache and the plaintext cache.
	ClearAll(ctx context.Context) (err error)
	// Close stops the background refresher and the write batcher after
	// draining pending writes. The injected store remains open.
	Close() (err error)
}

// GetTyped is a typed convenience wrapper around IVault.Get. An absent or
// unreadable value, and an explicitly stored null, both resolve to def.
func GetTyped[T any](ctx context.Context, v IVault, key string, def T, encrypted bool) (T, error) {
	raw, err := v.Get(ctx, key, def, encrypted)
	if err != nil {
		return def, err
	}
	if t, ok := raw.(T); ok {
		return t, nil
	}
	return def, nil
}

// Named typed getters for the common primitive kinds

func GetString(ctx context.Context, v IVault, key, def string, encrypted bool) (string, error) {
	return GetTyped(ctx, v, key, def, encrypted)
}

func GetBool(ctx context.Context, v IVault, key string, def bool, encrypted bool) (bool, error) {
	return GetTyped(ctx, v, key, def, encrypted)
}

func GetInt64(ctx context.Context, v IVault, key string, def int64, encrypted bool) (int64, error) {
	return GetTyped(ctx, v, key, def, encrypted)
}

func GetFloat64(ctx context.Context, v IVault, key string, def float64, encrypted bool) (float64, error) {
	return GetTyped(ctx, v, key, def, encrypted)
}
