package vault

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/sealkv/sealkv/lib/store"
)

// --------------------------------------------------------------------------
// Reserved Keys and Sentinels
// --------------------------------------------------------------------------

const (
	// encPrefix namespaces encrypted entries inside the durable store so an
	// encrypted and an unencrypted value may coexist under one logical key.
	encPrefix = "encrypted_"

	// nullSentinel is the reserved string that represents an explicitly
	// stored null for unencrypted entries. It is unreachable from the
	// public API because it contains NUL bytes.
	nullSentinel = "\x00sealkv:null\x00"

	// markerKey is the reserved durable-store key holding the access
	// policy the encryption keys of this namespace were created under.
	markerKey = "\x00sealkv:accesspolicy\x00"

	// reservedPrefix guards all internal keys from the ordinary fold and
	// eviction logic of the refresher.
	reservedPrefix = "\x00sealkv:"
)

// Marker values for markerKey
const (
	markerAnyState        = "any"
	markerRequireUnlocked = "require-unlocked"
)

func markerFor(requireUnlocked bool) string {
	if requireUnlocked {
		return markerRequireUnlocked
	}
	return markerAnyState
}

// cacheKey maps a logical key to its slot in the hot cache and the durable
// store. The mapping is 1:1, which keeps the refresher's fold trivial.
func cacheKey(key string, encrypted bool) string {
	if encrypted {
		return encPrefix + key
	}
	return key
}

// logicalKey inverts cacheKey for encrypted slots.
func logicalKey(ck string) string {
	return ck[len(encPrefix):]
}

func isEncryptedKey(ck string) bool {
	return len(ck) > len(encPrefix) && ck[:len(encPrefix)] == encPrefix
}

func isReservedKey(ck string) bool {
	return len(ck) >= len(reservedPrefix) && ck[:len(reservedPrefix)] == reservedPrefix
}

// keyAlias derives the stable encryption-key alias for a logical key. The
// alias deliberately does not reveal the key name to the keyring.
func keyAlias(namespace, key string) string {
	sum := sha256.Sum256([]byte(namespace + "/" + key))
	return "sealkv-" + hex.EncodeToString(sum[:16])
}

// --------------------------------------------------------------------------
// Hot Cache Entry Representation
// --------------------------------------------------------------------------

// Encrypted slots hold one of these two wrapper types. Plain slots hold
// normalized primitives (bool, int64, float64, string) directly.

// cipherText is the persisted Base64 form of an encrypted value.
type cipherText string

// plainText is the serialized (decrypted or not-yet-encrypted) form of an
// encrypted value.
type plainText string

// normalizePrimitive widens the numeric types callers actually pass into
// the two shapes the vault stores. The boolean result reports whether the
// value was a storable primitive at all.
func normalizePrimitive(value any) (any, bool) {
	switch v := value.(type) {
	case bool, int64, float64, string:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint32:
		return int64(v), true
	case float32:
		return float64(v), true
	default:
		return nil, false
	}
}

// storeValueFor maps a normalized cache entry to its durable representation.
func storeValueFor(entry any) store.Value {
	switch v := entry.(type) {
	case bool:
		return store.BoolValue(v)
	case int64:
		return store.IntValue(v)
	case float64:
		return store.FloatValue(v)
	case string:
		return store.StringValue(v)
	default:
		// unreachable, entries are normalized before they are enqueued
		return store.StringValue("")
	}
}
