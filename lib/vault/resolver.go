package vault

import (
	"reflect"

	"github.com/sealkv/sealkv/lib/crypto"
)

// --------------------------------------------------------------------------
// Resolver
// --------------------------------------------------------------------------

// resolve maps the hot-cache state of one logical key to the value the
// caller sees. Absent or unreadable values resolve to def, an explicitly
// stored null resolves to nil. The only error ever returned is ErrLocked.
func (v *vaultImpl) resolve(key string, def any, encrypted bool) (any, error) {
	ck := cacheKey(key, encrypted)

	if !encrypted {
		raw, ok := v.hot.get(ck)
		if !ok {
			v.met.cacheMisses.Inc()
			return def, nil
		}
		v.met.cacheHits.Inc()

		if s, isStr := raw.(string); isStr && s == nullSentinel {
			return nil, nil
		}
		return coerce(raw, def), nil
	}

	plain, found, err := v.loadPlaintext(ck)
	if err != nil {
		return def, err
	}
	if !found {
		return def, nil
	}

	var decoded any
	if err := v.codec.Decode([]byte(plain), &decoded); err != nil {
		v.log.Warningf("undecodable payload for %q, serving default", key)
		return def, nil
	}
	if decoded == nil {
		return nil, nil
	}
	return coerce(decoded, def), nil
}

// loadPlaintext resolves the serialized plaintext of an encrypted slot,
// consulting the TTL cache first under PolicyEncryptedTimedCache and
// decrypting on demand when the slot holds ciphertext.
func (v *vaultImpl) loadPlaintext(ck string) (plainText, bool, error) {
	if v.opts.MemoryPolicy == PolicyEncryptedTimedCache {
		if p, ok := v.ttl.get(ck); ok {
			v.met.cacheHits.Inc()
			return p, true, nil
		}
	}

	raw, ok := v.hot.get(ck)
	if !ok {
		v.met.cacheMisses.Inc()
		return "", false, nil
	}
	v.met.cacheHits.Inc()

	switch e := raw.(type) {
	case plainText:
		return e, true, nil

	case cipherText:
		alias := keyAlias(v.opts.Namespace, logicalKey(ck))
		pt, err := v.engine.Decrypt(alias, string(e))
		if err != nil {
			if crypto.IsLocked(err) {
				return "", false, ErrLocked
			}
			// permanent failures degrade to the default; the startup
			// reconciliation removes the entry for good
			v.log.Warningf("unreadable encrypted entry %q: %v", logicalKey(ck), err)
			return "", false, nil
		}

		plain := plainText(pt)
		switch v.opts.MemoryPolicy {
		case PolicyEncryptedTimedCache:
			v.ttl.put(ck, plain)
		case PolicyPlainText:
			v.hot.upgradeCipherToPlain(ck, e, plain)
		}
		return plain, true, nil

	default:
		// an unencrypted value never lands at an encrypted slot
		return "", false, nil
	}
}

// coerce adapts a resolved value to the dynamic type of the caller's
// default. Numeric kinds convert into each other (JSON decoding yields
// float64 for every number); anything else must match exactly or falls
// back to def.
func coerce(value any, def any) any {
	if def == nil {
		return value
	}

	switch def.(type) {
	case bool:
		if b, ok := value.(bool); ok {
			return b
		}
	case string:
		if s, ok := value.(string); ok {
			return s
		}
	case int:
		switch n := value.(type) {
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	case int64:
		switch n := value.(type) {
		case int64:
			return n
		case float64:
			return int64(n)
		}
	case float64:
		switch n := value.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		}
	default:
		if value != nil && reflect.TypeOf(value) == reflect.TypeOf(def) {
			return value
		}
	}
	return def
}
