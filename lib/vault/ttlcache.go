package vault

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Plaintext TTL Cache
// --------------------------------------------------------------------------

// ttlEntry is one cached decryption result.
type ttlEntry struct {
	plain plainText
	at    time.Time
}

// ttlCache shortcuts repeated decryptions under PolicyEncryptedTimedCache.
// There is no background sweeper: an expired entry is inert and simply
// ignored (and overwritten) on the next access. Deletes and ClearAll purge
// eagerly so stale plaintext never outlives its value.
type ttlCache struct {
	data *xsync.MapOf[string, ttlEntry]
	ttl  time.Duration
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{data: xsync.NewMapOf[string, ttlEntry](), ttl: ttl}
}

func (c *ttlCache) get(ck string) (plainText, bool) {
	e, ok := c.data.Load(ck)
	if !ok || time.Since(e.at) > c.ttl {
		return "", false
	}
	return e.plain, true
}

func (c *ttlCache) put(ck string, plain plainText) {
	c.data.Store(ck, ttlEntry{plain: plain, at: time.Now()})
}

func (c *ttlCache) purge(ck string) {
	c.data.Delete(ck)
}

func (c *ttlCache) clear() {
	c.data.Clear()
}
