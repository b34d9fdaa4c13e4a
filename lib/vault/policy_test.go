package vault

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sealkv/sealkv/lib/crypto/aead"
)

func lockedEnv(t *testing.T, policy MemoryPolicy, ttl time.Duration) *testEnv {
	t.Helper()
	return newTestVault(t, func(vo *Options, eo *aead.Options) {
		vo.MemoryPolicy = policy
		if ttl > 0 {
			vo.PlaintextCacheTTL = ttl
		}
		vo.RequireUnlockedDevice = true
		eo.RequireUnlocked = true
	})
}

func TestMemoryPolicyRoundTrips(t *testing.T) {
	for _, policy := range []MemoryPolicy{PolicyPlainText, PolicyEncrypted, PolicyEncryptedTimedCache} {
		t.Run(policy.String(), func(t *testing.T) {
			env := newTestVault(t, func(vo *Options, eo *aead.Options) {
				vo.MemoryPolicy = policy
			})
			ctx := context.Background()

			if err := env.v.Put(ctx, "k", "v", true); err != nil {
				t.Fatal(err)
			}
			if got, err := env.v.Get(ctx, "k", "", true); err != nil || got != "v" {
				t.Fatalf("Before flush: got %v err %v", got, err)
			}

			if err := env.v.Sync(ctx); err != nil {
				t.Fatal(err)
			}
			if got, err := env.v.Get(ctx, "k", "", true); err != nil || got != "v" {
				t.Fatalf("After flush: got %v err %v", got, err)
			}
		})
	}
}

func TestEncryptedPolicyDropsPlaintextAfterFlush(t *testing.T) {
	env := newTestVault(t, func(vo *Options, eo *aead.Options) {
		vo.MemoryPolicy = PolicyEncrypted
	})
	ctx := context.Background()

	if err := env.v.Put(ctx, "k", "v", true); err != nil {
		t.Fatal(err)
	}
	if err := env.v.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	// after the flush the hot cache holds ciphertext, not plaintext
	impl := env.v.(*vaultImpl)
	waitFor(t, "plaintext to ciphertext swap", func() bool {
		raw, ok := impl.hot.get("encrypted_k")
		if !ok {
			return false
		}
		_, isCipher := raw.(cipherText)
		return isCipher
	})
}

func TestLockedReadSurfacesErrLocked(t *testing.T) {
	env := lockedEnv(t, PolicyEncrypted, 0)
	ctx := context.Background()

	if err := env.v.Put(ctx, "secret", "v", true); err != nil {
		t.Fatal(err)
	}
	if err := env.v.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	impl := env.v.(*vaultImpl)
	waitFor(t, "plaintext to ciphertext swap", func() bool {
		raw, ok := impl.hot.get("encrypted_secret")
		if !ok {
			return false
		}
		_, isCipher := raw.(cipherText)
		return isCipher
	})

	env.ring.Lock()

	got, err := env.v.Get(ctx, "secret", "DEFAULT", true)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("Expected ErrLocked, got %v", err)
	}
	if got != "DEFAULT" {
		t.Errorf("A locked read serves the default, got %v", got)
	}

	// the value is not lost, just temporarily unreadable
	env.ring.Unlock()
	if got, err := env.v.Get(ctx, "secret", "", true); err != nil || got != "v" {
		t.Errorf("After unlock: got %v err %v", got, err)
	}
}

func TestTimedCacheShortcutsDecryption(t *testing.T) {
	env := lockedEnv(t, PolicyEncryptedTimedCache, 80*time.Millisecond)
	ctx := context.Background()

	if err := env.v.Put(ctx, "secret", "v", true); err != nil {
		t.Fatal(err)
	}
	if err := env.v.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	impl := env.v.(*vaultImpl)
	waitFor(t, "plaintext to ciphertext swap", func() bool {
		raw, ok := impl.hot.get("encrypted_secret")
		if !ok {
			return false
		}
		_, isCipher := raw.(cipherText)
		return isCipher
	})

	// populate the plaintext cache
	if got, err := env.v.Get(ctx, "secret", "", true); err != nil || got != "v" {
		t.Fatalf("Warmup read failed: got %v err %v", got, err)
	}

	// while the TTL holds, reads succeed even though the provider is
	// locked - no decryption happens
	env.ring.Lock()
	if got, err := env.v.Get(ctx, "secret", "", true); err != nil || got != "v" {
		t.Errorf("TTL hit should not decrypt: got %v err %v", got, err)
	}

	// after expiry the read needs the provider again
	time.Sleep(100 * time.Millisecond)
	if _, err := env.v.Get(ctx, "secret", "DEFAULT", true); !errors.Is(err, ErrLocked) {
		t.Errorf("Expired TTL entry must be ignored, expected ErrLocked, got %v", err)
	}
	env.ring.Unlock()
}

func TestDeletePurgesPlaintextCache(t *testing.T) {
	env := newTestVault(t, func(vo *Options, eo *aead.Options) {
		vo.MemoryPolicy = PolicyEncryptedTimedCache
		vo.PlaintextCacheTTL = time.Minute
	})
	ctx := context.Background()

	if err := env.v.Put(ctx, "secret", "v", true); err != nil {
		t.Fatal(err)
	}
	if err := env.v.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if got, _ := env.v.Get(ctx, "secret", "", true); got != "v" {
		t.Fatalf("Expected v, got %v", got)
	}

	// delete must purge the cached plaintext immediately, long TTL or not
	if err := env.v.Delete(ctx, "secret", true); err != nil {
		t.Fatal(err)
	}
	if got, _ := env.v.Get(ctx, "secret", "DEFAULT", true); got != "DEFAULT" {
		t.Errorf("Stale plaintext must not outlive its value, got %v", got)
	}
}

func TestSelfHealingEncryptAfterInvalidation(t *testing.T) {
	env := newTestVault(t, nil)
	ctx := context.Background()

	if err := env.v.Put(ctx, "secret", "old", true); err != nil {
		t.Fatal(err)
	}
	if err := env.v.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	// the provider invalidates the key; the old value is unrecoverable
	env.ring.Invalidate(keyAlias("default", "secret"))

	// a write recreates the key transparently
	if err := env.v.Put(ctx, "secret", "new", true); err != nil {
		t.Fatal(err)
	}
	if err := env.v.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if got, err := env.v.Get(ctx, "secret", "", true); err != nil || got != "new" {
		t.Errorf("Expected new after self-healing write, got %v (err %v)", got, err)
	}
}
