/*
Package vault implements an encrypted key-value persistence layer that
combines an in-memory hot cache with asynchronous, write-coalescing
persistence.

# Architecture

Reads resolve against the hot cache and return instantly; the only
blocking read is the one-time cold load of a fresh vault. Writes update
the cache optimistically, mark the key dirty and enqueue a mutation on a
lock-free MPSC queue. A single flush goroutine coalesces mutations for a
short window (16ms by default), encrypts pending plaintext once per batch
and commits the batch as one durable-store transaction.

A background refresher folds every committed store state back into the
cache. Dirty keys are skipped forever, so the newest in-memory write
always wins over older persisted state; keys that disappear from the
store are evicted so deletes never resurrect.

# Memory Policies

How much decrypted material stays in process memory is tunable per vault:

  - PolicyPlainText: decrypted values stay in the hot cache
  - PolicyEncrypted: only ciphertext is cached, every read decrypts
  - PolicyEncryptedTimedCache: ciphertext cache plus a TTL-bounded
    plaintext cache for repeated reads

# Self-Healing

Encryption failures never poison the vault. Writes to a key whose
material was invalidated recreate the key transparently; reads degrade to
the caller's default; the startup reconciliation removes entries whose
key material is permanently gone and re-tags keys when the device-unlock
requirement changed between runs. The only surfaced condition is
ErrLocked, so callers can prompt for an unlock instead of losing data.

# Usage

	st, _ := fstore.NewFileStore("app.state.json")
	engine, _ := aead.NewEngine(keyring.NewMemoryKeyring(), aead.DefaultOptions())

	v, _ := vault.New(st, engine, nil, vault.DefaultOptions())
	defer v.Close()

	_ = v.Put(ctx, "token", "s3cr3t", true)
	token, _ := vault.GetTyped(ctx, v, "token", "", true)
*/
package vault
