package keyring

import (
	"errors"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IKeyring abstracts the platform secure-key provider (hardware keystore,
// OS keychain, or a software fallback). It stores raw symmetric keys under
// string aliases.
//
// Implementations must report their failure modes through the sentinel
// errors below so callers can distinguish a missing key from a temporarily
// locked provider and from a permanently invalidated key.
type IKeyring interface {
	// Fetch returns the key material registered under alias.
	Fetch(alias string) (key []byte, err error)
	// Generate creates and stores a new random key of size bytes under
	// alias, replacing any previous key. requireUnlocked records the access
	// policy the key was created under.
	Generate(alias string, size int, requireUnlocked bool) (key []byte, err error)
	// Delete removes the key under alias. Deleting a missing key is a no-op.
	Delete(alias string) (err error)
	// SetAccessibility re-tags an existing key with a new access policy.
	SetAccessibility(alias string, requireUnlocked bool) (err error)
}

// --------------------------------------------------------------------------
// Sentinel Errors
// --------------------------------------------------------------------------

var (
	// ErrKeyNotFound is returned by Fetch when no key exists for the alias.
	ErrKeyNotFound = errors.New("keyring: no key for alias")

	// ErrLocked is returned when the key exists but the provider is
	// temporarily unable to release it (device locked). The key must not be
	// deleted in response to this error.
	ErrLocked = errors.New("keyring: provider locked")

	// ErrKeyInvalidated is returned when the provider itself invalidated the
	// key (e.g. the device credential changed). The key material is gone for
	// good; any ciphertext under it is unrecoverable.
	ErrKeyInvalidated = errors.New("keyring: key permanently invalidated")
)
