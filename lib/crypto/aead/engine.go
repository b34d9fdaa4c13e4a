// Package aead implements the crypto.IEngine contract with authenticated
// encryption (AES-GCM or XChaCha20-Poly1305) over a keyring.
//
// Ciphertext format: base64(nonce || sealed), where sealed carries the
// authentication tag. The format is self-describing enough to round-trip
// through plain text storage; everything else about it is opaque to callers.
//
// Self-healing: a missing key is generated transparently on Encrypt. A key
// the provider permanently invalidated is deleted and regenerated on
// Encrypt (retried once); on Decrypt it is deleted and the call fails,
// because the ciphertext under it is unrecoverable by design.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/sealkv/sealkv/lib/crypto"
	"github.com/sealkv/sealkv/lib/crypto/keyring"
)

// --------------------------------------------------------------------------
// Cipher Suites
// --------------------------------------------------------------------------

// Suite selects the AEAD construction used by the engine.
type Suite string

const (
	// SuiteAESGCM uses AES-GCM with a 128 or 256 bit key.
	SuiteAESGCM Suite = "aesgcm"
	// SuiteXChaCha20 uses XChaCha20-Poly1305 with a 256 bit key.
	SuiteXChaCha20 Suite = "xchacha20poly1305"
)

// --------------------------------------------------------------------------
// Engine Options
// --------------------------------------------------------------------------

// Options configures the engine during initialization
type Options struct {
	Suite           Suite // AEAD construction (default: SuiteAESGCM)
	KeySize         int   // Key size in bits, 128 or 256 (default: 256)
	RequireUnlocked bool  // Access policy new keys are created under
}

// DefaultOptions returns the default engine options
func DefaultOptions() *Options {
	return &Options{
		Suite:   SuiteAESGCM,
		KeySize: 256,
	}
}

type engineImpl struct {
	ring     keyring.IKeyring
	suite    Suite
	keyBytes int
	unlocked bool
}

// NewEngine creates a new AEAD engine over the given keyring with the
// specified options (optional).
func NewEngine(ring keyring.IKeyring, opts *Options) (crypto.IEngine, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Suite == "" {
		opts.Suite = SuiteAESGCM
	}
	if opts.KeySize == 0 {
		opts.KeySize = 256
	}

	switch opts.Suite {
	case SuiteAESGCM:
		if opts.KeySize != 128 && opts.KeySize != 256 {
			return nil, fmt.Errorf("aead: invalid key size %d for aes-gcm, must be 128 or 256", opts.KeySize)
		}
	case SuiteXChaCha20:
		if opts.KeySize != 256 {
			return nil, fmt.Errorf("aead: invalid key size %d for xchacha20poly1305, must be 256", opts.KeySize)
		}
	default:
		return nil, fmt.Errorf("aead: unknown cipher suite %q", opts.Suite)
	}

	return &engineImpl{
		ring:     ring,
		suite:    opts.Suite,
		keyBytes: opts.KeySize / 8,
		unlocked: opts.RequireUnlocked,
	}, nil
}

// --------------------------------------------------------------------------
// AEAD Construction
// --------------------------------------------------------------------------

// newAEAD builds the configured AEAD primitive from raw key material
func (e *engineImpl) newAEAD(key []byte) (cipher.AEAD, error) {
	switch e.suite {
	case SuiteXChaCha20:
		return chacha20poly1305.NewX(key)
	default:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	}
}

// mapKeyringErr translates keyring sentinel errors into crypto return codes
func mapKeyringErr(err error, op string) *crypto.Error {
	switch {
	case errors.Is(err, keyring.ErrKeyNotFound):
		return crypto.NewError(crypto.RetCKeyUnavailable, fmt.Sprintf("%s: no key for alias", op))
	case errors.Is(err, keyring.ErrLocked):
		return crypto.NewError(crypto.RetCDeviceLocked, fmt.Sprintf("%s: key provider locked", op))
	case errors.Is(err, keyring.ErrKeyInvalidated):
		return crypto.NewError(crypto.RetCKeyPermanentlyInvalid, fmt.Sprintf("%s: key invalidated by provider", op))
	default:
		return crypto.NewError(crypto.RetCInternalError, fmt.Sprintf("%s: %v", op, err))
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see crypto.IEngine)
// --------------------------------------------------------------------------

func (e *engineImpl) Encrypt(alias string, plaintext []byte) (string, error) {
	ct, err := e.encryptOnce(alias, plaintext)
	if err == nil {
		return ct, nil
	}

	// self-healing: a permanently invalidated key is deleted and
	// regenerated, then the encryption is retried exactly once
	if crypto.CodeOf(err) == crypto.RetCKeyPermanentlyInvalid {
		if delErr := e.ring.Delete(alias); delErr != nil {
			return "", mapKeyringErr(delErr, "encrypt")
		}
		return e.encryptOnce(alias, plaintext)
	}

	return "", err
}

func (e *engineImpl) encryptOnce(alias string, plaintext []byte) (string, error) {
	key, err := e.ring.Fetch(alias)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		// missing keys are created transparently on encrypt
		key, err = e.ring.Generate(alias, e.keyBytes, e.unlocked)
	}
	if err != nil {
		return "", mapKeyringErr(err, "encrypt")
	}

	aead, err := e.newAEAD(key)
	if err != nil {
		return "", crypto.NewError(crypto.RetCInternalError, fmt.Sprintf("encrypt: %v", err))
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", crypto.NewError(crypto.RetCInternalError, fmt.Sprintf("encrypt: nonce: %v", err))
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(append(nonce, sealed...)), nil
}

func (e *engineImpl) Decrypt(alias string, ciphertext string) ([]byte, error) {
	key, err := e.ring.Fetch(alias)
	if err != nil {
		cerr := mapKeyringErr(err, "decrypt")
		if cerr.Code == crypto.RetCKeyPermanentlyInvalid {
			// the key is gone for good, drop the dead alias so future
			// encrypts start from a fresh key
			_ = e.ring.Delete(alias)
		}
		return nil, cerr
	}

	aead, err := e.newAEAD(key)
	if err != nil {
		return nil, crypto.NewError(crypto.RetCInternalError, fmt.Sprintf("decrypt: %v", err))
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, crypto.NewError(crypto.RetCDecodeFailure, fmt.Sprintf("decrypt: base64: %v", err))
	}
	if len(raw) < aead.NonceSize() {
		return nil, crypto.NewError(crypto.RetCDecodeFailure, "decrypt: ciphertext shorter than nonce")
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, crypto.NewError(crypto.RetCDecodeFailure, "decrypt: authentication failed")
	}

	return plaintext, nil
}

func (e *engineImpl) DeleteKey(alias string) error {
	if err := e.ring.Delete(alias); err != nil {
		return mapKeyringErr(err, "delete")
	}
	return nil
}

func (e *engineImpl) UpdateKeyAccessibility(alias string, requireUnlocked bool) error {
	err := e.ring.SetAccessibility(alias, requireUnlocked)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		// no key means nothing to re-tag
		return nil
	}
	if err != nil {
		return mapKeyringErr(err, "update accessibility")
	}
	return nil
}
