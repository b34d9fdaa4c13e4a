package keyring

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FileKeyring is a directory-backed IKeyring for platforms without a
// hardware keystore. Each alias maps to one file (mode 0600) inside the
// keyring directory; the file name is a hash of the alias so arbitrary
// alias strings stay filesystem-safe.
//
// A file keyring has no lock state: keys are always accessible and
// SetAccessibility only records the flag for completeness. A key file whose
// content was truncated or tampered with reports ErrKeyInvalidated.
type FileKeyring struct {
	dir string
	mu  sync.Mutex
}

// minimum plausible key size, anything shorter is treated as corruption
const minKeySize = 16

// NewFileKeyring creates (if needed) the keyring directory and returns a
// keyring over it.
func NewFileKeyring(dir string) (*FileKeyring, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("keyring: create dir: %w", err)
	}
	return &FileKeyring{dir: dir}, nil
}

// path returns the file path for an alias
func (r *FileKeyring) path(alias string) string {
	sum := sha256.Sum256([]byte(alias))
	return filepath.Join(r.dir, hex.EncodeToString(sum[:16])+".key")
}

// --------------------------------------------------------------------------
// Interface Methods (docu see keyring.IKeyring)
// --------------------------------------------------------------------------

func (r *FileKeyring) Fetch(alias string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, err := os.ReadFile(r.path(alias))
	if os.IsNotExist(err) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(key) < minKeySize {
		return nil, ErrKeyInvalidated
	}
	return key, nil
}

func (r *FileKeyring) Generate(alias string, size int, requireUnlocked bool) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}

	// write-then-rename so a crash never leaves a half-written key behind
	tmp := r.path(alias) + ".tmp"
	if err := os.WriteFile(tmp, key, 0o600); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, r.path(alias)); err != nil {
		return nil, err
	}

	return key, nil
}

func (r *FileKeyring) Delete(alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.path(alias))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (r *FileKeyring) SetAccessibility(alias string, requireUnlocked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// no lock state on a file keyring; just verify the key exists
	if _, err := os.Stat(r.path(alias)); os.IsNotExist(err) {
		return ErrKeyNotFound
	} else if err != nil {
		return err
	}
	return nil
}
