package keyring

import (
	"bytes"
	"testing"
)

func TestMemoryKeyringLifecycle(t *testing.T) {
	r := NewMemoryKeyring()

	if _, err := r.Fetch("a"); err != ErrKeyNotFound {
		t.Fatalf("Expected ErrKeyNotFound, got %v", err)
	}

	key, err := r.Generate("a", 32, false)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("Expected 32 byte key, got %d", len(key))
	}

	got, err := r.Fetch("a")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Error("Fetched key differs from generated key")
	}

	// Fetch returns a copy, mutating it must not affect the stored key
	got[0] ^= 0xff
	again, _ := r.Fetch("a")
	if !bytes.Equal(again, key) {
		t.Error("Fetch should return a copy of the key material")
	}

	if err := r.Delete("a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := r.Fetch("a"); err != ErrKeyNotFound {
		t.Errorf("Expected ErrKeyNotFound after delete, got %v", err)
	}

	// deleting a missing key is a no-op
	if err := r.Delete("a"); err != nil {
		t.Errorf("Delete of missing key should succeed, got %v", err)
	}
}

func TestMemoryKeyringLocking(t *testing.T) {
	r := NewMemoryKeyring()

	if _, err := r.Generate("guarded", 32, true); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if _, err := r.Generate("open", 32, false); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	r.Lock()

	if _, err := r.Fetch("guarded"); err != ErrLocked {
		t.Errorf("Expected ErrLocked for guarded key, got %v", err)
	}
	// keys without the unlock requirement stay accessible
	if _, err := r.Fetch("open"); err != nil {
		t.Errorf("Open key should be accessible while locked, got %v", err)
	}

	r.Unlock()
	if _, err := r.Fetch("guarded"); err != nil {
		t.Errorf("Guarded key should be accessible after unlock, got %v", err)
	}
}

func TestMemoryKeyringInvalidate(t *testing.T) {
	r := NewMemoryKeyring()

	if _, err := r.Generate("x", 32, false); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	r.Invalidate("x")

	if _, err := r.Fetch("x"); err != ErrKeyInvalidated {
		t.Errorf("Expected ErrKeyInvalidated, got %v", err)
	}
	if err := r.SetAccessibility("x", true); err != ErrKeyInvalidated {
		t.Errorf("Expected ErrKeyInvalidated from SetAccessibility, got %v", err)
	}

	// invalidating a missing alias leaves no trace
	r.Invalidate("missing")
	if _, err := r.Fetch("missing"); err != ErrKeyNotFound {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}
}

func TestMemoryKeyringSetAccessibility(t *testing.T) {
	r := NewMemoryKeyring()

	if err := r.SetAccessibility("nope", true); err != ErrKeyNotFound {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}

	if _, err := r.Generate("k", 32, false); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if err := r.SetAccessibility("k", true); err != nil {
		t.Fatalf("SetAccessibility failed: %v", err)
	}

	r.Lock()
	if _, err := r.Fetch("k"); err != ErrLocked {
		t.Errorf("Key should require unlock after re-tagging, got %v", err)
	}
}

func TestFileKeyringLifecycle(t *testing.T) {
	r, err := NewFileKeyring(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileKeyring failed: %v", err)
	}

	if _, err := r.Fetch("a"); err != ErrKeyNotFound {
		t.Fatalf("Expected ErrKeyNotFound, got %v", err)
	}

	key, err := r.Generate("a", 32, false)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	got, err := r.Fetch("a")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Error("Fetched key differs from generated key")
	}

	// regeneration replaces the key
	key2, err := r.Generate("a", 32, false)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if bytes.Equal(key, key2) {
		t.Error("Regenerated key should differ")
	}

	if err := r.Delete("a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := r.Fetch("a"); err != ErrKeyNotFound {
		t.Errorf("Expected ErrKeyNotFound after delete, got %v", err)
	}
}
