package fstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sealkv/sealkv/lib/store"
	"github.com/sealkv/sealkv/lib/store/storetest"
)

func TestFileStore(t *testing.T) {
	storetest.RunDurableStoreTests(t, "fstore", func(t *testing.T) store.IDurableStore {
		s, err := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
		if err != nil {
			t.Fatalf("NewFileStore failed: %v", err)
		}
		return s
	})
}

func TestFileStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	err = s.Apply(store.Tx{Put: map[string]store.Value{
		"b": store.BoolValue(true),
		"i": store.IntValue(1 << 62),
		"f": store.FloatValue(2.5),
		"s": store.StringValue("hello"),
	}})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// reopen and verify
	s2, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s2.Close()

	snap, err := s2.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap) != 4 {
		t.Fatalf("Expected 4 entries after reopen, got %d", len(snap))
	}
	if v := snap["i"]; v.Int != 1<<62 {
		t.Errorf("64-bit int did not survive the round trip: %d", v.Int)
	}
	if v := snap["s"]; v.Str != "hello" {
		t.Errorf("Expected hello, got %q", v.Str)
	}
}

func TestFileStoreFailedCommitLeavesStateIntact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	defer s.Close()

	if err := s.Apply(store.Tx{Put: map[string]store.Value{
		"k": store.StringValue("committed"),
	}}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	// a directory squatting on the temp path makes the next persist fail
	if err := os.Mkdir(path+".tmp", 0o700); err != nil {
		t.Fatal(err)
	}

	err = s.Apply(store.Tx{
		Put:    map[string]store.Value{"k2": store.StringValue("lost")},
		Delete: []string{"k"},
	})
	if err == nil {
		t.Fatal("Apply should surface the persist failure")
	}

	// the failed transaction must not be visible in memory
	if _, ok, _ := s.Get("k2"); ok {
		t.Error("Failed commit must not leave its puts in memory")
	}
	if _, ok, _ := s.Get("k"); !ok {
		t.Error("Failed commit must not apply its deletes in memory")
	}

	// once the obstacle is gone the store commits normally again
	if err := os.Remove(path + ".tmp"); err != nil {
		t.Fatal(err)
	}
	if err := s.Apply(store.Tx{Put: map[string]store.Value{
		"k2": store.StringValue("retried"),
	}}); err != nil {
		t.Fatalf("Apply after recovery failed: %v", err)
	}
	if v, ok, _ := s.Get("k2"); !ok || v.Str != "retried" {
		t.Errorf("Expected retried, got ok=%v v=%q", ok, v.Str)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileStore(path); err == nil {
		t.Fatal("Opening a corrupt file should fail")
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "does-not-exist-yet.json"))
	if err != nil {
		t.Fatalf("A missing file should open as an empty store, got %v", err)
	}
	defer s.Close()

	snap, _ := s.Snapshot()
	if len(snap) != 0 {
		t.Errorf("Expected empty store, got %d entries", len(snap))
	}
}
