// Package storetest provides a reusable conformance suite for
// store.IDurableStore implementations.
package storetest

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sealkv/sealkv/lib/store"
)

// StoreFactory is a function that creates a fresh store instance
type StoreFactory func(t *testing.T) store.IDurableStore

// RunDurableStoreTests runs the conformance suite against an implementation.
func RunDurableStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("GetApply", func(t *testing.T) {
			testGetApply(t, factory(t))
		})

		t.Run("ValueKinds", func(t *testing.T) {
			testValueKinds(t, factory(t))
		})

		t.Run("AtomicTx", func(t *testing.T) {
			testAtomicTx(t, factory(t))
		})

		t.Run("Snapshot", func(t *testing.T) {
			testSnapshot(t, factory(t))
		})

		t.Run("Watch", func(t *testing.T) {
			testWatch(t, factory(t))
		})

		t.Run("Clear", func(t *testing.T) {
			testClear(t, factory(t))
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, factory(t))
		})

		t.Run("ConcurrentApply", func(t *testing.T) {
			testConcurrentApply(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func put(t *testing.T, s store.IDurableStore, key string, v store.Value) {
	t.Helper()
	if err := s.Apply(store.Tx{Put: map[string]store.Value{key: v}}); err != nil {
		t.Fatalf("Apply failed for key %s: %v", key, err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testGetApply(t *testing.T, s store.IDurableStore) {
	defer s.Close()

	if _, ok, err := s.Get("missing"); err != nil || ok {
		t.Errorf("Expected missing key, got ok=%v err=%v", ok, err)
	}

	put(t, s, "k", store.StringValue("v1"))

	v, ok, err := s.Get("k")
	if err != nil || !ok {
		t.Fatalf("Expected key to exist, got ok=%v err=%v", ok, err)
	}
	if v.Str != "v1" {
		t.Errorf("Expected v1, got %q", v.Str)
	}

	// overwrite
	put(t, s, "k", store.StringValue("v2"))
	v, _, _ = s.Get("k")
	if v.Str != "v2" {
		t.Errorf("Expected v2 after overwrite, got %q", v.Str)
	}

	// delete
	if err := s.Apply(store.Tx{Delete: []string{"k"}}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := s.Get("k"); ok {
		t.Error("Key should be gone after delete")
	}

	// deleting a missing key is a no-op
	if err := s.Apply(store.Tx{Delete: []string{"k"}}); err != nil {
		t.Errorf("Delete of missing key should succeed, got %v", err)
	}
}

func testValueKinds(t *testing.T, s store.IDurableStore) {
	defer s.Close()

	cases := map[string]store.Value{
		"b": store.BoolValue(true),
		"i": store.IntValue(-9007199254740993), // outside float64 integer range
		"f": store.FloatValue(3.25),
		"s": store.StringValue("text"),
	}

	for k, v := range cases {
		put(t, s, k, v)
	}

	for k, want := range cases {
		got, ok, err := s.Get(k)
		if err != nil || !ok {
			t.Fatalf("Key %s missing: ok=%v err=%v", k, ok, err)
		}
		if got != want {
			t.Errorf("Key %s: expected %+v, got %+v", k, want, got)
		}
	}
}

func testAtomicTx(t *testing.T, s store.IDurableStore) {
	defer s.Close()

	put(t, s, "old", store.StringValue("x"))

	err := s.Apply(store.Tx{
		Put: map[string]store.Value{
			"a": store.IntValue(1),
			"b": store.IntValue(2),
		},
		Delete: []string{"old"},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if _, ok, _ := s.Get("a"); !ok {
		t.Error("a should exist")
	}
	if _, ok, _ := s.Get("b"); !ok {
		t.Error("b should exist")
	}
	if _, ok, _ := s.Get("old"); ok {
		t.Error("old should be deleted")
	}

	// empty transactions are no-ops
	if err := s.Apply(store.Tx{}); err != nil {
		t.Errorf("Empty Apply should succeed, got %v", err)
	}
}

func testSnapshot(t *testing.T, s store.IDurableStore) {
	defer s.Close()

	for i := 0; i < 10; i++ {
		put(t, s, fmt.Sprintf("k%d", i), store.IntValue(int64(i)))
	}

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap) != 10 {
		t.Fatalf("Expected 10 entries, got %d", len(snap))
	}

	// mutating the snapshot must not affect the store
	snap["k0"] = store.IntValue(99)
	v, _, _ := s.Get("k0")
	if v.Int != 0 {
		t.Error("Snapshot should be a copy")
	}
}

func testWatch(t *testing.T, s store.IDurableStore) {
	defer s.Close()

	ch, cancel := s.Watch()
	defer cancel()

	put(t, s, "w", store.StringValue("1"))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for change notification")
	}

	// signals coalesce: several commits yield at least one signal, and the
	// channel never blocks the committer
	for i := 0; i < 5; i++ {
		put(t, s, "w", store.StringValue(fmt.Sprintf("%d", i)))
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for coalesced notification")
	}

	// cancel closes the channel
	cancel()
	put(t, s, "w", store.StringValue("after-cancel"))
	select {
	case _, ok := <-ch:
		if ok {
			// a buffered pre-cancel signal is fine, but the channel must
			// be closed right after
			if _, ok := <-ch; ok {
				t.Error("Channel should be closed after cancel")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("Channel should be closed after cancel")
	}
}

func testClear(t *testing.T, s store.IDurableStore) {
	defer s.Close()

	for i := 0; i < 5; i++ {
		put(t, s, fmt.Sprintf("k%d", i), store.IntValue(int64(i)))
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap) != 0 {
		t.Errorf("Expected empty store after Clear, got %d entries", len(snap))
	}
}

func testClosed(t *testing.T, s store.IDurableStore) {
	ch, cancel := s.Watch()
	defer cancel()

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, _, err := s.Get("k"); err == nil {
		t.Error("Get on closed store should fail")
	}
	if err := s.Apply(store.Tx{Put: map[string]store.Value{"k": store.IntValue(1)}}); err == nil {
		t.Error("Apply on closed store should fail")
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Watch channel should be closed after store close")
		}
	case <-time.After(time.Second):
		t.Error("Watch channel should be closed after store close")
	}

	// double close is a no-op
	if err := s.Close(); err != nil {
		t.Errorf("Double close should succeed, got %v", err)
	}
}

func testConcurrentApply(t *testing.T, s store.IDurableStore) {
	defer s.Close()

	const numWorkers = 8
	const keysPerWorker = 50

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func(workerID int) {
			defer wg.Done()
			for i := 0; i < keysPerWorker; i++ {
				key := fmt.Sprintf("w%d-k%d", workerID, i)
				if err := s.Apply(store.Tx{Put: map[string]store.Value{key: store.IntValue(int64(i))}}); err != nil {
					t.Errorf("Apply failed: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap) != numWorkers*keysPerWorker {
		t.Errorf("Expected %d entries, got %d", numWorkers*keysPerWorker, len(snap))
	}
}
