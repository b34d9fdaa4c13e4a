package vault

import (
	"context"
	"testing"
	"time"

	"github.com/sealkv/sealkv/lib/crypto/aead"
	"github.com/sealkv/sealkv/lib/crypto/keyring"
	"github.com/sealkv/sealkv/lib/store"
	"github.com/sealkv/sealkv/lib/store/mstore"
)

// --------------------------------------------------------------------------
// Test Helpers
// --------------------------------------------------------------------------

type testEnv struct {
	st   store.IDurableStore
	ring *keyring.MemoryKeyring
	v    IVault
}

// newTestVault builds a vault over a fresh in-memory store and keyring.
// mutate may adjust the vault and engine options before construction.
func newTestVault(t *testing.T, mutate func(vo *Options, eo *aead.Options)) *testEnv {
	t.Helper()

	st := mstore.NewMemoryStore()
	ring := keyring.NewMemoryKeyring()

	vo := DefaultOptions()
	vo.CoalesceWindow = 5 * time.Millisecond
	eo := aead.DefaultOptions()
	if mutate != nil {
		mutate(vo, eo)
	}

	v := openVault(t, st, ring, vo, eo)

	t.Cleanup(func() {
		v.Close()
		st.Close()
	})
	return &testEnv{st: st, ring: ring, v: v}
}

// openVault builds a vault over existing infrastructure, e.g. to simulate a
// process restart.
func openVault(t *testing.T, st store.IDurableStore, ring keyring.IKeyring, vo *Options, eo *aead.Options) IVault {
	t.Helper()

	engine, err := aead.NewEngine(ring, eo)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	v, err := New(st, engine, nil, vo)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return v
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timeout waiting for %s", what)
}

// --------------------------------------------------------------------------
// Round Trips
// --------------------------------------------------------------------------

func TestPutGetRoundTrip(t *testing.T) {
	env := newTestVault(t, nil)
	ctx := context.Background()

	cases := []struct {
		key string
		val any
	}{
		{"b", true},
		{"i", int64(-9007199254740993)},
		{"f", 3.25},
		{"s", "hello"},
	}

	for _, c := range cases {
		if err := env.v.Put(ctx, c.key, c.val, false); err != nil {
			t.Fatalf("Put %s failed: %v", c.key, err)
		}
	}

	for _, c := range cases {
		got, err := env.v.Get(ctx, c.key, nil, false)
		if err != nil {
			t.Fatalf("Get %s failed: %v", c.key, err)
		}
		if got != c.val {
			t.Errorf("Key %s: expected %v, got %v", c.key, c.val, got)
		}
	}

	// absent keys resolve to the default
	got, err := env.v.Get(ctx, "missing", "DEFAULT", false)
	if err != nil || got != "DEFAULT" {
		t.Errorf("Expected DEFAULT for missing key, got %v (err %v)", got, err)
	}
}

func TestTypedGetters(t *testing.T) {
	env := newTestVault(t, nil)
	ctx := context.Background()

	if err := env.v.Put(ctx, "n", int64(42), false); err != nil {
		t.Fatal(err)
	}

	if got, _ := GetTyped(ctx, env.v, "n", int64(0), false); got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}
	// numeric kinds convert into each other
	if got, _ := GetTyped(ctx, env.v, "n", 0, false); got != 42 {
		t.Errorf("Expected int 42, got %d", got)
	}
	if got, _ := GetTyped(ctx, env.v, "n", 0.0, false); got != 42.0 {
		t.Errorf("Expected 42.0, got %f", got)
	}
	// mismatched kinds fall back to the default
	if got, _ := GetTyped(ctx, env.v, "n", "fallback", false); got != "fallback" {
		t.Errorf("Expected fallback, got %q", got)
	}

	// named getters behave like their GetTyped instantiation
	if got, _ := GetInt64(ctx, env.v, "n", 0, false); got != 42 {
		t.Errorf("GetInt64: expected 42, got %d", got)
	}
	if got, _ := GetFloat64(ctx, env.v, "n", 0, false); got != 42.0 {
		t.Errorf("GetFloat64: expected 42.0, got %f", got)
	}
	if got, _ := GetString(ctx, env.v, "n", "fallback", false); got != "fallback" {
		t.Errorf("GetString: expected fallback, got %q", got)
	}
	if got, _ := GetBool(ctx, env.v, "missing", true, false); got != true {
		t.Error("GetBool: expected default true for absent key")
	}
}

func TestNullVersusAbsent(t *testing.T) {
	env := newTestVault(t, nil)
	ctx := context.Background()

	for _, encrypted := range []bool{false, true} {
		if err := env.v.Put(ctx, "null-key", nil, encrypted); err != nil {
			t.Fatalf("Put nil (encrypted=%v) failed: %v", encrypted, err)
		}

		got, err := env.v.Get(ctx, "null-key", "DEFAULT", encrypted)
		if err != nil {
			t.Fatalf("Get (encrypted=%v) failed: %v", encrypted, err)
		}
		if got != nil {
			t.Errorf("Stored null (encrypted=%v) should resolve to nil, got %v", encrypted, got)
		}

		got, _ = env.v.Get(ctx, "absent-key", "DEFAULT", encrypted)
		if got != "DEFAULT" {
			t.Errorf("Absent key (encrypted=%v) should resolve to the default, got %v", encrypted, got)
		}
	}
}

func TestGetJSON(t *testing.T) {
	env := newTestVault(t, nil)
	ctx := context.Background()

	type profile struct {
		Name  string `json:"name"`
		Score int    `json:"score"`
	}

	for _, encrypted := range []bool{false, true} {
		in := profile{Name: "ada", Score: 7}
		if err := env.v.Put(ctx, "profile", in, encrypted); err != nil {
			t.Fatalf("Put (encrypted=%v) failed: %v", encrypted, err)
		}

		var out profile
		found, err := env.v.GetJSON(ctx, "profile", &out, encrypted)
		if err != nil || !found {
			t.Fatalf("GetJSON (encrypted=%v): found=%v err=%v", encrypted, found, err)
		}
		if out != in {
			t.Errorf("Expected %+v, got %+v", in, out)
		}

		found, err = env.v.GetJSON(ctx, "no-such-profile", &out, encrypted)
		if err != nil || found {
			t.Errorf("Missing key should report found=false, got found=%v err=%v", found, err)
		}
	}
}

// --------------------------------------------------------------------------
// Encrypted Persistence
// --------------------------------------------------------------------------

func TestEncryptedValueIsCiphertextAtRest(t *testing.T) {
	env := newTestVault(t, nil)
	ctx := context.Background()

	if err := env.v.Put(ctx, "secret", "s3cr3t", true); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := env.v.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	v, ok, err := env.st.Get("encrypted_secret")
	if err != nil || !ok {
		t.Fatalf("Expected persisted entry: ok=%v err=%v", ok, err)
	}
	if v.Str == "s3cr3t" || v.Str == `"s3cr3t"` {
		t.Error("Value was persisted in plaintext")
	}

	got, err := env.v.Get(ctx, "secret", "", true)
	if err != nil || got != "s3cr3t" {
		t.Errorf("Round trip failed: got %v err %v", got, err)
	}
}

func TestEncryptedAndPlainCoexist(t *testing.T) {
	env := newTestVault(t, nil)
	ctx := context.Background()

	if err := env.v.Put(ctx, "k", "plain", false); err != nil {
		t.Fatal(err)
	}
	if err := env.v.Put(ctx, "k", "sealed", true); err != nil {
		t.Fatal(err)
	}

	if got, _ := env.v.Get(ctx, "k", "", false); got != "plain" {
		t.Errorf("Expected plain, got %v", got)
	}
	if got, _ := env.v.Get(ctx, "k", "", true); got != "sealed" {
		t.Errorf("Expected sealed, got %v", got)
	}
}

// --------------------------------------------------------------------------
// Key Validation
// --------------------------------------------------------------------------

func TestKeyValidation(t *testing.T) {
	env := newTestVault(t, nil)
	ctx := context.Background()

	for _, key := range []string{"", "encrypted_x", "has\x00nul"} {
		if err := env.v.Put(ctx, key, "v", false); err == nil {
			t.Errorf("Put with key %q should fail", key)
		}
		if _, err := env.v.Get(ctx, key, nil, false); err == nil {
			t.Errorf("Get with key %q should fail", key)
		}
	}
}

// --------------------------------------------------------------------------
// ClearAll / Close
// --------------------------------------------------------------------------

func TestClearAll(t *testing.T) {
	env := newTestVault(t, nil)
	ctx := context.Background()

	if err := env.v.Put(ctx, "p", "v1", false); err != nil {
		t.Fatal(err)
	}
	if err := env.v.Put(ctx, "e", "v2", true); err != nil {
		t.Fatal(err)
	}

	if err := env.v.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}

	if got, _ := env.v.Get(ctx, "p", "DEFAULT", false); got != "DEFAULT" {
		t.Errorf("Expected DEFAULT after ClearAll, got %v", got)
	}
	if got, _ := env.v.Get(ctx, "e", "DEFAULT", true); got != "DEFAULT" {
		t.Errorf("Expected DEFAULT after ClearAll, got %v", got)
	}

	snap, err := env.st.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != 0 {
		t.Errorf("Expected empty store after ClearAll, got %d entries", len(snap))
	}

	// the vault stays usable
	if err := env.v.Put(ctx, "p", "again", false); err != nil {
		t.Fatalf("Put after ClearAll failed: %v", err)
	}
	if got, _ := env.v.Get(ctx, "p", "", false); got != "again" {
		t.Errorf("Expected again, got %v", got)
	}
}

func TestCloseDrainsPendingWrites(t *testing.T) {
	st := mstore.NewMemoryStore()
	defer st.Close()
	ring := keyring.NewMemoryKeyring()

	vo := DefaultOptions()
	vo.CoalesceWindow = 50 * time.Millisecond

	v := openVault(t, st, ring, vo, aead.DefaultOptions())
	if err := v.PutDirect("k", "pending", false); err != nil {
		t.Fatal(err)
	}
	if err := v.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, ok, _ := st.Get("k"); !ok {
		t.Error("Close should flush the pending write")
	}

	// everything fails after close
	if err := v.PutDirect("k", "late", false); err == nil {
		t.Error("Put after Close should fail")
	}
	if _, err := v.GetDirect("k", nil, false); err == nil {
		t.Error("Get after Close should fail")
	}
	if err := v.Close(); err != nil {
		t.Errorf("Double close should succeed, got %v", err)
	}
}
