package fstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/sealkv/sealkv/lib/store"
)

// fileVersion identifies the on-disk format
const fileVersion = 1

// --------------------------------------------------------------------------
// On-Disk Format
// --------------------------------------------------------------------------

// fileValue is the JSON shape of one stored primitive. Integers are encoded
// as strings so 64-bit values survive the round trip through JSON numbers.
type fileValue struct {
	Kind  string  `json:"kind"`
	Bool  bool    `json:"bool,omitempty"`
	Int   string  `json:"int,omitempty"`
	Float float64 `json:"float,omitempty"`
	Str   string  `json:"str,omitempty"`
}

type fileState struct {
	Version int                  `json:"version"`
	Entries map[string]fileValue `json:"entries"`
}

func toFileValue(v store.Value) fileValue {
	switch v.Kind {
	case store.KindBool:
		return fileValue{Kind: "bool", Bool: v.Bool}
	case store.KindInt:
		return fileValue{Kind: "int", Int: strconv.FormatInt(v.Int, 10)}
	case store.KindFloat:
		return fileValue{Kind: "float", Float: v.Float}
	default:
		return fileValue{Kind: "string", Str: v.Str}
	}
}

func fromFileValue(v fileValue) (store.Value, error) {
	switch v.Kind {
	case "bool":
		return store.BoolValue(v.Bool), nil
	case "int":
		i, err := strconv.ParseInt(v.Int, 10, 64)
		if err != nil {
			return store.Value{}, fmt.Errorf("invalid int payload %q: %w", v.Int, err)
		}
		return store.IntValue(i), nil
	case "float":
		return store.FloatValue(v.Float), nil
	case "string":
		return store.StringValue(v.Str), nil
	default:
		return store.Value{}, fmt.Errorf("unknown value kind %q", v.Kind)
	}
}

// --------------------------------------------------------------------------
// Store Implementation
// --------------------------------------------------------------------------

type storeImpl struct {
	path string

	mu   sync.RWMutex
	data map[string]store.Value

	watchMu  sync.Mutex
	watchers map[uint64]chan struct{}
	watchSeq uint64

	closed atomic.Bool
}

// NewFileStore opens (or creates) a single-file durable store at path. The
// full state is kept in memory; every commit rewrites the file through an
// atomic rename, so a crash leaves either the previous or the new state,
// never a torn file.
func NewFileStore(path string) (store.IDurableStore, error) {
	s := &storeImpl{
		path:     path,
		data:     map[string]store.Value{},
		watchers: map[uint64]chan struct{}{},
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads the persisted state. A missing file means an empty store.
func (s *storeImpl) load() error {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return store.NewError(store.RetCInternalError, fmt.Sprintf("read %s: %v", s.path, err))
	}

	var state fileState
	if err := json.Unmarshal(raw, &state); err != nil {
		return store.NewError(store.RetCCorrupted, fmt.Sprintf("parse %s: %v", s.path, err))
	}
	if state.Version != fileVersion {
		return store.NewError(store.RetCCorrupted, fmt.Sprintf("unsupported version %d in %s", state.Version, s.path))
	}

	for k, fv := range state.Entries {
		v, err := fromFileValue(fv)
		if err != nil {
			return store.NewError(store.RetCCorrupted, fmt.Sprintf("entry %q in %s: %v", k, s.path, err))
		}
		s.data[k] = v
	}
	return nil
}

// persist writes the given state to disk. Must be called with mu held.
func (s *storeImpl) persist(data map[string]store.Value) error {
	state := fileState{
		Version: fileVersion,
		Entries: make(map[string]fileValue, len(data)),
	}
	for k, v := range data {
		state.Entries[k] = toFileValue(v)
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return store.NewError(store.RetCInternalError, fmt.Sprintf("marshal state: %v", err))
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return store.NewError(store.RetCInternalError, fmt.Sprintf("write %s: %v", tmp, err))
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return store.NewError(store.RetCInternalError, fmt.Sprintf("rename %s: %v", tmp, err))
	}
	return nil
}

// notify signals all watchers that a transaction committed (coalescing, see
// the mstore sibling for the rationale).
func (s *storeImpl) notify() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(key string) (store.Value, bool, error) {
	if s.closed.Load() {
		return store.Value{}, false, store.NewError(store.RetCClosed, "store is closed")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *storeImpl) Snapshot() (map[string]store.Value, error) {
	if s.closed.Load() {
		return nil, store.NewError(store.RetCClosed, "store is closed")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]store.Value, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out, nil
}

func (s *storeImpl) Apply(tx store.Tx) error {
	if s.closed.Load() {
		return store.NewError(store.RetCClosed, "store is closed")
	}
	if tx.Empty() {
		return nil
	}

	s.mu.Lock()
	// stage the transaction into a copy: a failed persist must leave the
	// in-memory state matching the file
	next := make(map[string]store.Value, len(s.data)+len(tx.Put))
	for k, v := range s.data {
		next[k] = v
	}
	for k, v := range tx.Put {
		next[k] = v
	}
	for _, k := range tx.Delete {
		delete(next, k)
	}
	err := s.persist(next)
	if err == nil {
		s.data = next
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.notify()
	return nil
}

func (s *storeImpl) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.watchMu.Lock()
	s.watchSeq++
	id := s.watchSeq
	s.watchers[id] = ch
	s.watchMu.Unlock()

	cancel := func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		if _, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(ch)
		}
	}

	return ch, cancel
}

func (s *storeImpl) Clear() error {
	if s.closed.Load() {
		return store.NewError(store.RetCClosed, "store is closed")
	}

	s.mu.Lock()
	next := map[string]store.Value{}
	err := s.persist(next)
	if err == nil {
		s.data = next
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.notify()
	return nil
}

func (s *storeImpl) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
	}
	return nil
}

// Path returns the backing file path (useful for diagnostics).
func (s *storeImpl) Path() string {
	return filepath.Clean(s.path)
}
