package mstore

import (
	"testing"

	"github.com/sealkv/sealkv/lib/store"
	"github.com/sealkv/sealkv/lib/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.RunDurableStoreTests(t, "mstore", func(t *testing.T) store.IDurableStore {
		return NewMemoryStore()
	})
}
