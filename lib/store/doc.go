// Package store defines the durable key-value backend contract the vault
// persists into, along with the typed primitive Value and the atomic Tx
// used to commit whole write batches in one step.
//
// The package focuses on:
//   - A unified interface (IDurableStore) for the durable backend, so the
//     caching engine never depends on a concrete persistence mechanism
//   - Atomic multi-key transactions - a coalesced write batch lands as one
//     unit or not at all
//   - Change observability - a Watch() stream signals committed
//     transactions so the cache layer can fold external changes back in
//
// Implementations:
//
//	The package includes two implementations of the IDurableStore interface:
//
//	- Memory Store (mstore): a process-local implementation backed by a
//	  concurrent map. State does not survive the process; it is the default
//	  backend for tests and for callers that only need the caching and
//	  encryption semantics.
//	  Available in the "github.com/sealkv/sealkv/lib/store/mstore" package.
//
//	- File Store (fstore): a single-file implementation that keeps the full
//	  state in memory and rewrites the file through an atomic rename on
//	  every commit. Suitable for configuration-sized data sets (hundreds to
//	  low thousands of keys).
//	  Available in the "github.com/sealkv/sealkv/lib/store/fstore" package.
package store
