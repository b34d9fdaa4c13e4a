package vault

import (
	"time"

	"github.com/sealkv/sealkv/lib/crypto"
	"github.com/sealkv/sealkv/lib/store"
	"github.com/sealkv/sealkv/lib/util"
)

// --------------------------------------------------------------------------
// Write Batcher
// --------------------------------------------------------------------------

// batcher drains the write queue and flushes coalesced batches to the
// durable store. After the first operation of a batch arrives it keeps
// accumulating for one coalescing window (or until the batch is full), then
// commits everything as a single transaction. Encryption is deferred to the
// flush so rapid successive writes to one key cost one encryption, not one
// per write.
//
// Failure handling is deliberately simple: if encryption or the commit
// fails, the whole batch is dropped with a warning. The hot cache keeps the
// optimistic values and the dirty flags stay set, so readers keep seeing
// the newest data; durability for those writes depends on a later write to
// the same keys. There is no retry queue.
type batcher struct {
	queue    *util.MPSCQueue[writeOp]
	st       store.IDurableStore
	engine   crypto.IEngine
	hot      *hotCache
	policy   MemoryPolicy
	window   time.Duration
	maxBatch int
	met      *vaultMetrics
	log      util.ILogger
	done     chan struct{}
}

func newBatcher(st store.IDurableStore, engine crypto.IEngine, hot *hotCache, opts *Options, met *vaultMetrics) *batcher {
	b := &batcher{
		queue:    util.NewMPSCQueue[writeOp](),
		st:       st,
		engine:   engine,
		hot:      hot,
		policy:   opts.MemoryPolicy,
		window:   opts.CoalesceWindow,
		maxBatch: opts.MaxBatchSize,
		met:      met,
		log:      util.GetLogger("vault/batcher"),
		done:     make(chan struct{}),
	}
	go b.run()
	return b
}

// enqueue hands an operation to the flush goroutine. Returns false once the
// vault is closed.
func (b *batcher) enqueue(op *writeOp) bool {
	return b.queue.Push(op)
}

// shutdown stops accepting writes, flushes what is queued and waits for the
// flush goroutine to exit.
func (b *batcher) shutdown() {
	b.queue.Close()
	<-b.done
}

func (b *batcher) run() {
	defer close(b.done)

	for first := range b.queue.Recv() {
		b.flush(b.collect(first))
	}
}

// collect gathers one batch: the triggering operation plus everything that
// arrives within the coalescing window, capped at maxBatch.
func (b *batcher) collect(first *writeOp) []*writeOp {
	batch := []*writeOp{first}

	timer := time.NewTimer(b.window)
	defer timer.Stop()

	for len(batch) < b.maxBatch {
		select {
		case op, ok := <-b.queue.Recv():
			if !ok {
				return batch
			}
			batch = append(batch, op)
		case <-timer.C:
			return batch
		}
	}
	return batch
}

// encSwap records a pending hot-cache plaintext-to-ciphertext swap.
type encSwap struct {
	ck    string
	plain plainText
	ct    cipherText
}

func (b *batcher) flush(batch []*writeOp) {
	puts := map[string]store.Value{}
	deletes := map[string]struct{}{}
	var swaps []encSwap
	deadAliases := map[string]string{}
	var barriers []chan struct{}

	// barriers resolve whether the batch commits or drops: Sync promises
	// "attempted", not "persisted"
	release := func() {
		for _, done := range barriers {
			close(done)
		}
	}

	// later operations on the same key win within a batch
	for _, op := range batch {
		switch op.kind {
		case opPut:
			puts[op.ck] = storeValueFor(op.value)
			delete(deletes, op.ck)

		case opPutEncrypted:
			ct, err := b.engine.Encrypt(op.alias, []byte(op.plain))
			if err != nil {
				b.log.Warningf("encryption failed, dropping batch of %d operations: %v", len(batch), err)
				b.met.batchDrops.Inc()
				release()
				return
			}
			puts[op.ck] = store.StringValue(ct)
			delete(deletes, op.ck)
			// the put revived the key: its material just encrypted this
			// value and must survive an earlier delete in the same batch
			delete(deadAliases, op.ck)
			swaps = append(swaps, encSwap{ck: op.ck, plain: op.plain, ct: cipherText(ct)})

		case opDelete:
			deletes[op.ck] = struct{}{}
			delete(puts, op.ck)
			if op.encrypted {
				deadAliases[op.ck] = op.alias
			}

		case opSync:
			barriers = append(barriers, op.done)
		}
	}

	tx := store.Tx{Put: puts}
	for ck := range deletes {
		tx.Delete = append(tx.Delete, ck)
	}

	if !tx.Empty() {
		if err := b.st.Apply(tx); err != nil {
			b.log.Warningf("commit failed, dropping batch of %d operations: %v", len(batch), err)
			b.met.batchDrops.Inc()
			release()
			return
		}
	}

	// key material cleanup happens outside the transaction: a crash here
	// leaves an unused key behind, which the keyring tolerates
	for _, alias := range deadAliases {
		if err := b.engine.DeleteKey(alias); err != nil {
			b.log.Debugf("deleting key material failed: %v", err)
		}
	}

	// drop the transient plaintext from the hot cache now that the
	// ciphertext is durable (unless the policy wants plaintext resident)
	if b.policy != PolicyPlainText {
		for _, sw := range swaps {
			b.hot.swapPlainToCipher(sw.ck, sw.plain, sw.ct)
		}
	}

	b.met.batchFlushes.Inc()
	release()
}
