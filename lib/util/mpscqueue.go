// Package util provides shared low-level building blocks: a lock-free
// Multi-Producer Single-Consumer (MPSC) queue and a small leveled logger.
//
// MPSC queue guarantees:
//
//   - Lock-Free: producers append with atomic CAS operations only
//   - Unbounded: the queue grows as needed, limited only by memory
//   - Thread-Safe writes: any number of goroutines may Push() concurrently
//   - Single Consumer: one goroutine consumes values via the Recv() channel
//   - Per-producer ordering: items pushed by one goroutine are received in
//     push order; there is no global FIFO guarantee across producers
package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// qnode is a single element of the queue's linked list
type qnode[T any] struct {
	value *T
	next  atomic.Pointer[qnode[T]]
}

// MPSCQueue is a lock-free multi-producer single-consumer queue backed by
// a linked list. Producers append via CAS, a dedicated goroutine drains the
// list into the Recv() channel.
type MPSCQueue[T any] struct {
	head     atomic.Pointer[qnode[T]]
	tail     atomic.Pointer[qnode[T]]
	out      chan *T
	consumer sync.WaitGroup
	closed   atomic.Bool

	// condition variable so the drain goroutine can sleep while idle
	mu   sync.Mutex
	cond *sync.Cond
}

// NewMPSCQueue creates a new queue and starts its drain goroutine.
func NewMPSCQueue[T any]() *MPSCQueue[T] {
	// sentinel node so head/tail are never nil
	sentinel := &qnode[T]{}

	q := &MPSCQueue[T]{
		out: make(chan *T),
	}
	q.cond = sync.NewCond(&q.mu)

	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.drain()

	return q
}

// Push adds an item to the queue. It never blocks.
// Returns true if the item was accepted, false if the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *MPSCQueue[T]) Push(value *T) bool {
	if value == nil {
		return false
	}

	if q.closed.Load() {
		return false
	}

	newNode := &qnode[T]{value: value}

	var backoff uint8 = 0

	for {
		tailNode := q.tail.Load()

		next := tailNode.next.Load()
		if next == nil {
			// tail has no successor yet, try to append our node
			if tailNode.next.CompareAndSwap(nil, newNode) {
				/*
				 Appended. The tail CAS below may fail if another producer
				 already helped move it forward - that is fine, the tail
				 pointer always catches up eventually.
				*/
				q.tail.CompareAndSwap(tailNode, newNode)

				// wake the drain goroutine
				q.cond.Signal()

				return true
			}
		} else {
			// help a stalled producer move the tail forward
			q.tail.CompareAndSwap(tailNode, next)
		}

		/*
		 Exponential backoff under contention: spin for a while, then yield.
		 Backing off exponentially avoids all producers retrying in lockstep
		 after a failed CAS.
		*/
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// drain moves items from the linked list to the output channel and releases
// consumed nodes for the garbage collector.
func (q *MPSCQueue[T]) drain() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		hasItems := false

		for {
			head := q.head.Load()
			next := head.next.Load()

			if next == nil {
				break // queue empty
			}

			hasItems = true

			value := next.value

			// advance head, freeing the old node
			q.head.Store(next)

			q.out <- value

			// clear the reference after sending so the node can be collected
			next.value = nil
		}

		// exit once closed and fully drained
		if !hasItems && q.closed.Load() {
			return
		}

		if !hasItems {
			q.mu.Lock()
			// double-check after acquiring the lock, a producer may have
			// pushed between the empty check and here
			head := q.head.Load()
			if head.next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns the receive-only channel the drain goroutine feeds.
// Suitable for use in select statements.
func (q *MPSCQueue[T]) Recv() <-chan *T {
	return q.out
}

// Close closes the queue, preventing further writes.
// Items already queued are still delivered to the consumer.
func (q *MPSCQueue[T]) Close() {
	q.closed.Store(true)

	// wake the drain goroutine if it is waiting
	q.cond.Signal()
}

// IsClosed returns true if the queue is closed.
func (q *MPSCQueue[T]) IsClosed() bool {
	return q.closed.Load()
}
