package vault

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// opKind discriminates the write-queue payload.
type opKind int

const (
	// opPut persists a normalized primitive at an unencrypted slot
	opPut opKind = iota
	// opPutEncrypted encrypts plaintext during the flush and persists the
	// resulting ciphertext
	opPutEncrypted
	// opDelete removes a slot (and, for encrypted slots, its key material)
	opDelete
	// opSync is a barrier: its done channel closes once every operation
	// enqueued before it has been attempted
	opSync
)

// writeOp is one queued mutation. Only the fields relevant to its kind are
// set.
type writeOp struct {
	kind opKind

	// slot addressing
	ck    string // cache key (== durable-store key)
	alias string // encryption-key alias, set for encrypted slots

	// opPut
	value any

	// opPutEncrypted: plaintext captured at enqueue time. The flush swaps
	// the hot cache from exactly this plaintext to the ciphertext, so a
	// concurrent newer write wins.
	plain plainText

	// opDelete
	encrypted bool

	// opSync
	done chan struct{}
}
