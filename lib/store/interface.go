package store

import (
	"fmt"
	"strconv"
)

// --------------------------------------------------------------------------
// Typed Values
// --------------------------------------------------------------------------

// Kind discriminates the primitive types a durable store can hold natively.
type Kind uint8

const (
	KindBool Kind = iota
	KindInt
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Value is one stored primitive: a tagged union of bool, int64, float64 and
// string. Complex values reach the store as strings (serialized JSON or
// Base64 ciphertext); the store itself never interprets them.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string
}

func BoolValue(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func IntValue(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// Any unwraps the value into its natural Go type.
func (v Value) Any() any {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	default:
		return v.Str
	}
}

// FromAny wraps a Go primitive into a Value. The boolean return value
// indicates whether the type is storable.
func FromAny(a any) (Value, bool) {
	switch t := a.(type) {
	case bool:
		return BoolValue(t), true
	case int:
		return IntValue(int64(t)), true
	case int32:
		return IntValue(int64(t)), true
	case int64:
		return IntValue(t), true
	case float32:
		return FloatValue(float64(t)), true
	case float64:
		return FloatValue(t), true
	case string:
		return StringValue(t), true
	default:
		return Value{}, false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return v.Str
	}
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

// Tx is one atomic multi-key mutation: all puts and deletes land together
// or not at all. Delete of a missing key is a no-op.
type Tx struct {
	Put    map[string]Value
	Delete []string
}

// Empty reports whether the transaction mutates anything.
func (tx Tx) Empty() bool {
	return len(tx.Put) == 0 && len(tx.Delete) == 0
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IDurableStore is the contract for the durable key-value backend the vault
// persists into: an observable map of string keys to primitive values with
// atomic multi-key transactions.
//
// All methods are safe for concurrent use.
type IDurableStore interface {
	// Get returns the value for a key. The boolean return value indicates
	// whether a value for the key was found.
	Get(key string) (value Value, loaded bool, err error)
	// Snapshot returns a copy of the full store contents.
	Snapshot() (entries map[string]Value, err error)
	// Apply commits a transaction atomically and notifies watchers.
	Apply(tx Tx) (err error)
	// Watch returns a channel that receives a (coalesced) signal after every
	// committed transaction, plus a cancel function that releases the
	// subscription. The channel is closed on cancel or store close.
	Watch() (changes <-chan struct{}, cancel func())
	// Clear removes every entry from the store and notifies watchers.
	Clear() (err error)
	// Close releases the store. Further use is undefined.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	errorCode := ""
	switch e.Code {
	case RetCInternalError:
		errorCode = "InternalError"
	case RetCClosed:
		errorCode = "Closed"
	case RetCCorrupted:
		errorCode = "Corrupted"
	default:
		errorCode = "Unknown"
	}

	return fmt.Sprintf("DurableStoreError (code %s): %s", errorCode, e.Msg)
}

// NewError creates a new store Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess       RetCode = iota // 0: Operation completed successfully.
	RetCInternalError                // 1: Operation failed due to an internal error.
	RetCClosed                       // 2: The store is closed.
	RetCCorrupted                    // 3: The persisted state could not be read.
)
