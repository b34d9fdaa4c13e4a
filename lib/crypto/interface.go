package crypto

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IEngine is the generic interface for the encryption engine that protects
// values before they reach the durable store. One key alias corresponds to
// one logical value; the engine owns the full key lifecycle behind it.
//
// Failure semantics (see the RetCode constants):
//
//   - Encrypt creates a missing key transparently and heals a permanently
//     invalidated key by deleting and regenerating it, retrying once.
//   - Decrypt never creates keys. A permanently invalidated key is deleted
//     and the call fails - the ciphertext is unrecoverable by design.
//   - A temporarily inaccessible key (device locked) fails both operations
//     without deleting anything.
type IEngine interface {
	// Encrypt encrypts plaintext under the key registered for alias and
	// returns the ciphertext as a Base64 string (nonce and authenticated
	// ciphertext concatenated). A missing key is created transparently.
	Encrypt(alias string, plaintext []byte) (ciphertext string, err error)
	// Decrypt reverses Encrypt. It fails with RetCKeyUnavailable if no key
	// exists for alias; it never creates one.
	Decrypt(alias string, ciphertext string) (plaintext []byte, err error)
	// DeleteKey removes the key registered for alias. Deleting a missing
	// key is not an error.
	DeleteKey(alias string) (err error)
	// UpdateKeyAccessibility re-tags the key for alias so that it does or
	// does not require an unlocked device to be used.
	UpdateKeyAccessibility(alias string, requireUnlocked bool) (err error)
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
	return fmt.Sprintf("CryptoError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new crypto Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// CodeOf extracts the RetCode from an error. Errors that are not crypto
// Errors map to RetCInternalError.
func CodeOf(err error) RetCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCInternalError
}

// IsLocked reports whether err indicates a temporarily inaccessible key.
func IsLocked(err error) bool {
	return err != nil && CodeOf(err) == RetCDeviceLocked
}

// IsPermanent reports whether err indicates that the affected ciphertext can
// never be recovered (key permanently invalidated, or malformed ciphertext).
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	switch CodeOf(err) {
	case RetCKeyPermanentlyInvalid, RetCDecodeFailure:
		return true
	default:
		return false
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess               RetCode = iota // 0: Operation completed successfully.
	RetCInternalError                        // 1: Operation failed due to an internal error.
	RetCKeyUnavailable                       // 2: No key exists for the alias.
	RetCDeviceLocked                         // 3: Key exists but is temporarily inaccessible.
	RetCKeyPermanentlyInvalid                // 4: The key provider invalidated the key.
	RetCDecodeFailure                        // 5: Ciphertext is malformed or fails authentication.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCKeyUnavailable:
		return "KeyUnavailable"
	case RetCDeviceLocked:
		return "DeviceLocked"
	case RetCKeyPermanentlyInvalid:
		return "KeyPermanentlyInvalid"
	case RetCDecodeFailure:
		return "DecodeFailure"
	default:
		return "Unknown"
	}
}
