// Package crypto defines the encryption-engine contract used by the vault
// and the error taxonomy shared by all engine implementations.
//
// The engine hides key management behind string aliases: the vault derives
// one alias per logical value and never sees key material. Engines are built
// on top of a keyring (see the keyring subpackage), which models the
// platform secure-key provider including its failure modes - missing keys,
// a temporarily locked device, and permanently invalidated keys.
//
// The aead subpackage provides the production implementation with
// self-healing key recovery on top of AES-GCM or XChaCha20-Poly1305.
package crypto
