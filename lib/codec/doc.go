// Package codec provides the value-serialization contract used by the vault
// for complex (non-primitive) values.
//
// Primitive values (bool, int64, float64, string) are stored natively by the
// durable store and never pass through a codec. Everything else is encoded
// to a byte slice before caching, encryption and persistence, and decoded on
// the way back out.
//
// The package ships a JSON implementation (NewJSONCodec). Alternative codecs
// only need to implement the two-method ICodec interface.
package codec
