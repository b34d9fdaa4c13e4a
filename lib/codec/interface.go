package codec

// ICodec is the interface for all value codecs. The vault serializes
// complex (non-primitive) values through a codec before they are cached,
// encrypted or persisted.
type ICodec interface {
	// Encode serializes a value into a byte array
	Encode(v any) ([]byte, error)
	// Decode deserializes a byte array into the value pointed to by out
	Decode(b []byte, out any) error
}
