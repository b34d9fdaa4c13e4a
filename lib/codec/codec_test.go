package codec

import (
	"testing"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	c := NewJSONCodec()

	type sample struct {
		Name  string   `json:"name"`
		Count int      `json:"count"`
		Tags  []string `json:"tags"`
	}

	in := sample{Name: "reading-list", Count: 3, Tags: []string{"a", "b"}}

	b, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var out sample
	if err := c.Decode(b, &out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if out.Name != in.Name || out.Count != in.Count || len(out.Tags) != 2 {
		t.Errorf("Round trip mismatch: %+v != %+v", out, in)
	}
}

func TestJSONCodecDecodeError(t *testing.T) {
	c := NewJSONCodec()

	var out map[string]any
	if err := c.Decode([]byte("{not json"), &out); err == nil {
		t.Error("Decode of malformed input should fail")
	}
}
