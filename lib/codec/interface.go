package codec

import (
	"fmt"
	"strings"

	"github.com/ma99us/MikeDB/lib/value"
)

// IValueCodec is the interface for all value codecs. A codec turns a value tree into
// bytes for a value file and back. Implementations are stateless and safe for
// concurrent use.
type IValueCodec interface {
	// Name returns the name used in configuration (e.g. "json")
	Name() string
	// Ext returns the file extension (without dot) of value files written by this codec
	Ext() string
	// Encode serializes a value. Transient file content is never encoded.
	Encode(v value.Value) ([]byte, error)
	// Decode deserializes bytes previously produced by Encode
	Decode(data []byte) (value.Value, error)
}

// All returns every available codec, the default first
func All() []IValueCodec {
	return []IValueCodec{NewJSONCodec(), NewBinaryCodec()}
}

// ByName resolves a codec from its configuration name
func ByName(name string) (IValueCodec, error) {
	for _, c := range All() {
		if strings.EqualFold(c.Name(), name) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("invalid codec %s (expected one of: json, binary)", name)
}

// ByExt resolves a codec from a value file extension, with or without dot
func ByExt(ext string) (IValueCodec, bool) {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	for _, c := range All() {
		if c.Ext() == ext {
			return c, true
		}
	}
	return nil, false
}
