// Package codec serializes value trees for the value files of the persistent store.
// It defines a common interface and two implementations with different trade-offs.
//
// Key Components:
//
//   - IValueCodec: Core interface that all codec implementations must satisfy.
//
//   - jsonCodecImpl: Writes the JSON encoding of the value package (extension "json").
//     Human-readable and the default, so data directories can be inspected and
//     edited by hand.
//
//   - binaryCodecImpl: Custom tag-length-value format (extension "bin"). Uses a
//     flag byte to encode only the present optional fields of file records,
//     resulting in compact files with minimal decoding overhead.
//
// Value files carry their codec in the extension, so a data directory written with
// one codec stays readable after switching the server to the other one: ReadFile
// picks the codec by extension and new writes use the configured codec.
//
// Thread Safety:
//
//	All codec implementations are stateless and safe for concurrent use.
//
// Usage:
//
//	c, err := codec.ByName("json")
//	err = codec.WriteFile(c, "/data/db1/k1.json", v)
//	v, err = codec.ReadFile("/data/db1/k1.json")
package codec
