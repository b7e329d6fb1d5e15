// Package serializer encodes the messages Seeds and clients exchange.
//
// Three formats implement IRPCSerializer:
//
//   - binary: a flag-prefixed layout that only writes the fields a message
//     carries. Records, key lists and bucket ids of the peer protocol are
//     packed without per-element framing beyond their length. This is the
//     default and the format to use between Seeds.
//   - json: human readable, handy when debugging with the http transport.
//   - gob: kept for comparison in the benchmarks; larger and slower than both.
//
// All Seeds of a cluster must use the same serializer.
//
//	s := serializer.NewBinarySerializer()
//	data, err := s.Serialize(msg)
//	...
//	var out common.Message
//	err = s.Deserialize(data, &out)
package serializer
