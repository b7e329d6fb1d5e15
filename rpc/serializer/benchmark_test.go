package serializer

import (
	"fmt"
	"testing"

	"github.com/sphagnumdb/sphagnum/lib/db"
	"github.com/sphagnumdb/sphagnum/rpc/common"
)

// benchmarkMessages covers the client path (small keys and values of growing
// size) and the peer path (record batches as sent by replication and anti-entropy)
func benchmarkMessages() map[string]common.Message {
	msgs := map[string]common.Message{
		"Get":   {MsgType: common.MsgTKVGet, Key: "user:1042"},
		"Error": {MsgType: common.MsgTError, Err: "StoreError (code QuorumNotReached): 1 of 2 replicas acknowledged within 5s"},
		"Exists": {
			MsgType: common.MsgTKVExists,
			Keys:    []string{"user:1", "user:2", "user:3", "user:4", "user:5", "user:6", "user:7", "user:8"},
		},
	}
	for _, size := range []int{16, 1024, 16 * 1024} {
		msgs[fmt.Sprintf("Set%dB", size)] = common.Message{MsgType: common.MsgTKVSet, Key: "user:1042", Value: make([]byte, size)}
	}
	for _, n := range []int{1, 64, 1024} {
		records := make([]db.Record, n)
		for i := range records {
			records[i] = db.Record{Key: fmt.Sprintf("key-%06d", i), Value: []byte("sphagnum"), Index: uint64(i) << 16}
		}
		msgs[fmt.Sprintf("Replicate%d", n)] = common.Message{MsgType: common.MsgTPeerReplicate, Records: records}
	}
	return msgs
}

func BenchmarkSerialize(b *testing.B) {
	for name, factory := range testSerializers {
		s := factory()
		for msgName, msg := range benchmarkMessages() {
			b.Run(name+"/"+msgName, func(b *testing.B) {
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := s.Serialize(msg); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkDeserialize(b *testing.B) {
	for name, factory := range testSerializers {
		s := factory()
		for msgName, msg := range benchmarkMessages() {
			data, err := s.Serialize(msg)
			if err != nil {
				b.Fatal(err)
			}
			b.Run(name+"/"+msgName, func(b *testing.B) {
				b.ReportAllocs()
				b.ReportMetric(float64(len(data)), "bytes")
				var out common.Message
				for i := 0; i < b.N; i++ {
					if err := s.Deserialize(data, &out); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
