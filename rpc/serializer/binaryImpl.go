package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/sphagnumdb/sphagnum/lib/db"
	"github.com/sphagnumdb/sphagnum/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey       uint16 = 1 << 0
	hasExpireIn  uint16 = 1 << 1
	hasDeleteIn  uint16 = 1 << 2
	hasValue     uint16 = 1 << 3
	hasOk        uint16 = 1 << 4
	hasErr       uint16 = 1 << 5
	hasMeta      uint16 = 1 << 6
	hasKeys      uint16 = 1 << 7
	hasForwarded uint16 = 1 << 8
	hasRecords   uint16 = 1 << 9
	hasBuckets   uint16 = 1 << 10
	hasCount     uint16 = 1 << 11
)

// Bit flags of a single record
const (
	recTombstone byte = 1 << 0
	recHasValue  byte = 1 << 1
)

// headerSize = MsgType + flags
const headerSize = 1 + 2

// recordHeaderSize = KeyLen + ExpireAt + DeleteAt + Index + flags
const recordHeaderSize = 4 + 8 + 8 + 8 + 1

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, headerSize, b.sizeBytes(msg))
	result[0] = byte(msg.MsgType)

	var flags uint16

	appendBytes := func(data []byte) {
		result = binary.BigEndian.AppendUint32(result, uint32(len(data)))
		result = append(result, data...)
	}
	appendString := func(s string) {
		result = binary.BigEndian.AppendUint32(result, uint32(len(s)))
		result = append(result, s...)
	}

	if msg.Key != "" {
		flags |= hasKey
		appendString(msg.Key)
	}
	if msg.ExpireIn > 0 {
		flags |= hasExpireIn
		result = binary.BigEndian.AppendUint64(result, msg.ExpireIn)
	}
	if msg.DeleteIn > 0 {
		flags |= hasDeleteIn
		result = binary.BigEndian.AppendUint64(result, msg.DeleteIn)
	}
	if msg.Value != nil {
		flags |= hasValue
		appendBytes(msg.Value)
	}
	if msg.Ok {
		flags |= hasOk
		result = append(result, 1)
	}
	if msg.Err != "" {
		flags |= hasErr
		appendString(msg.Err)
	}
	if msg.Meta != nil {
		flags |= hasMeta
		appendBytes(msg.Meta)
	}
	if len(msg.Keys) > 0 {
		flags |= hasKeys
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Keys)))
		for _, k := range msg.Keys {
			appendString(k)
		}
	}
	if msg.Forwarded {
		flags |= hasForwarded
	}
	if len(msg.Records) > 0 {
		flags |= hasRecords
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Records)))
		for _, r := range msg.Records {
			appendString(r.Key)
			result = binary.BigEndian.AppendUint64(result, r.ExpireAt)
			result = binary.BigEndian.AppendUint64(result, r.DeleteAt)
			result = binary.BigEndian.AppendUint64(result, r.Index)

			var rf byte
			if r.Tombstone {
				rf |= recTombstone
			}
			if r.Value != nil {
				rf |= recHasValue
			}
			result = append(result, rf)
			if r.Value != nil {
				appendBytes(r.Value)
			}
		}
	}
	if len(msg.Buckets) > 0 {
		flags |= hasBuckets
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Buckets)))
		for _, bucket := range msg.Buckets {
			result = binary.BigEndian.AppendUint32(result, bucket)
		}
	}
	if msg.Count > 0 {
		flags |= hasCount
		result = binary.BigEndian.AppendUint64(result, msg.Count)
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(result[1:3], flags)

	return result, nil
}

// reader walks a serialized message and remembers the first error
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("data too short for %s", what)
		return nil
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out
}

func (r *reader) u32(what string) uint32 {
	if b := r.take(4, what); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64(what string) uint64 {
	if b := r.take(8, what); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

// bytes reads a length prefixed byte slice into a copy
func (r *reader) bytes(what string) []byte {
	n := r.u32(what + " length")
	b := r.take(int(n), what+" data")
	if r.err != nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r *reader) string(what string) string {
	n := r.u32(what + " length")
	return string(r.take(int(n), what+" data"))
}

// count reads a number of elements, each needing at least minSize bytes
func (r *reader) count(minSize int, what string) int {
	n := int(r.u32(what + " count"))
	if r.err == nil && n*minSize > len(r.data)-r.pos {
		r.err = fmt.Errorf("data too short for %d %s", n, what)
		return 0
	}
	return n
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := binary.BigEndian.Uint16(data[1:3])
	r := &reader{data: data, pos: headerSize}

	if flags&hasKey != 0 {
		msg.Key = r.string("key")
	}
	if flags&hasExpireIn != 0 {
		msg.ExpireIn = r.u64("ExpireIn")
	}
	if flags&hasDeleteIn != 0 {
		msg.DeleteIn = r.u64("DeleteIn")
	}
	if flags&hasValue != 0 {
		msg.Value = r.bytes("value")
	}
	if flags&hasOk != 0 {
		if ok := r.take(1, "Ok flag"); ok != nil {
			msg.Ok = ok[0] != 0
		}
	}
	if flags&hasErr != 0 {
		msg.Err = r.string("error")
	}
	if flags&hasMeta != 0 {
		msg.Meta = r.bytes("meta")
	}
	if flags&hasKeys != 0 {
		n := r.count(4, "keys")
		msg.Keys = make([]string, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			msg.Keys = append(msg.Keys, r.string("key"))
		}
	}
	msg.Forwarded = flags&hasForwarded != 0
	if flags&hasRecords != 0 {
		n := r.count(recordHeaderSize, "records")
		msg.Records = make([]db.Record, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			var rec db.Record
			rec.Key = r.string("record key")
			rec.ExpireAt = r.u64("record ExpireAt")
			rec.DeleteAt = r.u64("record DeleteAt")
			rec.Index = r.u64("record Index")
			var rf byte
			if f := r.take(1, "record flags"); f != nil {
				rf = f[0]
			}
			rec.Tombstone = rf&recTombstone != 0
			if rf&recHasValue != 0 {
				rec.Value = r.bytes("record value")
			}
			msg.Records = append(msg.Records, rec)
		}
	}
	if flags&hasBuckets != 0 {
		n := r.count(4, "buckets")
		msg.Buckets = make([]uint32, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			msg.Buckets = append(msg.Buckets, r.u32("bucket"))
		}
	}
	if flags&hasCount != 0 {
		msg.Count = r.u64("Count")
	}

	return r.err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize

	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if msg.ExpireIn > 0 {
		size += 8
	}
	if msg.DeleteIn > 0 {
		size += 8
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Ok {
		size += 1
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}
	if len(msg.Keys) > 0 {
		size += 4
		for _, k := range msg.Keys {
			size += 4 + len(k)
		}
	}
	if len(msg.Records) > 0 {
		size += 4
		for _, r := range msg.Records {
			size += recordHeaderSize + len(r.Key)
			if r.Value != nil {
				size += 4 + len(r.Value)
			}
		}
	}
	if len(msg.Buckets) > 0 {
		size += 4 + 4*len(msg.Buckets)
	}
	if msg.Count > 0 {
		size += 8
	}

	return size
}
