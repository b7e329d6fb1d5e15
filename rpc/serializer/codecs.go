package serializer

import (
	"bytes"
	"encoding/gob"
	"encoding/json"

	"github.com/sphagnumdb/sphagnum/rpc/common"
)

// NewJSONSerializer encodes messages as JSON. Byte slices travel as base64.
func NewJSONSerializer() IRPCSerializer {
	return jsonCodec{}
}

// NewGOBSerializer encodes every message with a fresh gob stream, so each
// payload carries its own type description
func NewGOBSerializer() IRPCSerializer {
	return gobCodec{}
}

type jsonCodec struct{}

func (jsonCodec) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}
	return json.Unmarshal(b, msg)
}

type gobCodec struct{}

func (gobCodec) Serialize(msg common.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}
	return gob.NewDecoder(bytes.NewReader(b)).Decode(msg)
}
