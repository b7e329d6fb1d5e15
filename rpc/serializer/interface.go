package serializer

import "github.com/sphagnumdb/sphagnum/rpc/common"

// IRPCSerializer converts messages to and from the payload of a transport frame.
// Implementations are stateless and safe for concurrent use.
type IRPCSerializer interface {
	// Serialize encodes msg
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize decodes b into msg, overwriting all of its fields
	Deserialize(b []byte, msg *common.Message) error
}
