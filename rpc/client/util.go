package client

import (
	"fmt"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/sphagnumdb/sphagnum/lib/merkle"
	"github.com/sphagnumdb/sphagnum/lib/store"
	"github.com/sphagnumdb/sphagnum/rpc/common"
	"github.com/sphagnumdb/sphagnum/rpc/serializer"
	"github.com/sphagnumdb/sphagnum/rpc/transport"
)

var (
	Logger = logger.GetLogger("rpc/client")
)

// invokeRPCRequest is a helper function used for all RPC Clients to send requests
// It takes a shard ID, a request message, a transport layer and a serializer as parameters
// It returns a response message and an error if any occurs
// Error responses are turned into store errors, and the type of the response must match the request
func invokeRPCRequest(shardId uint64, req *common.Message, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Message, error) {
	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return nil, err
	}

	respBytes, err := transport.Send(shardId, reqBytes)
	if err != nil {
		return nil, err
	}

	resp := &common.Message{}
	if err := serializer.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", req.MsgType, err)
	}

	if resp.MsgType == common.MsgTError || resp.Err != "" {
		return nil, store.ParseError(resp.Err)
	}

	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("unexpected message type: %s, expected %s", resp.MsgType, req.MsgType)
	}

	return resp, nil
}

// toHash converts a hash received over the wire
func toHash(b []byte) (merkle.Hash, error) {
	var h merkle.Hash
	if len(b) != merkle.HashSize {
		return h, fmt.Errorf("invalid hash of %d bytes", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// EncodeLeaves concatenates bucket hashes for a Leaves response
func EncodeLeaves(leaves []merkle.Hash) []byte {
	out := make([]byte, 0, len(leaves)*merkle.HashSize)
	for _, l := range leaves {
		out = append(out, l[:]...)
	}
	return out
}

// DecodeLeaves splits the bucket hashes of a tree of the given depth
func DecodeLeaves(data []byte, depth int) ([]merkle.Hash, error) {
	if depth < 0 || depth > merkle.MaxDepth {
		return nil, fmt.Errorf("%w: %d", merkle.ErrDepth, depth)
	}
	n := 1 << depth
	if len(data) != n*merkle.HashSize {
		return nil, fmt.Errorf("expected %d bucket hashes, got %d bytes", n, len(data))
	}
	out := make([]merkle.Hash, n)
	for i := range out {
		copy(out[i][:], data[i*merkle.HashSize:])
	}
	return out, nil
}
