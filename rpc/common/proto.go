package common

import (
	"encoding/json"
	"fmt"

	"github.com/sphagnumdb/sphagnum/lib/db"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key      string   `json:"key,omitempty"`      // Used for: single key operations, Proof
	Keys     []string `json:"keys,omitempty"`     // Used for: Exists, Delete, Fetch
	ExpireIn uint64   `json:"expireIn,omitempty"` // Used for: Set operations
	DeleteIn uint64   `json:"deleteIn,omitempty"` // Used for: Set operations
	Value    []byte   `json:"value,omitempty"`    // Used for: Set, Append (request), Get, Digest, Leaves, Proof (response)

	// Routing
	Forwarded bool `json:"forwarded,omitempty"` // Set by a Seed that forwards a client request to the owning Field

	// Replication fields
	Records []db.Record `json:"records,omitempty"` // Used for: Replicate (request), Fetch, SyncBuckets, Proof (response)
	Buckets []uint32    `json:"buckets,omitempty"` // Used for: SyncBuckets (request)

	// Response only fields
	Ok    bool   `json:"ok,omitempty"`    // Used for: Get, Has responses
	Count uint64 `json:"count,omitempty"` // Used for: Append, Delete, Exists, Replicate, Digest, Leaves responses
	Err   string `json:"err,omitempty"`   // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // JSON payload of Passport, Members and Verify responses
}

// SetErr stores the text of err (if any) in the message and returns the message
func (m *Message) SetErr(err error) *Message {
	if err != nil {
		m.Err = err.Error()
	}
	return m
}

func newResponse(t MessageType, err error) *Message {
	return (&Message{MsgType: t}).SetErr(err)
}

// --------------------------------------------------------------------------
// Message Factory Functions (client operations)
// --------------------------------------------------------------------------

// NewSetRequest creates a new Set request
func NewSetRequest(key string, value []byte) *Message {
	return &Message{
		MsgType: MsgTKVSet,
		Key:     key,
		Value:   value,
	}
}

// NewSetResponse creates a new Set response
func NewSetResponse(err error) *Message {
	return newResponse(MsgTKVSet, err)
}

// NewSetERequest creates a new SetE request
func NewSetERequest(key string, value []byte, expireIn, deleteIn uint64) *Message {
	return &Message{
		MsgType:  MsgTKVSetE,
		Key:      key,
		Value:    value,
		ExpireIn: expireIn,
		DeleteIn: deleteIn,
	}
}

// NewSetEResponse creates a new SetE response
func NewSetEResponse(err error) *Message {
	return newResponse(MsgTKVSetE, err)
}

// NewSetEIfUnsetRequest creates a new SetEIfUnset request
func NewSetEIfUnsetRequest(key string, value []byte, expireIn, deleteIn uint64) *Message {
	return &Message{
		MsgType:  MsgTKVSetEIfUnset,
		Key:      key,
		Value:    value,
		ExpireIn: expireIn,
		DeleteIn: deleteIn,
	}
}

// NewSetEIfUnsetResponse creates a new SetEIfUnset response
func NewSetEIfUnsetResponse(err error) *Message {
	return newResponse(MsgTKVSetEIfUnset, err)
}

// NewAppendRequest creates a new Append request
func NewAppendRequest(key string, value []byte) *Message {
	return &Message{
		MsgType: MsgTKVAppend,
		Key:     key,
		Value:   value,
	}
}

// NewAppendResponse creates a new Append response carrying the new length
func NewAppendResponse(length uint64, err error) *Message {
	msg := newResponse(MsgTKVAppend, err)
	msg.Count = length
	return msg
}

// NewExpireRequest creates a new Expire request
func NewExpireRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVExpire,
		Key:     key,
	}
}

// NewExpireResponse creates a new Expire response
func NewExpireResponse(err error) *Message {
	return newResponse(MsgTKVExpire, err)
}

// NewDeleteRequest creates a new Delete request for one or more keys
func NewDeleteRequest(keys ...string) *Message {
	return &Message{
		MsgType: MsgTKVDelete,
		Keys:    keys,
	}
}

// NewDeleteResponse creates a new Delete response carrying the number of removed keys
func NewDeleteResponse(removed uint64, err error) *Message {
	msg := newResponse(MsgTKVDelete, err)
	msg.Count = removed
	return msg
}

// NewExistsRequest creates a new Exists request
func NewExistsRequest(keys ...string) *Message {
	return &Message{
		MsgType: MsgTKVExists,
		Keys:    keys,
	}
}

// NewExistsResponse creates a new Exists response carrying the number of existing keys
func NewExistsResponse(count uint64, err error) *Message {
	msg := newResponse(MsgTKVExists, err)
	msg.Count = count
	return msg
}

// NewGetRequest creates a new Get request
func NewGetRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVGet,
		Key:     key,
	}
}

// NewGetResponse creates a new Get response
func NewGetResponse(value []byte, ok bool, err error) *Message {
	msg := newResponse(MsgTKVGet, err)
	msg.Ok = ok
	msg.Value = value
	return msg
}

// NewHasRequest creates a new Has request
func NewHasRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVHas,
		Key:     key,
	}
}

// NewHasResponse creates a new Has response
func NewHasResponse(ok bool, err error) *Message {
	msg := newResponse(MsgTKVHas, err)
	msg.Ok = ok
	return msg
}

// --------------------------------------------------------------------------
// Message Factory Functions (Seed operations)
// --------------------------------------------------------------------------

// NewRootRequest asks a Seed for the Merkle root of its Field replica
func NewRootRequest() *Message {
	return &Message{MsgType: MsgTSeedRoot}
}

// NewRootResponse carries a Merkle root and the number of records under it
func NewRootResponse(root []byte, records uint64, err error) *Message {
	msg := newResponse(MsgTSeedRoot, err)
	msg.Value = root
	msg.Count = records
	return msg
}

// NewProofRequest asks for the Merkle proof of key
func NewProofRequest(key string) *Message {
	return &Message{
		MsgType: MsgTSeedProof,
		Key:     key,
	}
}

// NewProofResponse carries the encoded proof and the raw record of the key (if any).
// The root the proof was built for is sent in Meta.
func NewProofResponse(proof []byte, root []byte, record *db.Record, err error) *Message {
	msg := newResponse(MsgTSeedProof, err)
	msg.Value = proof
	msg.Meta = root
	if record != nil {
		msg.Records = []db.Record{*record}
		msg.Ok = true
	}
	return msg
}

// NewVerifyRequest asks a Seed to compare its root with all replicas of its Field
func NewVerifyRequest() *Message {
	return &Message{MsgType: MsgTSeedVerify}
}

// NewVerifyResponse carries the JSON encoded verification report
func NewVerifyResponse(report []byte, consistent bool, err error) *Message {
	msg := newResponse(MsgTSeedVerify, err)
	msg.Meta = report
	msg.Ok = consistent
	return msg
}

// NewPassportRequest asks a Seed for its passport
func NewPassportRequest() *Message {
	return &Message{MsgType: MsgTSeedPassport}
}

// NewPassportResponse carries the JSON encoded passport
func NewPassportResponse(passport []byte, err error) *Message {
	msg := newResponse(MsgTSeedPassport, err)
	msg.Meta = passport
	return msg
}

// NewMembersRequest asks a Seed for the passports of all live Seeds it knows
func NewMembersRequest() *Message {
	return &Message{MsgType: MsgTSeedMembers}
}

// NewMembersResponse carries the JSON encoded list of passports
func NewMembersResponse(members []byte, err error) *Message {
	msg := newResponse(MsgTSeedMembers, err)
	msg.Meta = members
	return msg
}

// --------------------------------------------------------------------------
// Message Factory Functions (peer operations)
// --------------------------------------------------------------------------

// NewReplicateRequest pushes records to a replica of the same Field
func NewReplicateRequest(records []db.Record) *Message {
	return &Message{
		MsgType: MsgTPeerReplicate,
		Records: records,
	}
}

// NewReplicateResponse carries the number of records the replica applied
func NewReplicateResponse(applied uint64, err error) *Message {
	msg := newResponse(MsgTPeerReplicate, err)
	msg.Count = applied
	return msg
}

// NewFetchRequest asks a replica for the raw records of keys
func NewFetchRequest(keys ...string) *Message {
	return &Message{
		MsgType: MsgTPeerFetch,
		Keys:    keys,
	}
}

// NewFetchResponse carries raw records
func NewFetchResponse(records []db.Record, err error) *Message {
	msg := newResponse(MsgTPeerFetch, err)
	msg.Records = records
	return msg
}

// NewDigestRequest asks a replica for its Merkle root
func NewDigestRequest() *Message {
	return &Message{MsgType: MsgTPeerDigest}
}

// NewDigestResponse carries the Merkle root of a replica and the number of records under it
func NewDigestResponse(root []byte, records uint64, err error) *Message {
	msg := newResponse(MsgTPeerDigest, err)
	msg.Value = root
	msg.Count = records
	return msg
}

// NewLeavesRequest asks a replica for the bucket hashes of its Merkle tree
func NewLeavesRequest() *Message {
	return &Message{MsgType: MsgTPeerLeaves}
}

// NewLeavesResponse carries the concatenated bucket hashes and the tree depth
func NewLeavesResponse(leaves []byte, depth uint64, err error) *Message {
	msg := newResponse(MsgTPeerLeaves, err)
	msg.Value = leaves
	msg.Count = depth
	return msg
}

// NewSyncBucketsRequest asks a replica for all records of the given buckets
func NewSyncBucketsRequest(buckets []uint32) *Message {
	return &Message{
		MsgType: MsgTPeerSyncBuckets,
		Buckets: buckets,
	}
}

// NewSyncBucketsResponse carries the records of the requested buckets
func NewSyncBucketsResponse(records []db.Record, err error) *Message {
	msg := newResponse(MsgTPeerSyncBuckets, err)
	msg.Records = records
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTSuccess:         "success",
	MsgTError:           "error",
	MsgTKVSet:           "set",
	MsgTKVSetE:          "setE",
	MsgTKVSetEIfUnset:   "setEIfUnset",
	MsgTKVAppend:        "append",
	MsgTKVExpire:        "expire",
	MsgTKVDelete:        "delete",
	MsgTKVExists:        "exists",
	MsgTKVGet:           "get",
	MsgTKVHas:           "has",
	MsgTSeedRoot:        "root",
	MsgTSeedProof:       "proof",
	MsgTSeedVerify:      "verify",
	MsgTSeedPassport:    "passport",
	MsgTSeedMembers:     "members",
	MsgTPeerReplicate:   "replicate",
	MsgTPeerFetch:       "fetch",
	MsgTPeerDigest:      "digest",
	MsgTPeerLeaves:      "leaves",
	MsgTPeerSyncBuckets: "syncBuckets",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsKeyOperation reports whether the message is a client operation on keys that
// has to be routed to the Field owning the keys
func (t MessageType) IsKeyOperation() bool {
	return t >= MsgTKVSet && t <= MsgTKVHas
}

// IsWrite reports whether the message is a client operation that modifies data
func (t MessageType) IsWrite() bool {
	switch t {
	case MsgTKVSet, MsgTKVSetE, MsgTKVSetEIfUnset, MsgTKVAppend, MsgTKVExpire, MsgTKVDelete:
		return true
	default:
		return false
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for typ, name := range messageTypeNames {
		if name == s {
			*t = typ
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IStore operations (routed to the Field owning the key)

	MsgTKVSet         // Set a key-value pair
	MsgTKVSetE        // Set a key-value pair with expiration
	MsgTKVSetEIfUnset // Set a key-value pair if not already set
	MsgTKVAppend      // Append to the value of a key
	MsgTKVExpire      // Expire a key
	MsgTKVDelete      // Delete keys
	MsgTKVExists      // Count existing keys
	MsgTKVGet         // Get a value by key
	MsgTKVHas         // Check if a key exists

	// Seed operations (answered by the receiving Seed)

	MsgTSeedRoot     // Merkle root of the Field replica
	MsgTSeedProof    // Merkle proof of a key
	MsgTSeedVerify   // Compare the roots of all replicas of the Field
	MsgTSeedPassport // Passport of the Seed
	MsgTSeedMembers  // Passports of all live Seeds

	// Peer operations (between replicas of one Field)

	MsgTPeerReplicate   // Merge records
	MsgTPeerFetch       // Raw records of keys
	MsgTPeerDigest      // Merkle root
	MsgTPeerLeaves      // Merkle bucket hashes
	MsgTPeerSyncBuckets // Records of Merkle buckets
)
