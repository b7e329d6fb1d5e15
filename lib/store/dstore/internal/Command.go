package internal

import (
	"encoding/binary"
	"fmt"

	"github.com/sphagnumdb/sphagnum/lib/db"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTSet        CommandType = iota // Insert or update an entry.
	CommandTSetE                          // Insert or update an entry with expiration and deletion times.
	CommandTSetIfUnset                    // Insert an entry if it does not exist.
	CommandTAppend                        // Append to the value of an entry.
	CommandTExpire                        // Expire the value of an entry immediately.
	CommandTDelete                        // Delete one or more entries.
	CommandTTick                          // Advance the write index of the database.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTSet:
		return "Set"
	case CommandTSetE:
		return "SetE"
	case CommandTSetIfUnset:
		return "SetIfUnset"
	case CommandTAppend:
		return "Append"
	case CommandTExpire:
		return "Expire"
	case CommandTDelete:
		return "Delete"
	case CommandTTick:
		return "Tick"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// ToDBFeature converts a CommandType to the corresponding db.Feature.
// This can be used for checking if the database supports a certain operation.
func (ct CommandType) ToDBFeature() (db.Feature, error) {
	switch ct {
	case CommandTSet, CommandTTick:
		return db.FeatureSet, nil
	case CommandTSetE:
		return db.FeatureSetE, nil
	case CommandTSetIfUnset:
		return db.FeatureSetEIfUnset, nil
	case CommandTAppend:
		return db.FeatureAppend, nil
	case CommandTExpire:
		return db.FeatureExpire, nil
	case CommandTDelete:
		return db.FeatureDelete, nil
	default:
		return 0, fmt.Errorf("unknown command type %d", ct)
	}
}

// headerSize = Type + Stamp + ExpireIn + DeleteIn + NumKeys
const headerSize = 1 + 8 + 8 + 8 + 4

// Command represents a command to be executed by the state machine (a single entry in the raft log).
// Stamp is the clock time of the proposing Seed; the state machine derives the
// write index from it.
type Command struct {
	Type     CommandType
	Stamp    uint64
	ExpireIn uint64
	DeleteIn uint64
	Keys     []string
	Value    []byte
}

// Key returns the first key of the command (empty if there is none)
func (command *Command) Key() string {
	if len(command.Keys) == 0 {
		return ""
	}
	return command.Keys[0]
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	size := headerSize
	for _, k := range command.Keys {
		size += 4 + len(k)
	}
	return size + len(command.Value)
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 8 bytes for the stamp,
// 8 bytes for expireIn,
// 8 bytes for deleteIn,
// 4 bytes for the number of keys,
// per key 4 bytes key length and N bytes key data,
// N bytes for value data (optional)
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint64(result[1:9], command.Stamp)
	binary.BigEndian.PutUint64(result[9:17], command.ExpireIn)
	binary.BigEndian.PutUint64(result[17:25], command.DeleteIn)
	binary.BigEndian.PutUint32(result[25:29], uint32(len(command.Keys)))

	pos := headerSize
	for _, k := range command.Keys {
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(k)))
		pos += 4
		pos += copy(result[pos:], k)
	}
	copy(result[pos:], command.Value)

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	command.Stamp = binary.BigEndian.Uint64(data[1:9])
	command.ExpireIn = binary.BigEndian.Uint64(data[9:17])
	command.DeleteIn = binary.BigEndian.Uint64(data[17:25])
	numKeys := binary.BigEndian.Uint32(data[25:29])

	// every key needs at least its length prefix
	if uint64(numKeys)*4 > uint64(len(data)-headerSize) {
		return fmt.Errorf("data too short for %d keys", numKeys)
	}

	command.Keys = command.Keys[:0]
	pos := headerSize
	for i := uint32(0); i < numKeys; i++ {
		if len(data) < pos+4 {
			return fmt.Errorf("data too short for key %d", i)
		}
		keyLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if len(data)-pos < keyLen {
			return fmt.Errorf("data too short for key of length %d", keyLen)
		}
		command.Keys = append(command.Keys, string(data[pos:pos+keyLen]))
		pos += keyLen
	}

	if len(data) > pos {
		valueLen := len(data) - pos
		// Reuse existing buffer if possible to reduce allocations
		if command.Value == nil || cap(command.Value) < valueLen {
			command.Value = make([]byte, valueLen)
		} else {
			command.Value = command.Value[:valueLen]
		}
		copy(command.Value, data[pos:])
	} else {
		command.Value = nil
	}

	return nil
}
