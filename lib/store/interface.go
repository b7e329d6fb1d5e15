package store

import (
	"errors"
	"fmt"

	"github.com/sphagnumdb/sphagnum/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.KVDB

// IStore is the interface of a Field replica. All write operations return only an error
// (a *Error, nil on success), while read operations return the requested data along with an error.
//
// The expireIn and deleteIn offsets are given in write-index ticks (see hlc.Ticks).
type IStore interface {
	// Set inserts or updates a key–value pair.
	Set(key string, value []byte) (err error)
	// SetE inserts or updates a key–value pair with expiration and or deletion offsets.
	// A zero value for expireIn and deleteIn means no expiration or deletion.
	SetE(key string, value []byte, expireIn, deleteIn uint64) (err error)
	// SetEIfUnset inserts a key–value pair if the key does not exist.
	// If the key already exists, the old value is not updated, no matter the value of expireIn and deleteIn.
	// No error is returned if the key already exists.
	SetEIfUnset(key string, value []byte, expireIn, deleteIn uint64) (err error)
	// Append appends value to the value of key, creating the key if it is missing,
	// and returns the length of the resulting value.
	Append(key string, value []byte) (length uint64, err error)
	// Expire expires the value for a key. The key should still be findable with the Has() method.
	Expire(key string) (err error)
	// Delete deletes the given keys and returns how many of them existed.
	Delete(keys ...string) (removed uint64, err error)
	// Exists returns how many of the given keys exist. A key given twice is counted twice.
	Exists(keys ...string) (count uint64, err error)
	// Get return the value for a key. The boolean return value indicates whether a value for the key was found.
	Get(key string) (value []byte, loaded bool, err error)
	// Has returns whether a key exists in the store. The method should return true even if the value for the key is expired.
	Has(key string) (loaded bool, err error)
	// Scan calls fn for every raw record of the replica, tombstones included, until fn returns false.
	Scan(fn func(record db.Record) bool) (err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new store error with a formatted message.
func Errorf(code RetCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// CodeOf returns the return code of err, RetCSuccess for nil and
// RetCInternalError for errors that are not store errors.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCInternalError
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCQuorumNotReached                    // 4: Too few replicas acknowledged the operation.
	RetCMisrouted                           // 5: The key does not belong to the Field of the receiving Seed.
	RetCNotFound                            // 6: No Seed serves the Field of the key.
)

var retCodeNames = map[RetCode]string{
	RetCSuccess:              "Success",
	RetCInternalError:        "InternalError",
	RetCUnsupportedOperation: "UnsupportedOperation",
	RetCInvalidOperation:     "InvalidOperation",
	RetCQuorumNotReached:     "QuorumNotReached",
	RetCMisrouted:            "Misrouted",
	RetCNotFound:             "NotFound",
}

func (c RetCode) String() string {
	if name, ok := retCodeNames[c]; ok {
		return name
	}
	return "Unknown"
}

// ParseRetCode is the inverse of RetCode.String
func ParseRetCode(name string) (RetCode, bool) {
	for code, n := range retCodeNames {
		if n == name {
			return code, true
		}
	}
	return RetCInternalError, false
}
