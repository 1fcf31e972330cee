package store

import (
	"errors"
	"fmt"

	"github.com/ma99us/MikeDB/lib/value"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// NoIndex is passed as list index when an operation does not address a position
const NoIndex = -1

// NoID is passed as item id when an operation does not address an entry by id
const NoID int64 = 0

// IStore is the generic interface for interacting with a document store.
// Every operation is scoped to a database name; access control happens before
// an operation is invoked and is not part of this interface.
//
// Absent values are reported with loaded=false, never as an error. All errors are
// of type *Error.
type IStore interface {
	// Get returns a copy of the value for a key. A non-nil fields filter restricts
	// objects (or every object of a list) to the named fields plus "id".
	Get(dbName, key string, fields []string) (v value.Value, loaded bool, err error)
	// GetItem returns the entry with the given id from a list value, or the value
	// itself if it is an entry with that id.
	GetItem(dbName, key string, id int64, fields []string) (v value.Value, loaded bool, err error)
	// Count returns 0 for an absent key, the length of a list, the size of a file
	// and 1 for any other value.
	Count(dbName, key string) (count int64, err error)
	// Put replaces the value of a key. Entries without a positive id get one.
	// created reports that the key had no value before.
	Put(dbName, key string, v value.Value, sessionID string) (created bool, err error)
	// Append adds v (or every element of v if it is a list) to the list stored under key,
	// at the end or at index. An absent key is promoted to an empty list and a
	// non-list value to a one-element list first.
	Append(dbName, key string, v value.Value, index int, sessionID string) (created bool, err error)
	// Update replaces part of a value: the element at index, the entries with the
	// id of v, or the entry with the id of v moved to index. Without index and id
	// it behaves like Put.
	Update(dbName, key string, v value.Value, index int, sessionID string) (created bool, err error)
	// Remove deletes a key. existed is false if there was nothing to delete.
	Remove(dbName, key string, sessionID string) (existed bool, err error)
	// RemoveItem deletes the list element at index or the entries with id. Without
	// both it behaves like Remove.
	RemoveItem(dbName, key string, index int, id int64, sessionID string) (removed bool, err error)
	// DropDatabase removes every key of a database and then the database itself.
	DropDatabase(dbName, sessionID string) (allRemoved bool, err error)
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
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code RetCode, format string, args ...interface{}) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// CodeOf returns the code of the first *Error in err's chain, RetCInternalError
// for other errors and RetCSuccess for nil.
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

// IsValidation reports whether err is a validation failure
func IsValidation(err error) bool { return CodeOf(err) == RetCValidation }

// IsAuthorization reports whether err is an authorization failure
func IsAuthorization(err error) bool { return CodeOf(err) == RetCAuthorization }

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess       RetCode = iota // 0: Operation executed successfully.
	RetCInternalError                // 1: Operation failed due to an internal error.
	RetCValidation                   // 2: Bad key syntax, null value, bad index or shape mismatch.
	RetCAuthorization                // 3: Missing, invalid or insufficient API key.
	RetCStorage                      // 4: I/O failure of the persistent store.
	RetCProtocol                     // 5: Malformed subscriber handshake.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCValidation:
		return "ValidationError"
	case RetCAuthorization:
		return "AuthorizationError"
	case RetCStorage:
		return "StorageError"
	case RetCProtocol:
		return "ProtocolError"
	default:
		return fmt.Sprintf("RetCode(%d)", uint64(c))
	}
}
