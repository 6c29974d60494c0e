// This file contains the error types returned by cluster cursors.

package clustercursor

import (
	"errors"
	"fmt"
)

// ConfigurationError is returned when MergeParameters are malformed,
// e.g. the sort pattern does not fit CompareWholeSortKey.
// It is always returned at construction time.
type ConfigurationError struct {
	error
}

// Unwrap returns the inner, wrapped error.
func (err *ConfigurationError) Unwrap() error { return err.error }

func configErrorf(format string, args ...interface{}) error {
	return &ConfigurationError{fmt.Errorf(format, args...)}
}

// RemoteError is returned when a remote cursor fails to advance.
// It carries the identity of the failing remote.
type RemoteError struct {
	error

	// ShardID is the shard the failing cursor lives on.
	ShardID ShardID

	// Host is the exact host within the shard.
	Host HostAndPort

	// CursorID is the id of the remote cursor that failed.
	CursorID int64
}

// Unwrap returns the inner, wrapped error.
func (err *RemoteError) Unwrap() error { return err.error }

func (err *RemoteError) Error() string {
	return fmt.Sprintf("remote cursor %d on shard %s (%s) failed: %v",
		err.CursorID, err.ShardID, err.Host, err.error)
}

// InvalidStateError is returned when an operation is attempted on a cursor
// that does not allow it any more, e.g. Next() on a killed cursor.
type InvalidStateError struct {
	error
}

// Unwrap returns the inner, wrapped error.
func (err *InvalidStateError) Unwrap() error { return err.error }

func invalidStatef(format string, args ...interface{}) error {
	return &InvalidStateError{fmt.Errorf(format, args...)}
}

// LogicError reports a violated internal invariant. Seeing one is a bug.
type LogicError struct {
	error
}

// Unwrap returns the inner, wrapped error.
func (err *LogicError) Unwrap() error { return err.error }

func logicErrorf(format string, args ...interface{}) error {
	return &LogicError{fmt.Errorf("BUG: "+format, args...)}
}

// IsRemoteError tells if err is (or wraps) a *RemoteError.
func IsRemoteError(err error) bool {
	var rerr *RemoteError
	return errors.As(err, &rerr)
}
