// pkg/chunk/errors.go

package chunk

import (
	"errors"
	"fmt"
)

// Kinds of Error, to be matched with errors.Is.
var (
	ErrConfiguration = errors.New("configuration failed")
	ErrAppend        = errors.New("append failed")
	ErrSerialization = errors.New("serialization failed")
	ErrNotConfigured = errors.New("cache is not configured")
	ErrStorage       = errors.New("storage failed")
)

// Error tags a failure with the operation that was in progress. Unwrap
// returns the original failure, so errors.Is and errors.As see the storage
// error as well as the Kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}
