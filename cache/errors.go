package cache

import (
	"errors"
	"fmt"
)

// ErrInvalidState is matched by every *InvalidStateError.
var ErrInvalidState = errors.New("invalid statement handle state")

// ErrNilStatement is returned when a StatementFactory yields neither a
// statement nor an error.
var ErrNilStatement = errors.New("statement factory returned nil statement")

// InvalidStateError reports an operation on a handle whose state does not
// allow it, such as releasing a handle that is not borrowed.
type InvalidStateError struct {
	Key   Key
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cache: cannot %s %s statement handle %s", e.Op, e.State, e.Key)
}

// Is makes errors.Is(err, ErrInvalidState) hold.
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}
