package casdict

import (
	"fmt"

	"github.com/unkn0wn-root/casdict/key"
)

// NotFoundError reports an absent key on the unconditional surface.
// The conditional surface never raises it; absence is reported there as
// ItemNotAvailable in the Result.
type NotFoundError struct {
	Key key.Key
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("casdict: key %q not found", e.Key)
}

// ConflictError reports that a bounded retry budget for a write race was
// exhausted: every create attempt saw the key present while every re-read
// saw it absent (a concurrent deleter).
type ConflictError struct {
	Key      key.Key
	Attempts int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("casdict: key %q: conflicting writers, gave up after %d attempts", e.Key, e.Attempts)
}

// CheckError reports a stored value that violates the dictionary's declared
// value constraint. It is raised on read paths (including iteration), never
// on write.
type CheckError struct {
	Key key.Key
	Err error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("casdict: key %q: stored value violates constraint: %v", e.Key, e.Err)
}

func (e *CheckError) Unwrap() error { return e.Err }
