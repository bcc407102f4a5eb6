package hexpath

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds.  Callers branch on these with errors.Is; everything
// returned by this package that means one of these things wraps one
// of them.
var (
	// ErrInvalid means the caller's input was wrong: a malformed hex
	// string, an unmanaged path, or a bad configuration value.
	ErrInvalid = errors.New("invalid argument")
	// ErrNotFound means the identifier (or prefix) isn't in the store.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguous means more than one distinct identifier matched a
	// prefix.
	ErrAmbiguous = errors.New("ambiguous prefix")
	// ErrCorrupt means the on-disk state can't be trusted.
	ErrCorrupt = errors.New("corrupt")
)

// CorruptionError describes a structural integrity fault found at Path.
type CorruptionError struct {
	Path   string
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt: %s: %s", e.Reason, e.Path)
}

func (e *CorruptionError) Unwrap() error {
	return ErrCorrupt
}

// Corrupt returns a *CorruptionError for path.
func Corrupt(path, format string, args ...interface{}) error {
	return &CorruptionError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
