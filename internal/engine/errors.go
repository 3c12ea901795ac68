package engine

import (
	"errors"
	"strings"
)

// ErrConflict marks an apply-time version race detected after validation
// passed. With best-effort apply semantics it is reported per entry, never
// returned from ApplyChangeset.
var ErrConflict = errors.New("version conflict")

// ValidationError aggregates every reason the validation pass rejected the
// batch. No mutation has happened when it is returned.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	if len(e.Reasons) == 0 {
		return "changeset validation failed"
	}
	return "changeset validation failed: " + strings.Join(e.Reasons, "; ")
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
