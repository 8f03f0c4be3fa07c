package navigation

import "errors"

// ErrNotFound is returned when a step or patient does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an update lost an optimistic concurrency race.
// Callers may reload and retry.
var ErrConflict = errors.New("concurrent update conflict")

// ValidationError carries a field-level rejection of caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
