package service

import (
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrInvalidArgument marks a malformed identifier or request value.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrValidationFailed marks one or more violated field constraints.
	ErrValidationFailed = errors.New("validation failed")
	// ErrNoFieldsToUpdate is returned when an update supplies neither title nor completed.
	ErrNoFieldsToUpdate = errors.New("no valid fields to update")
	// ErrNotFound is returned when no todo has the requested id.
	ErrNotFound = errors.New("todo not found")
)

// ArgumentError describes an InvalidArgument failure.
type ArgumentError struct {
	Field   string
	Message string
}

// InvalidArgument builds an ArgumentError.
func InvalidArgument(field, message string) *ArgumentError {
	return &ArgumentError{Field: field, Message: message}
}

func (e *ArgumentError) Error() string {
	if e.Field == "" {
		return "invalid argument: " + e.Message
	}
	return "invalid argument " + e.Field + ": " + e.Message
}

func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// ValidationError carries the ordered list of violations.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// ParseID parses a path identifier. Any base-10 int64 is well formed; zero
// and negative ids are left to the store, which never has them.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, InvalidArgument("id", "Invalid todo ID")
	}
	return id, nil
}
