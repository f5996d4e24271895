package variant

import "errors"

var (
	// ErrMalformed indicates the buffer violates the framing rules.
	ErrMalformed = errors.New("variant: malformed data")

	// ErrOutOfRange indicates an element index past the end of an array.
	ErrOutOfRange = errors.New("variant: index out of range")

	// ErrNotFound indicates a key missing from a map.
	ErrNotFound = errors.New("variant: key not found")

	// ErrTypeMismatch indicates a value was read as the wrong type.
	ErrTypeMismatch = errors.New("variant: type mismatch")
)
