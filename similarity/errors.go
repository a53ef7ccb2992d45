package similarity

import "errors"

var (
	// ErrZeroMagnitude is returned when a vector has zero length, making
	// cosine similarity undefined.
	ErrZeroMagnitude = errors.New("zero magnitude vector")

	// ErrInvalidParams is returned for unusable query parameters.
	ErrInvalidParams = errors.New("invalid similarity parameters")
)
