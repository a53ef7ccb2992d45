package ingestion

import "errors"

var (
	// ErrRepositoryRequired is returned when a corpus repository is not provided.
	ErrRepositoryRequired = errors.New("corpus repository required")

	// ErrMissingColumn is returned when the corpus file lacks a required column.
	ErrMissingColumn = errors.New("missing required column")

	// ErrMalformedRow is returned when a corpus row cannot be decoded.
	ErrMalformedRow = errors.New("malformed corpus row")

	// ErrDuplicateID is returned when two imported records share an ID.
	ErrDuplicateID = errors.New("duplicate restaurant id")
)
