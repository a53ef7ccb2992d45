package ai

import "errors"

// ErrModelUnavailable indicates that the embedding model could not be
// loaded. It is a startup failure; retrying without fixing the environment
// does not help.
var ErrModelUnavailable = errors.New("embedding model unavailable")
