package eventsource

import "errors"

var (
	// ErrSourceUnavailable indicates the event source could not be reached
	// or refused the request at the transport/auth level.
	ErrSourceUnavailable = errors.New("event source unavailable")

	// ErrQueryError indicates the event source rejected the query as
	// malformed.
	ErrQueryError = errors.New("event source query error")

	// ErrWriteConflict indicates the target document was deleted or
	// modified incompatibly since it was read.
	ErrWriteConflict = errors.New("event source write conflict")
)
