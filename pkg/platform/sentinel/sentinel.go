package sentinel

import "errors"

// Store-level facts. Stores and adapters return these (optionally wrapped)
// and services translate them into domain errors:
//   - ErrNotFound: row or remote resource does not exist
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrInvalidState: the record is in the wrong state for the write
//   - ErrUnavailable: a backing dependency could not be reached
//
// Validation failures never use these; services build dErrors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
