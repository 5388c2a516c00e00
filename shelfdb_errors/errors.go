// Provides common shelfdb error definitions.
package shelfdb_errors

import "errors"

var (
	ErrValidation        = errors.New("shelfdb: invalid input")
	ErrNotFound          = errors.New("shelfdb: not found")
	ErrUnauthorized      = errors.New("shelfdb: caller is not allowed")
	ErrCircularReference = errors.New("shelfdb: nested shelf cycle")
	ErrLimitExceeded     = errors.New("shelfdb: limit exceeded")
	ErrInvalidCursor     = errors.New("shelfdb: cursor does not match the query")
	ErrClosed            = errors.New("shelfdb: engine is closed")

	// ErrIntegrity marks a commit-phase storage failure. It is never returned
	// to callers; the engine aborts the process instead, since a half-applied
	// batch would leave the indexes contradicting the shelf records.
	ErrIntegrity = errors.New("shelfdb: index integrity violation")
)
