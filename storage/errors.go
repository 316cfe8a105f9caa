package storage

import "errors"

// Sentinel errors every CAS backend and wrapper in this package reports
// through, so callers (notably ingest.Ingest) can branch on errors.Is
// without caring which backend produced the miss.
var (
	ErrNotFound    = errors.New("storage: record not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	ErrImmutable   = errors.New("storage: immutable object mismatch")
)

// IsNotFound reports whether err (or anything it wraps) is ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
