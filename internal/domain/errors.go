package domain

import "errors"

// Sentinel errors for the command core. Services wrap these with context;
// the dispatch layer maps them to user-facing reply text.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrInvalidDate      = errors.New("invalid date")
	ErrPermissionDenied = errors.New("permission denied")
	ErrConstraint       = errors.New("constraint violation")
	ErrInvariant        = errors.New("invariant violation")
)
