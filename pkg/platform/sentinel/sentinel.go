package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, caches and ledger clients
// return these (optionally wrapped) so services can translate them into
// domain errors.
//
//   - ErrNotFound: record does not exist in the store
//   - ErrConflict: a unique record (proof id, anchor receipt) already exists
//   - ErrExpired: a cached or stored value is past its validity window
//   - ErrInvalidState: record is in the wrong state for the requested transition
//   - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
