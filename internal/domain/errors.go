package domain

import "errors"

var (
	// ErrUpstreamUnavailable marks an identity or ledger read that could
	// not complete. It is the only pipeline failure surfaced to callers:
	// context quality directly determines rule correctness, so it is not
	// silently defaulted.
	ErrUpstreamUnavailable = errors.New("upstream signal source unavailable")

	// ErrNotFound is returned by repository lookups for missing records.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateIdentity rejects a DID registration that collides with
	// an existing face hash or wallet.
	ErrDuplicateIdentity = errors.New("duplicate identity detected")

	// ErrInvalidInput marks malformed arguments to storage operations.
	ErrInvalidInput = errors.New("invalid input")
)
