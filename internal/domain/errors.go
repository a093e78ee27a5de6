package domain

import "errors"

var (
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrInvalidIdentifier  = errors.New("invalid identifier")
	ErrInvalidLevel       = errors.New("invalid level")
	ErrTooManyIdentifiers = errors.New("too many identifiers")

	ErrChainBroken      = errors.New("chain broken")
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrEpochNotFound    = errors.New("epoch not found")
	ErrProofInvalid     = errors.New("inclusion proof invalid")

	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrChallengeMismatch = errors.New("challenge public key mismatch")

	ErrBreadcrumbRequired        = errors.New("fresh breadcrumb required")
	ErrBreadcrumbStale           = errors.New("breadcrumb stale")
	ErrBreadcrumbLocationInvalid = errors.New("breadcrumb location not allowed")
	ErrBreadcrumbSignature       = errors.New("breadcrumb signature invalid")
)
