package usecase

import (
	"context"
	"time"

	"trajectoryd/internal/domain"
)

// IdentityStore is the persistence collaborator. Lookups return
// domain.ErrIdentityNotFound for unknown keys or handles; numeric record
// fields are defaulted at this boundary.
type IdentityStore interface {
	GetRecord(ctx context.Context, publicKey string) (*domain.IdentityRecord, error)
	GetEpochs(ctx context.Context, publicKey string) ([]domain.Epoch, error)
	ResolveHandle(ctx context.Context, handle string) (string, error)
}

// SignatureAdapter owns canonical encoding of signable payloads and
// signature verification. Encodings must be byte-exact and deterministic so
// signatures produced once remain verifiable forever.
type SignatureAdapter interface {
	EpochSigningBytes(e domain.Epoch) ([]byte, error)
	ChallengeSigningBytes(challengeID, challenge, publicKey string) ([]byte, error)
	BreadcrumbSigningBytes(b domain.Breadcrumb) ([]byte, error)
	Verify(publicKeyHex string, message []byte, signatureB64 string) error
}

// ChallengeStore holds pending challenges. Take must be atomic: at most one
// caller ever receives a given challenge.
type ChallengeStore interface {
	Put(ctx context.Context, c domain.Challenge) error
	Get(ctx context.Context, challengeID string) (domain.Challenge, bool, error)
	Take(ctx context.Context, challengeID string) (domain.Challenge, bool, error)
	Delete(ctx context.Context, challengeID string) error
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// VerificationCache is an optional short-TTL cache for verification
// results. Challenge submissions never go through it.
type VerificationCache interface {
	Get(ctx context.Context, key string) (*domain.VerificationResult, bool, error)
	Put(ctx context.Context, key string, value domain.VerificationResult, ttl time.Duration) error
}

// InclusionVerifier checks a merkle audit path against an epoch's signed
// root.
type InclusionVerifier interface {
	LeafHash(payload []byte) []byte
	VerifyInclusion(leafHash []byte, leafIndex, treeSize int64, path [][]byte, root []byte) (bool, error)
}

// PolicyEngine evaluates an optional relying-party policy over a
// verification result.
type PolicyEngine interface {
	Evaluate(ctx context.Context, result domain.VerificationResult) (domain.PolicyDecision, error)
}
