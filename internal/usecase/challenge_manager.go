package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trajectoryd/internal/domain"
)

const (
	// FreshBreadcrumbWindow is the hard freshness bound for breadcrumbs
	// submitted with a challenge. Not configurable per call.
	FreshBreadcrumbWindow = 5 * time.Minute

	DefaultChallengeTTL = 5 * time.Minute
	MaxChallengeTTL     = time.Hour
)

// ChallengeManager issues and consumes single-use interactive challenges.
// All state lives in the injected ChallengeStore; time comes from the
// injected clock so tests can advance it deterministically.
type ChallengeManager struct {
	Identities IdentityStore
	Store      ChallengeStore
	Crypto     SignatureAdapter

	DefaultTTL time.Duration
	MaxTTL     time.Duration
	Clock      func() time.Time
}

type IssueChallengeRequest struct {
	PublicKey              string
	ExpiresIn              time.Duration
	RequireFreshBreadcrumb bool
	AllowedH3Cells         []string
}

type IssuedChallenge struct {
	ChallengeID     string    `json:"challengeId"`
	Challenge       string    `json:"challenge"`
	ExpiresAt       time.Time `json:"expiresAt"`
	RequiredH3Cells []string  `json:"requiredH3Cells,omitempty"`
}

type SubmitChallengeRequest struct {
	ChallengeID     string
	PublicKey       string
	Signature       string
	FreshBreadcrumb *domain.Breadcrumb
}

// Issue creates a challenge bound to an existing identity.
func (m *ChallengeManager) Issue(ctx context.Context, req IssueChallengeRequest) (*IssuedChallenge, error) {
	if m.Store == nil {
		return nil, errors.New("challenge store required")
	}
	if _, err := m.Identities.GetRecord(ctx, req.PublicKey); err != nil {
		return nil, err
	}

	ttl := req.ExpiresIn
	if ttl <= 0 {
		ttl = m.defaultTTL()
	}
	if max := m.maxTTL(); ttl > max {
		ttl = max
	}

	nonce, err := randomNonce()
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	now := m.now()
	challenge := domain.Challenge{
		ChallengeID:            uuid.NewString(),
		Challenge:              nonce,
		PublicKey:              req.PublicKey,
		RequireFreshBreadcrumb: req.RequireFreshBreadcrumb,
		AllowedH3Cells:         append([]string(nil), req.AllowedH3Cells...),
		CreatedAt:              now,
		ExpiresAt:              now.Add(ttl),
	}
	if err := m.Store.Put(ctx, challenge); err != nil {
		return nil, err
	}

	return &IssuedChallenge{
		ChallengeID:     challenge.ChallengeID,
		Challenge:       challenge.Challenge,
		ExpiresAt:       challenge.ExpiresAt,
		RequiredH3Cells: challenge.AllowedH3Cells,
	}, nil
}

// Submit validates a challenge response and consumes the challenge. Checks
// run in a fixed order (expiry, key binding, signature, breadcrumb policy)
// so responses leak as little as possible to a caller probing a challenge
// they do not own. Consumption is a take: of two concurrent valid
// submissions, exactly one wins and the other sees not-found.
func (m *ChallengeManager) Submit(ctx context.Context, req SubmitChallengeRequest) (*domain.Challenge, error) {
	if m.Store == nil {
		return nil, errors.New("challenge store required")
	}
	challenge, ok, err := m.Store.Get(ctx, req.ChallengeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrChallengeNotFound
	}

	now := m.now()
	if challenge.Expired(now) {
		_ = m.Store.Delete(ctx, req.ChallengeID)
		return nil, domain.ErrChallengeExpired
	}
	if req.PublicKey != challenge.PublicKey {
		return nil, domain.ErrChallengeMismatch
	}

	signable, err := m.Crypto.ChallengeSigningBytes(challenge.ChallengeID, challenge.Challenge, req.PublicKey)
	if err != nil {
		return nil, err
	}
	if err := m.Crypto.Verify(req.PublicKey, signable, req.Signature); err != nil {
		return nil, domain.ErrSignatureInvalid
	}

	if challenge.RequireFreshBreadcrumb {
		if err := m.checkFreshBreadcrumb(challenge, req, now); err != nil {
			return nil, err
		}
	}

	taken, ok, err := m.Store.Take(ctx, req.ChallengeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race against a concurrent submission.
		return nil, domain.ErrChallengeNotFound
	}
	return &taken, nil
}

func (m *ChallengeManager) checkFreshBreadcrumb(challenge domain.Challenge, req SubmitChallengeRequest, now time.Time) error {
	crumb := req.FreshBreadcrumb
	if crumb == nil {
		return domain.ErrBreadcrumbRequired
	}
	if now.Sub(crumb.Timestamp) > FreshBreadcrumbWindow {
		return domain.ErrBreadcrumbStale
	}
	if !challenge.AllowsCell(crumb.H3Cell) {
		return domain.ErrBreadcrumbLocationInvalid
	}
	signable, err := m.Crypto.BreadcrumbSigningBytes(*crumb)
	if err != nil {
		return err
	}
	if err := m.Crypto.Verify(req.PublicKey, signable, crumb.Signature); err != nil {
		return domain.ErrBreadcrumbSignature
	}
	return nil
}

func (m *ChallengeManager) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now()
}

func (m *ChallengeManager) defaultTTL() time.Duration {
	if m.DefaultTTL > 0 {
		return m.DefaultTTL
	}
	return DefaultChallengeTTL
}

func (m *ChallengeManager) maxTTL() time.Duration {
	if m.MaxTTL > 0 {
		return m.MaxTTL
	}
	return MaxChallengeTTL
}

func randomNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
