package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"trajectoryd/internal/domain"
)

const DefaultBatchMax = 100

// VerificationService is the facade composing the identity store, chain
// verifier, level calculator and challenge manager.
type VerificationService struct {
	Identities IdentityStore
	Chain      *ChainVerifier
	Challenges *ChallengeManager
	Cache      VerificationCache
	Crypto     SignatureAdapter
	Inclusion  InclusionVerifier

	CacheTTL time.Duration
	BatchMax int
	Clock    func() time.Time
}

type VerifyRequest struct {
	Identifier   string
	MinLevel     domain.VerificationLevel
	IncludeProof bool
}

type BatchVerification struct {
	Results       []BatchEntry             `json:"results"`
	MinLevel      domain.VerificationLevel `json:"minLevel"`
	VerifiedCount int                      `json:"verifiedCount"`
	TotalCount    int                      `json:"totalCount"`
}

type BatchEntry struct {
	Identifier string `json:"identifier"`
	domain.VerificationResult
	Error string `json:"error,omitempty"`
}

// Verify resolves an identifier, derives the level, and (optionally) proves
// the epoch chain. A broken chain is reported through ChainValid without
// flipping Verified: not meeting the bar and the bar being untrustworthy
// are distinct signals.
func (s *VerificationService) Verify(ctx context.Context, req VerifyRequest) (*domain.VerificationResult, error) {
	minLevel := req.MinLevel
	if minLevel == "" {
		minLevel = domain.LevelBasic
	}
	if _, ok := domain.ParseLevel(string(minLevel)); !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidLevel, minLevel)
	}

	publicKey, err := s.ResolveIdentifier(ctx, req.Identifier)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("%s|%s|%t", publicKey, minLevel, req.IncludeProof)
	if s.Cache != nil {
		if cached, ok, err := s.Cache.Get(ctx, cacheKey); err == nil && ok {
			return cached, nil
		}
	}

	record, err := s.Identities.GetRecord(ctx, publicKey)
	if err != nil {
		return nil, err
	}
	result, err := s.buildResult(ctx, record, minLevel, req.IncludeProof)
	if err != nil {
		return nil, err
	}

	if s.Cache != nil && s.CacheTTL > 0 {
		_ = s.Cache.Put(ctx, cacheKey, *result, s.CacheTTL)
	}
	return result, nil
}

// VerifyAtLevel answers a threshold question only; the epoch chain is never
// touched.
func (s *VerificationService) VerifyAtLevel(ctx context.Context, identifier string, level domain.VerificationLevel) (*domain.LevelCheck, error) {
	if _, ok := domain.ParseLevel(string(level)); !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidLevel, level)
	}
	publicKey, err := s.ResolveIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	record, err := s.Identities.GetRecord(ctx, publicKey)
	if err != nil {
		return nil, err
	}
	actual := LevelForMetrics(record.BreadcrumbCount, record.TrustScore)
	return &domain.LevelCheck{
		MeetsLevel:   MeetsMinimum(actual, level),
		ActualLevel:  actual,
		Requirements: RequirementsFor(level),
		Current: domain.LevelMetrics{
			Breadcrumbs: record.BreadcrumbCount,
			Trust:       record.TrustScore,
		},
	}, nil
}

// VerifyBatch evaluates each identifier independently; one bad entry is
// recorded in place and never aborts the batch.
func (s *VerificationService) VerifyBatch(ctx context.Context, identifiers []string, minLevel domain.VerificationLevel) (*BatchVerification, error) {
	if minLevel == "" {
		minLevel = domain.LevelBasic
	}
	if _, ok := domain.ParseLevel(string(minLevel)); !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidLevel, minLevel)
	}
	max := s.BatchMax
	if max <= 0 {
		max = DefaultBatchMax
	}
	if len(identifiers) > max {
		return nil, fmt.Errorf("%w: %d > %d", domain.ErrTooManyIdentifiers, len(identifiers), max)
	}

	batch := &BatchVerification{
		MinLevel:   minLevel,
		TotalCount: len(identifiers),
		Results:    make([]BatchEntry, 0, len(identifiers)),
	}
	for _, identifier := range identifiers {
		entry := BatchEntry{Identifier: identifier}
		result, err := s.Verify(ctx, VerifyRequest{Identifier: identifier, MinLevel: minLevel})
		if err != nil {
			entry.VerificationResult = domain.VerificationResult{
				Verified:          false,
				VerificationLevel: domain.LevelNone,
			}
			entry.Error = err.Error()
		} else {
			entry.VerificationResult = *result
			if result.Verified {
				batch.VerifiedCount++
			}
		}
		batch.Results = append(batch.Results, entry)
	}
	return batch, nil
}

// IssueChallenge delegates to the challenge manager.
func (s *VerificationService) IssueChallenge(ctx context.Context, req IssueChallengeRequest) (*IssuedChallenge, error) {
	if s.Challenges == nil {
		return nil, errors.New("challenge manager required")
	}
	return s.Challenges.Issue(ctx, req)
}

// SubmitChallenge consumes a challenge and, on success, returns the full
// verification result with Verified forced true: the caller asked a
// liveness question, not a threshold question.
func (s *VerificationService) SubmitChallenge(ctx context.Context, req SubmitChallengeRequest) (*domain.VerificationResult, error) {
	if s.Challenges == nil {
		return nil, errors.New("challenge manager required")
	}
	challenge, err := s.Challenges.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	record, err := s.Identities.GetRecord(ctx, challenge.PublicKey)
	if err != nil {
		return nil, err
	}
	result, err := s.buildResult(ctx, record, domain.LevelNone, true)
	if err != nil {
		return nil, err
	}
	result.Verified = true
	return result, nil
}

// ResolveIdentifier turns a handle or raw public key into a public key. A
// 64-hex-character string without a leading '@' is taken as a key;
// everything else resolves as a handle.
func (s *VerificationService) ResolveIdentifier(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", domain.ErrInvalidIdentifier
	}
	if isHexPublicKey(identifier) {
		return strings.ToLower(identifier), nil
	}
	handle := strings.TrimPrefix(identifier, "@")
	if handle == "" {
		return "", domain.ErrInvalidIdentifier
	}
	return s.Identities.ResolveHandle(ctx, handle)
}

func (s *VerificationService) buildResult(ctx context.Context, record *domain.IdentityRecord, minLevel domain.VerificationLevel, includeProof bool) (*domain.VerificationResult, error) {
	level := LevelForMetrics(record.BreadcrumbCount, record.TrustScore)
	result := &domain.VerificationResult{
		Verified:          MeetsMinimum(level, minLevel),
		PublicKey:         record.PublicKey,
		Handle:            record.Handle,
		TrustScore:        record.TrustScore,
		BreadcrumbCount:   record.BreadcrumbCount,
		VerificationLevel: level,
	}
	if !record.UpdatedAt.IsZero() {
		updated := record.UpdatedAt
		result.LastActivity = &updated
	}

	epochs, err := s.Identities.GetEpochs(ctx, record.PublicKey)
	if err != nil {
		return nil, err
	}
	if len(epochs) > 0 {
		first := epochs[0]
		for _, e := range epochs[1:] {
			if e.EpochIndex < first.EpochIndex {
				first = e
			}
		}
		since := first.StartTime
		result.VerifiedSince = &since
		if days := int64(s.now().Sub(since).Hours() / 24); days > 0 {
			result.TrajectoryDays = days
		}
	}

	if includeProof && s.Chain != nil {
		check := s.Chain.VerifyEpochs(record.PublicKey, epochs)
		result.ChainValid = check.Valid
		if check.Valid && check.MerkleRoot != "" {
			result.ProofHash = "ed25519:" + check.MerkleRoot
		}
	}
	return result, nil
}

func (s *VerificationService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func isHexPublicKey(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
