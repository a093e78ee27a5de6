package usecase

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"trajectoryd/internal/domain"
)

// BreadcrumbProofRequest asks whether one breadcrumb is committed by a
// specific epoch. The caller supplies the audit path; the daemon supplies
// the trusted root from the stored epoch chain.
type BreadcrumbProofRequest struct {
	Identifier string
	EpochIndex int64
	Breadcrumb domain.Breadcrumb
	LeafIndex  int64
	Path       []string
}

// VerifyBreadcrumbInclusion recomputes the breadcrumb's leaf hash and
// checks the audit path against the epoch's merkle root. A proof that
// fails to reproduce the root yields Included=false; a malformed proof is
// an error.
func (s *VerificationService) VerifyBreadcrumbInclusion(ctx context.Context, req BreadcrumbProofRequest) (*domain.InclusionCheck, error) {
	if s.Crypto == nil || s.Inclusion == nil {
		return nil, errors.New("inclusion verifier required")
	}
	publicKey, err := s.ResolveIdentifier(ctx, req.Identifier)
	if err != nil {
		return nil, err
	}
	epochs, err := s.Identities.GetEpochs(ctx, publicKey)
	if err != nil {
		return nil, err
	}

	var epoch *domain.Epoch
	for i := range epochs {
		if epochs[i].EpochIndex == req.EpochIndex {
			epoch = &epochs[i]
			break
		}
	}
	if epoch == nil {
		return nil, fmt.Errorf("%w: index %d", domain.ErrEpochNotFound, req.EpochIndex)
	}

	root, err := hex.DecodeString(epoch.MerkleRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: epoch root is not hex", domain.ErrProofInvalid)
	}
	path := make([][]byte, 0, len(req.Path))
	for i, node := range req.Path {
		decoded, err := hex.DecodeString(node)
		if err != nil {
			return nil, fmt.Errorf("%w: path node %d is not hex", domain.ErrProofInvalid, i)
		}
		path = append(path, decoded)
	}

	payload, err := s.Crypto.BreadcrumbSigningBytes(req.Breadcrumb)
	if err != nil {
		return nil, err
	}
	included, err := s.Inclusion.VerifyInclusion(s.Inclusion.LeafHash(payload), req.LeafIndex, epoch.BlockCount, path, root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProofInvalid, err)
	}

	return &domain.InclusionCheck{
		Included:   included,
		EpochIndex: epoch.EpochIndex,
		MerkleRoot: epoch.MerkleRoot,
		BlockCount: epoch.BlockCount,
	}, nil
}
