package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"trajectoryd/internal/domain"
)

// ChainVerifier walks an identity's epoch sequence and proves hash linkage
// and signature authenticity. Verification is deterministic and
// side-effect-free; a failure is a permanent fact about the current data.
type ChainVerifier struct {
	Identities IdentityStore
	Crypto     SignatureAdapter
}

// Verify fetches the identity's epochs and checks the whole chain. An empty
// chain is valid with no merkle root: that is the base case for brand-new
// identities, not a break.
func (v *ChainVerifier) Verify(ctx context.Context, publicKey string) (domain.ChainCheck, error) {
	if v.Identities == nil {
		return domain.ChainCheck{}, errors.New("identity store required")
	}
	epochs, err := v.Identities.GetEpochs(ctx, publicKey)
	if err != nil {
		return domain.ChainCheck{}, err
	}
	return v.VerifyEpochs(publicKey, epochs), nil
}

// VerifyEpochs checks an already-fetched epoch sequence. The store is
// expected to return epochs ordered by index; out-of-order input is sorted
// here and gaps or duplicates break the chain.
func (v *ChainVerifier) VerifyEpochs(publicKey string, epochs []domain.Epoch) domain.ChainCheck {
	if len(epochs) == 0 {
		return domain.ChainCheck{Valid: true}
	}

	ordered := make([]domain.Epoch, len(epochs))
	copy(ordered, epochs)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].EpochIndex < ordered[j].EpochIndex
	})

	prevHash := ""
	for i, epoch := range ordered {
		if epoch.EpochIndex != int64(i) {
			return chainBroken(fmt.Sprintf("epoch index not contiguous: expected %d got %d", i, epoch.EpochIndex))
		}
		if epoch.PrevEpochHash != prevHash {
			return chainBroken(fmt.Sprintf("chain broken at epoch %d: expected prev hash %q got %q", epoch.EpochIndex, prevHash, epoch.PrevEpochHash))
		}
		signable, err := v.Crypto.EpochSigningBytes(epoch)
		if err != nil {
			return chainBroken(fmt.Sprintf("epoch %d: %v", epoch.EpochIndex, err))
		}
		if err := v.Crypto.Verify(publicKey, signable, epoch.Signature); err != nil {
			return chainBroken(fmt.Sprintf("invalid signature at epoch %d", epoch.EpochIndex))
		}
		prevHash = epoch.EpochHash
	}

	return domain.ChainCheck{
		Valid:      true,
		MerkleRoot: ordered[len(ordered)-1].MerkleRoot,
	}
}

func chainBroken(msg string) domain.ChainCheck {
	return domain.ChainCheck{Valid: false, Error: msg}
}
