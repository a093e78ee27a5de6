package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"trajectoryd/internal/domain"
)

// Service is the production signature adapter: JCS canonical encoding over
// the signable payloads, ed25519 for verification. Public keys are hex,
// signatures base64.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// EpochSigningBytes encodes the signable subset of an epoch. EpochHash and
// Signature are excluded: the hash identifies the epoch after signing and
// the signature cannot cover itself.
func (s *Service) EpochSigningBytes(e domain.Epoch) ([]byte, error) {
	return CanonicalizeAny(epochPayload{
		EpochIndex:    e.EpochIndex,
		MerkleRoot:    e.MerkleRoot,
		StartTime:     canonicalTime(e.StartTime),
		EndTime:       canonicalTime(e.EndTime),
		BlockCount:    e.BlockCount,
		PrevEpochHash: e.PrevEpochHash,
	})
}

// ChallengeSigningBytes encodes the payload a client must sign to redeem a
// challenge.
func (s *Service) ChallengeSigningBytes(challengeID, challenge, publicKey string) ([]byte, error) {
	return CanonicalizeAny(challengePayload{
		ChallengeID: challengeID,
		Challenge:   challenge,
		PublicKey:   publicKey,
	})
}

// BreadcrumbSigningBytes encodes the signable fields of a fresh breadcrumb.
func (s *Service) BreadcrumbSigningBytes(b domain.Breadcrumb) ([]byte, error) {
	return CanonicalizeAny(breadcrumbPayload{
		H3Cell:    b.H3Cell,
		Timestamp: canonicalTime(b.Timestamp),
	})
}

// Verify checks an ed25519 signature over message.
func (s *Service) Verify(publicKeyHex string, message []byte, signatureB64 string) error {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return fmt.Errorf("invalid public key encoding: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid ed25519 public key length: %d", len(pub))
	}
	if signatureB64 == "" {
		return errors.New("signature value is required")
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("invalid ed25519 signature length: %d", len(sig))
	}
	if !ed25519.Verify(pub, message, sig) {
		return errors.New("signature verification failed")
	}
	return nil
}

func canonicalTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

type epochPayload struct {
	EpochIndex    int64  `json:"epoch_index"`
	MerkleRoot    string `json:"merkle_root"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	BlockCount    int64  `json:"block_count"`
	PrevEpochHash string `json:"prev_epoch_hash"`
}

type challengePayload struct {
	ChallengeID string `json:"challenge_id"`
	Challenge   string `json:"challenge"`
	PublicKey   string `json:"public_key"`
}

type breadcrumbPayload struct {
	H3Cell    string `json:"h3_cell"`
	Timestamp string `json:"timestamp"`
}
