package usecase

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"trajectoryd/internal/domain"
	"trajectoryd/internal/infra/crypto"
)

type memIdentityStore struct {
	records map[string]domain.IdentityRecord
	epochs  map[string][]domain.Epoch
	handles map[string]string

	epochReads int
}

func newMemIdentityStore() *memIdentityStore {
	return &memIdentityStore{
		records: make(map[string]domain.IdentityRecord),
		epochs:  make(map[string][]domain.Epoch),
		handles: make(map[string]string),
	}
}

func (s *memIdentityStore) put(record domain.IdentityRecord, epochs []domain.Epoch) {
	key := strings.ToLower(record.PublicKey)
	s.records[key] = record
	s.epochs[key] = epochs
	if record.Handle != "" {
		s.handles[strings.ToLower(record.Handle)] = key
	}
}

func (s *memIdentityStore) GetRecord(_ context.Context, publicKey string) (*domain.IdentityRecord, error) {
	record, ok := s.records[strings.ToLower(publicKey)]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	out := record
	return &out, nil
}

func (s *memIdentityStore) GetEpochs(_ context.Context, publicKey string) ([]domain.Epoch, error) {
	s.epochReads++
	return s.epochs[strings.ToLower(publicKey)], nil
}

func (s *memIdentityStore) ResolveHandle(_ context.Context, handle string) (string, error) {
	publicKey, ok := s.handles[strings.ToLower(handle)]
	if !ok {
		return "", domain.ErrIdentityNotFound
	}
	return publicKey, nil
}

type memChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]domain.Challenge
}

func newMemChallengeStore() *memChallengeStore {
	return &memChallengeStore{challenges: make(map[string]domain.Challenge)}
}

func (s *memChallengeStore) Put(_ context.Context, c domain.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[c.ChallengeID] = c
	return nil
}

func (s *memChallengeStore) Get(_ context.Context, challengeID string) (domain.Challenge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[challengeID]
	return c, ok, nil
}

func (s *memChallengeStore) Take(_ context.Context, challengeID string) (domain.Challenge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[challengeID]
	if ok {
		delete(s.challenges, challengeID)
	}
	return c, ok, nil
}

func (s *memChallengeStore) Delete(_ context.Context, challengeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, challengeID)
	return nil
}

func (s *memChallengeStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, c := range s.challenges {
		if c.Expired(now) {
			delete(s.challenges, id)
			removed++
		}
	}
	return removed, nil
}

func generateIdentityKey(t *testing.T) (string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return hex.EncodeToString(pub), priv
}

func signBase64(priv ed25519.PrivateKey, payload []byte) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, payload))
}

// buildEpochChain produces a well-formed signed chain of n epochs, one per
// day starting at start.
func buildEpochChain(t *testing.T, priv ed25519.PrivateKey, start time.Time, n int) []domain.Epoch {
	t.Helper()
	svc := crypto.NewService()
	epochs := make([]domain.Epoch, 0, n)
	prevHash := ""
	for i := 0; i < n; i++ {
		epoch := domain.Epoch{
			EpochIndex:    int64(i),
			MerkleRoot:    fmt.Sprintf("root-%d", i),
			StartTime:     start.Add(time.Duration(i) * 24 * time.Hour),
			EndTime:       start.Add(time.Duration(i+1) * 24 * time.Hour),
			BlockCount:    10,
			PrevEpochHash: prevHash,
		}
		signable, err := svc.EpochSigningBytes(epoch)
		if err != nil {
			t.Fatalf("epoch signing bytes: %v", err)
		}
		sum := sha256.Sum256(signable)
		epoch.EpochHash = hex.EncodeToString(sum[:])
		epoch.Signature = signBase64(priv, signable)
		epochs = append(epochs, epoch)
		prevHash = epoch.EpochHash
	}
	return epochs
}
