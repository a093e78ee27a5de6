// Package identmem is an in-memory identity store used in no-db mode and
// in tests. Records and epochs are seeded, never mutated by the
// verification paths.
package identmem

import (
	"context"
	"sort"
	"strings"
	"sync"

	"trajectoryd/internal/domain"
	"trajectoryd/internal/usecase"
)

type Store struct {
	mu      sync.RWMutex
	records map[string]domain.IdentityRecord
	epochs  map[string][]domain.Epoch
	handles map[string]string
}

func New() *Store {
	return &Store{
		records: make(map[string]domain.IdentityRecord),
		epochs:  make(map[string][]domain.Epoch),
		handles: make(map[string]string),
	}
}

// PutRecord registers or replaces an identity record. The handle index
// follows the record.
func (s *Store) PutRecord(record domain.IdentityRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(record.PublicKey)
	record.PublicKey = key
	s.records[key] = record
	if record.Handle != "" {
		s.handles[strings.ToLower(record.Handle)] = key
	}
}

// PutEpochs replaces the epoch chain for a public key.
func (s *Store) PutEpochs(publicKey string, epochs []domain.Epoch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := make([]domain.Epoch, len(epochs))
	copy(sorted, epochs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].EpochIndex < sorted[j].EpochIndex
	})
	s.epochs[strings.ToLower(publicKey)] = sorted
}

func (s *Store) GetRecord(_ context.Context, publicKey string) (*domain.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[strings.ToLower(publicKey)]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	out := record
	return &out, nil
}

func (s *Store) GetEpochs(_ context.Context, publicKey string) ([]domain.Epoch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	epochs := s.epochs[strings.ToLower(publicKey)]
	out := make([]domain.Epoch, len(epochs))
	copy(out, epochs)
	return out, nil
}

func (s *Store) ResolveHandle(_ context.Context, handle string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	publicKey, ok := s.handles[strings.ToLower(handle)]
	if !ok {
		return "", domain.ErrIdentityNotFound
	}
	return publicKey, nil
}

var _ usecase.IdentityStore = (*Store)(nil)
