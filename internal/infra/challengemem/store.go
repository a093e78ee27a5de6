// Package challengemem is the in-process challenge store. Challenges are
// never persisted: a restart invalidates everything pending, which is the
// intended failure mode for a liveness protocol.
package challengemem

import (
	"context"
	"sync"
	"time"

	"trajectoryd/internal/domain"
	"trajectoryd/internal/usecase"
)

type Store struct {
	mu         sync.Mutex
	challenges map[string]domain.Challenge
	clock      func() time.Time
}

func New() *Store {
	return NewWithClock(nil)
}

func NewWithClock(clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		challenges: make(map[string]domain.Challenge),
		clock:      clock,
	}
}

func (s *Store) Put(_ context.Context, c domain.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[c.ChallengeID] = c
	return nil
}

func (s *Store) Get(_ context.Context, challengeID string) (domain.Challenge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[challengeID]
	return c, ok, nil
}

// Take removes and returns the challenge in one step. Two concurrent takes
// for the same ID cannot both succeed.
func (s *Store) Take(_ context.Context, challengeID string) (domain.Challenge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[challengeID]
	if ok {
		delete(s.challenges, challengeID)
	}
	return c, ok, nil
}

func (s *Store) Delete(_ context.Context, challengeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, challengeID)
	return nil
}

// Sweep removes every expired challenge, consumed or abandoned. The lock is
// held per entry, never across the whole pass.
func (s *Store) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.challenges))
	for id := range s.challenges {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	removed := 0
	for _, id := range ids {
		s.mu.Lock()
		if c, ok := s.challenges[id]; ok && c.Expired(now) {
			delete(s.challenges, id)
			removed++
		}
		s.mu.Unlock()
	}
	return removed, nil
}

// StartSweep runs the expiry sweep on a fixed interval until ctx is done.
func (s *Store) StartSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = s.Sweep(ctx, s.clock())
			}
		}
	}()
}

// Len reports the number of pending challenges.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

var _ usecase.ChallengeStore = (*Store)(nil)
