package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/challengeboard/challengeboard/pkg/apperror"
	"github.com/challengeboard/challengeboard/pkg/types"
)

var errClosed = errors.New("store closed")

// Memory is a thread-safe in-memory Store keyed by challenge id.
// Its contents do not survive the process; use it for dry runs and tests.
type Memory struct {
	mu         sync.RWMutex
	challenges map[int64]types.Challenge
	rankings   []types.MonthlyRanking
	closed     bool
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{challenges: make(map[int64]types.Challenge)}
}

func (m *Memory) Seed(ctx context.Context, seeds []types.Challenge) (int, error) {
	return seedWith(ctx, seeds, m.count, m.InsertNew)
}

func (m *Memory) count(_ context.Context, ids []int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, errClosed
	}
	n := 0
	for _, id := range ids {
		if _, ok := m.challenges[id]; ok {
			n++
		}
	}
	return n, nil
}

// InsertNew stores challenges. If any id is already stored or repeated in
// the input, nothing is written.
func (m *Memory) InsertNew(_ context.Context, challenges []types.Challenge) error {
	if len(challenges) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return apperror.Persistence("insert challenges", errClosed)
	}

	fresh := make(map[int64]types.Challenge, len(challenges))
	for _, c := range challenges {
		if _, ok := m.challenges[c.ID]; ok {
			continue
		}
		fresh[c.ID] = c
	}
	if len(fresh) != len(challenges) {
		return insertMismatch("insert challenges", len(fresh), len(challenges))
	}
	for id, c := range fresh {
		m.challenges[id] = c
	}
	return nil
}

func (m *Memory) ListAll(_ context.Context, withCommunity bool) ([]types.ChallengeRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, apperror.Persistence("list challenges", errClosed)
	}
	out := make([]types.ChallengeRef, 0, len(m.challenges))
	for _, c := range m.challenges {
		ref := types.ChallengeRef{ID: c.ID}
		if withCommunity {
			ref.Community = c.Community
		}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Publish swaps the leaderboard under the write lock.
func (m *Memory) Publish(_ context.Context, rankings []types.MonthlyRanking) error {
	next := cloneRankings(rankings)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return apperror.Persistence("publish rankings", errClosed)
	}
	m.rankings = next
	return nil
}

func (m *Memory) Leaderboard(_ context.Context) ([]types.MonthlyRanking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, apperror.Persistence("read leaderboard", errClosed)
	}
	return cloneRankings(m.rankings), nil
}

// Count returns the number of stored challenges.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.challenges)
}

func (m *Memory) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errClosed
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
