package trigger

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps triggers in process. Used by dry runs and tests.
type MemoryStore struct {
	mu       sync.Mutex
	triggers map[string]Trigger // strategyID/matchID -> trigger
	counts   map[string]int     // strategyID -> total triggers
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		triggers: make(map[string]Trigger),
		counts:   make(map[string]int),
	}
}

// InsertTriggerIfAbsent implements Store.
func (s *MemoryStore) InsertTriggerIfAbsent(_ context.Context, t Trigger) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := t.StrategyID + "/" + t.MatchID
	if _, exists := s.triggers[key]; exists {
		return false, nil
	}
	s.triggers[key] = t
	return true, nil
}

// IncrementTriggerCount bumps the strategy's trigger counter.
func (s *MemoryStore) IncrementTriggerCount(_ context.Context, strategyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[strategyID]++
	return nil
}

// TriggerCount returns the counter for a strategy.
func (s *MemoryStore) TriggerCount(strategyID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[strategyID]
}

// RecentTriggers returns up to limit triggers, newest first.
func (s *MemoryStore) RecentTriggers(_ context.Context, limit int) ([]Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Trigger, 0, len(s.triggers))
	for _, t := range s.triggers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored triggers.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.triggers)
}
