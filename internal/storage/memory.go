package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBackend implements an in-memory decision store
type MemoryBackend struct {
	mu         sync.RWMutex
	decisions  map[string]*Decision // ID -> Decision
	agentIndex map[int][]string     // AgentID -> DecisionIDs, oldest first
	timeIndex  []string             // DecisionIDs sorted by timestamp
	maxSize    uint64               // Maximum number of decisions to store
	evicted    uint64
	now        func() time.Time
	closed     bool
}

// NewMemoryBackend creates a new in-memory storage backend. A maxSize of 0
// disables eviction.
func NewMemoryBackend(maxSize uint64) *MemoryBackend {
	return &MemoryBackend{
		decisions:  make(map[string]*Decision),
		agentIndex: make(map[int][]string),
		timeIndex:  make([]string, 0),
		maxSize:    maxSize,
		now:        time.Now,
	}
}

// Store implements Backend.Store
func (m *MemoryBackend) Store(ctx context.Context, decision *Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.storeLocked(decision)
	return nil
}

// StoreBatch implements Backend.StoreBatch
func (m *MemoryBackend) StoreBatch(ctx context.Context, decisions []*Decision) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	ids := make([]string, len(decisions))
	for i, decision := range decisions {
		m.storeLocked(decision)
		ids[i] = decision.ID
	}
	return ids, nil
}

// Latest implements Backend.Latest
func (m *MemoryBackend) Latest(ctx context.Context, agentID int) (*Decision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	ids := m.agentIndex[agentID]
	if len(ids) == 0 {
		return nil, fmt.Errorf("agent %d: %w", agentID, ErrNotFound)
	}
	return m.decisions[ids[len(ids)-1]], nil
}

// History implements Backend.History
func (m *MemoryBackend) History(ctx context.Context, agentID int, limit int) ([]*Decision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	ids := m.agentIndex[agentID]
	if len(ids) == 0 {
		return nil, fmt.Errorf("agent %d: %w", agentID, ErrNotFound)
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	history := make([]*Decision, len(ids))
	for i, id := range ids {
		history[i] = m.decisions[id]
	}
	return history, nil
}

// Stats implements Backend.Stats
func (m *MemoryBackend) Stats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	stats := &Stats{
		TotalDecisions:   uint64(len(m.decisions)),
		TotalAgents:      uint64(len(m.agentIndex)),
		DecisionsByAgent: make(map[int]uint64, len(m.agentIndex)),
		Evicted:          m.evicted,
	}
	for agentID, ids := range m.agentIndex {
		stats.DecisionsByAgent[agentID] = uint64(len(ids))
	}

	// Find oldest and newest timestamps
	if len(m.timeIndex) > 0 {
		oldest := m.decisions[m.timeIndex[0]].Timestamp
		newest := m.decisions[m.timeIndex[len(m.timeIndex)-1]].Timestamp
		stats.OldestTimestamp = &oldest
		stats.NewestTimestamp = &newest
	}

	return stats, nil
}

// DeleteAgent implements Backend.DeleteAgent
func (m *MemoryBackend) DeleteAgent(ctx context.Context, agentID int) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	ids := slices.Clone(m.agentIndex[agentID])
	for _, id := range ids {
		m.deleteDecision(id)
	}
	return uint64(len(ids)), nil
}

// Clear implements Backend.Clear
func (m *MemoryBackend) Clear(ctx context.Context, beforeTimestamp *time.Time, keepLastN uint32) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	var toDelete []string

	// timeIndex is sorted, so the expired decisions are a prefix
	if beforeTimestamp != nil {
		for _, id := range m.timeIndex {
			if !m.decisions[id].Timestamp.Before(*beforeTimestamp) {
				break
			}
			toDelete = append(toDelete, id)
		}
	}

	// Apply keepLastN constraint
	if keepLastN > 0 && len(m.timeIndex) > int(keepLastN) {
		trim := len(m.timeIndex) - int(keepLastN)
		if trim > len(toDelete) {
			toDelete = m.timeIndex[:trim]
		}
	}

	toDelete = slices.Clone(toDelete)
	for _, id := range toDelete {
		m.deleteDecision(id)
	}

	return uint64(len(toDelete)), nil
}

// Close implements Backend.Close
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.decisions = nil
	m.agentIndex = nil
	m.timeIndex = nil
	m.closed = true

	return nil
}

// Helper methods

func (m *MemoryBackend) storeLocked(decision *Decision) {
	// Generate ID if not provided
	if decision.ID == "" {
		decision.ID = uuid.New().String()
	}

	// Set timestamp if not provided
	if decision.Timestamp.IsZero() {
		decision.Timestamp = m.now()
	}

	// A re-stored ID replaces the previous record
	if _, exists := m.decisions[decision.ID]; exists {
		m.deleteDecision(decision.ID)
	}

	m.decisions[decision.ID] = decision
	m.agentIndex[decision.AgentID] = append(m.agentIndex[decision.AgentID], decision.ID)
	m.insertInTimeIndex(decision.ID, decision.Timestamp)

	// Evict old decisions if we exceed maxSize
	m.evictIfNeeded()
}

func (m *MemoryBackend) insertInTimeIndex(id string, timestamp time.Time) {
	// Binary search for insertion point
	idx := sort.Search(len(m.timeIndex), func(i int) bool {
		return m.decisions[m.timeIndex[i]].Timestamp.After(timestamp)
	})

	m.timeIndex = slices.Insert(m.timeIndex, idx, id)
}

func (m *MemoryBackend) evictIfNeeded() {
	for m.maxSize > 0 && uint64(len(m.decisions)) > m.maxSize && len(m.timeIndex) > 0 {
		m.deleteDecision(m.timeIndex[0])
		m.evicted++
	}
}

func (m *MemoryBackend) deleteDecision(id string) {
	decision, exists := m.decisions[id]
	if !exists {
		return
	}

	// Remove from main storage
	delete(m.decisions, id)

	// Remove from agent index
	if ids, exists := m.agentIndex[decision.AgentID]; exists {
		m.agentIndex[decision.AgentID] = removeString(ids, id)
		if len(m.agentIndex[decision.AgentID]) == 0 {
			delete(m.agentIndex, decision.AgentID)
		}
	}

	// Remove from time index
	m.timeIndex = removeString(m.timeIndex, id)
}

func removeString(slice []string, item string) []string {
	if i := slices.Index(slice, item); i >= 0 {
		return slices.Delete(slice, i, i+1)
	}
	return slice
}
