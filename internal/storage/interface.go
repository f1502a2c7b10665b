package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no decision matches the request.
	ErrNotFound = errors.New("not found")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("storage closed")
)

// Decision is the action an agent was given at one step.
type Decision struct {
	ID                string            `json:"id"`
	AgentID           int               `json:"agent_id"`
	Step              uint64            `json:"step"`
	Policy            string            `json:"policy"`
	ContinuousActions []float32         `json:"continuous_actions,omitempty"`
	DiscreteActions   []int             `json:"discrete_actions,omitempty"`
	Memory            []float32         `json:"memory,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Stats represents decision store statistics
type Stats struct {
	TotalDecisions   uint64         `json:"total_decisions"`
	TotalAgents      uint64         `json:"total_agents"`
	DecisionsByAgent map[int]uint64 `json:"decisions_by_agent"`
	OldestTimestamp  *time.Time     `json:"oldest_timestamp,omitempty"`
	NewestTimestamp  *time.Time     `json:"newest_timestamp,omitempty"`
	Evicted          uint64         `json:"evicted"`
}

// Backend defines the interface for decision storage implementations
type Backend interface {
	// Store a single decision
	Store(ctx context.Context, decision *Decision) error

	// Store multiple decisions in a batch
	StoreBatch(ctx context.Context, decisions []*Decision) ([]string, error)

	// Latest decision recorded for the agent
	Latest(ctx context.Context, agentID int) (*Decision, error)

	// History of the agent, oldest first, at most limit entries (0 for all)
	History(ctx context.Context, agentID int, limit int) ([]*Decision, error)

	// Get store statistics
	Stats(ctx context.Context) (*Stats, error)

	// Delete every decision of the agent
	DeleteAgent(ctx context.Context, agentID int) (uint64, error)

	// Clear decisions older than beforeTimestamp, then trim to the newest
	// keepLastN (0 keeps everything)
	Clear(ctx context.Context, beforeTimestamp *time.Time, keepLastN uint32) (uint64, error)

	// Close the backend and cleanup resources
	Close() error
}
