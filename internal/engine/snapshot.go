package engine

import (
	"github.com/talgya/mini-tycoon/internal/agents"
	"github.com/talgya/mini-tycoon/internal/world"
)

// Snapshot is a consistent read-only view of the town for the display layer.
type Snapshot struct {
	Epoch        uint64         `json:"epoch"`
	Tick         uint64         `json:"tick"`
	Minute       int            `json:"minute"`
	Clock        string         `json:"clock"`
	Grid         *world.Grid    `json:"grid,omitempty"`
	Agents       []agents.Agent `json:"agents"`
	Interactions []Interaction  `json:"interactions"`
	Pending      []Pair         `json:"pending"`
	InFlight     bool           `json:"in_flight"`
	Winner       *agents.Agent  `json:"winner"`

	// InteractionCount is the length of the whole history this epoch,
	// whether or not Interactions holds all of it.
	InteractionCount int `json:"interaction_count"`
}

// Snapshot captures the whole town under one lock.
func (s *Simulation) Snapshot() Snapshot {
	return s.SnapshotSince(0, 0)
}

// SnapshotSince is Snapshot with only the interactions after the first seen
// of the given epoch. From any other epoch the whole history is included.
func (s *Simulation) SnapshotSince(epoch uint64, seen int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch || seen < 0 || seen > len(s.history) {
		seen = 0
	}

	snap := Snapshot{
		Epoch:        s.epoch,
		Tick:         s.ticks,
		Minute:       s.minute,
		Clock:        FormatClock(s.minute),
		Grid:         s.Grid,
		Agents:       s.agentsLocked(),
		Interactions: append([]Interaction(nil), s.history[seen:]...),
		Pending:      append([]Pair(nil), s.queue...),
		InFlight:     s.inFlight,

		InteractionCount: len(s.history),
	}
	if s.winner != nil {
		snap.Winner = s.index[*s.winner].Clone()
	}
	return snap
}
