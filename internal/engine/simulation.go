// Simulation holds the complete town state and wires the per-tick systems
// together.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/mini-tycoon/internal/agents"
	"github.com/talgya/mini-tycoon/internal/entropy"
	"github.com/talgya/mini-tycoon/internal/llm"
	"github.com/talgya/mini-tycoon/internal/world"
)

// Config holds the simulation tuning.
type Config struct {
	MinutesPerTick  int
	StartMinute     int
	WinThreshold    float64
	MeetChance      float64 // per unfrozen, non-resting agent per tick
	ShopChance      float64 // consumer free-time shopping trips
	WanderChance    float64 // move on a free-wander tick
	HistoryLookback int     // earlier meetings of the same pair shown to the collaborator
	MaxPending      int     // pending queue cap; 0 = unbounded
	Schedule        agents.Schedule
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		MinutesPerTick:  15,
		StartMinute:     8 * 60,
		WinThreshold:    1000000,
		MeetChance:      0.20,
		ShopChance:      0.30,
		WanderChance:    0.60,
		HistoryLookback: 3,
		MaxPending:      8,
		Schedule:        agents.DefaultSchedule(),
	}
}

// Collaborator generates the dialogue (and possibly a deal) for a meeting.
// Calls may be slow and may fail.
type Collaborator interface {
	Converse(ctx context.Context, req llm.ConversationRequest) (*llm.Conversation, error)
}

// Recorder archives finished conversations and wins. Failures are logged
// and otherwise ignored.
type Recorder interface {
	RecordInteraction(ctx context.Context, epoch uint64, rec Interaction) error
	RecordWin(ctx context.Context, epoch uint64, winner agents.Agent) error
}

// Pair is a pending conversation between two frozen agents.
type Pair struct {
	A agents.ID `json:"a"`
	B agents.ID `json:"b"`
}

// Simulation is the single owner of all mutable town state. Every exported
// method is safe for concurrent use.
type Simulation struct {
	Grid *world.Grid // immutable after construction

	// Set before the engine starts.
	Collaborator Collaborator
	Recorder     Recorder
	Now          func() time.Time

	cfg    Config
	roster []agents.Agent
	rng    entropy.Source

	mu       sync.Mutex
	agents   []*agents.Agent
	index    map[agents.ID]*agents.Agent
	minute   int
	ticks    uint64
	queue    []Pair
	history  []Interaction
	winner   *agents.ID
	epoch    uint64
	inFlight bool
	events   []Event

	// slot holds at most one token: the conversation currently in flight.
	slot    chan struct{}
	pending sync.WaitGroup

	onWin func()
	subs  subscribers
}

// NewSimulation builds a simulation from a grid and the starting roster.
// The roster is copied and kept for restarts.
func NewSimulation(grid *world.Grid, roster []agents.Agent, cfg Config, rng entropy.Source) *Simulation {
	s := &Simulation{
		Grid:   grid,
		Now:    time.Now,
		cfg:    cfg,
		roster: append([]agents.Agent(nil), roster...),
		rng:    rng,
		slot:   make(chan struct{}, 1),
	}
	s.reset()
	return s
}

// reset restores the roster. Caller holds mu (or is the constructor).
func (s *Simulation) reset() {
	s.agents = make([]*agents.Agent, len(s.roster))
	s.index = make(map[agents.ID]*agents.Agent, len(s.roster))
	for i := range s.roster {
		a := s.roster[i].Clone()
		s.agents[i] = a
		s.index[a.ID] = a
	}
	s.minute = s.cfg.StartMinute
	s.ticks = 0
	s.queue = nil
	s.history = nil
	s.winner = nil
	s.events = nil
}

// Restart resets every agent to the roster, clears history, the queue, and
// the winner, and rewinds the clock. A conversation still in flight is
// discarded when it completes.
func (s *Simulation) Restart() {
	s.mu.Lock()
	s.epoch++
	s.reset()
	epoch := s.epoch
	s.emitLocked(Event{Category: CategoryRestart, Description: "town restarted"})
	s.mu.Unlock()

	slog.Info("simulation restarted", "epoch", epoch)
}

// Config returns the tuning in use.
func (s *Simulation) Config() Config {
	return s.cfg
}

// Clock returns the simulated time as HH:MM.
func (s *Simulation) Clock() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return FormatClock(s.minute)
}

// Minute returns the simulated minutes-of-day.
func (s *Simulation) Minute() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minute
}

// Ticks returns the number of ticks since the last restart.
func (s *Simulation) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Epoch returns the restart counter.
func (s *Simulation) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Agent returns a copy of one agent.
func (s *Simulation) Agent(id agents.ID) (agents.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.index[id]
	if !ok {
		return agents.Agent{}, false
	}
	return *a.Clone(), true
}

// Agents returns copies of all agents in roster order.
func (s *Simulation) Agents() []agents.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentsLocked()
}

func (s *Simulation) agentsLocked() []agents.Agent {
	out := make([]agents.Agent, len(s.agents))
	for i, a := range s.agents {
		out[i] = *a.Clone()
	}
	return out
}

// Interactions returns the conversation history, oldest first.
func (s *Simulation) Interactions() []Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Interaction(nil), s.history...)
}

// Pending returns a copy of the queued pairs, front first.
func (s *Simulation) Pending() []Pair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Pair(nil), s.queue...)
}

// InFlight reports whether a conversation is being generated.
func (s *Simulation) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Won reports whether an agent has reached the win threshold.
func (s *Simulation) Won() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winner != nil
}

// Winner returns a copy of the winning agent, if any.
func (s *Simulation) Winner() (agents.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.winner == nil {
		return agents.Agent{}, false
	}
	return *s.index[*s.winner].Clone(), true
}

// Wait blocks until any background conversation has been applied.
func (s *Simulation) Wait() {
	s.pending.Wait()
}
