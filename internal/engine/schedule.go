// Per-tick pass: routine, upkeep, meetings, movement.
package engine

import (
	"fmt"

	"github.com/talgya/mini-tycoon/internal/agents"
	"github.com/talgya/mini-tycoon/internal/world"
)

// Tick runs one synchronous pass over all agents and advances the clock.
// It returns false, doing nothing, once the simulation has been won.
//
// Occupancy is taken from pre-tick positions and not updated as agents move,
// so two agents may step into the same free cell in one tick.
func (s *Simulation) Tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.winner != nil {
		return false
	}

	hour := s.minute / 60
	occupied := make(world.Occupancy, len(s.agents))
	for _, a := range s.agents {
		occupied[a.Position] = struct{}{}
	}
	sites := agents.SaleSites(s.agents)

	for _, a := range s.agents {
		if a.Status.Frozen() {
			continue
		}

		plan := agents.Decide(a, hour, s.cfg.Schedule, sites, s.cfg.ShopChance, s.rng)
		agents.ApplyPlan(a, plan)
		agents.Upkeep(a)

		if a.Status == agents.StatusResting {
			continue
		}
		if s.meet(a) {
			continue
		}
		s.move(a, occupied)
	}

	s.minute = (s.minute + s.cfg.MinutesPerTick) % MinutesPerDay
	s.ticks++
	s.emitLocked(Event{
		Category:    CategoryTick,
		Description: "tick",
		Meta:        map[string]any{"pending": len(s.queue)},
	})
	return true
}

// meet rolls for a conversation and, on success, freezes the initiator and
// the first approachable adjacent agent and queues the pair.
func (s *Simulation) meet(a *agents.Agent) bool {
	if s.cfg.MaxPending > 0 && len(s.queue) >= s.cfg.MaxPending {
		return false
	}
	if s.rng.Float64() >= s.cfg.MeetChance {
		return false
	}

	for _, other := range s.agents {
		if other.ID == a.ID || !other.Status.Approachable() || !world.Adjacent(a.Position, other.Position) {
			continue
		}
		a.Status = agents.StatusThinking
		other.Status = agents.StatusThinking
		s.queue = append(s.queue, Pair{A: a.ID, B: other.ID})
		s.emitLocked(Event{
			Category:    CategoryMeeting,
			Description: fmt.Sprintf("%s bumps into %s", a.Name, other.Name),
			Meta:        map[string]any{"a": a.ID, "b": other.ID},
		})
		return true
	}
	return false
}

// move takes one greedy step toward the target, or maybe wanders.
func (s *Simulation) move(a *agents.Agent, occupied world.Occupancy) {
	if a.Target != nil {
		a.Position = world.Step(s.Grid, a.Position, *a.Target, occupied)
		return
	}
	if s.rng.Float64() < s.cfg.WanderChance {
		a.Position = world.Wander(s.Grid, a.Position, occupied, s.rng.Intn)
	}
}
