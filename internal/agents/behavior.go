// Daily routine: time-of-day driven state machine.
// Every tick, each unfrozen agent picks a desired status and target, then
// either settles into that status or heads toward the target.
package agents

import (
	"github.com/talgya/mini-tycoon/internal/entropy"
	"github.com/talgya/mini-tycoon/internal/world"
)

// Display labels. These never drive behaviour.
const (
	LabelBusiness    = "Business"
	LabelResting     = "Resting"
	LabelCommute     = "Commute"
	LabelHome        = "Home"
	LabelShopping    = "Shopping"
	LabelWandering   = "Wandering"
	LabelNegotiating = "Negotiating"
)

// Window is a half-open hour range [Start, End). Start > End wraps midnight.
type Window struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

// Contains reports whether hour falls inside the window.
func (w Window) Contains(hour int) bool {
	if w.Start <= w.End {
		return hour >= w.Start && hour < w.End
	}
	return hour >= w.Start || hour < w.End
}

// Schedule holds the daily windows for each role.
type Schedule struct {
	ProducerWork Window `yaml:"producer_work" json:"producer_work"`
	ConsumerWork Window `yaml:"consumer_work" json:"consumer_work"`
	Night        Window `yaml:"night" json:"night"`
}

// DefaultSchedule: producers 08–20, consumers 09–17, everyone sleeps 22–07.
func DefaultSchedule() Schedule {
	return Schedule{
		ProducerWork: Window{Start: 8, End: 20},
		ConsumerWork: Window{Start: 9, End: 17},
		Night:        Window{Start: 22, End: 7},
	}
}

// WorkWindow returns the work hours for a role.
func (s Schedule) WorkWindow(r Role) Window {
	if r == RoleProducer {
		return s.ProducerWork
	}
	return s.ConsumerWork
}

// Plan is the scheduler's decision for one agent for one tick.
type Plan struct {
	Desired Status
	Target  *world.Position // nil = free wander
	Label   string
}

// Decide picks the desired status and target for an agent at the given hour.
// In free time a consumer goes shopping at a random sale site with
// probability shopChance.
func Decide(a *Agent, hour int, sched Schedule, saleSites []world.Position, shopChance float64, rng entropy.Source) Plan {
	switch {
	case sched.WorkWindow(a.Role).Contains(hour):
		work := a.Work
		return Plan{Desired: StatusWorking, Target: &work}
	case sched.Night.Contains(hour):
		home := a.Home
		return Plan{Desired: StatusResting, Target: &home}
	}

	if a.Role == RoleConsumer && len(saleSites) > 0 && rng.Float64() < shopChance {
		site := saleSites[rng.Intn(len(saleSites))]
		return Plan{Desired: StatusIdle, Target: &site, Label: LabelShopping}
	}
	return Plan{Desired: StatusIdle}
}

// ApplyPlan fixes the agent's status, target, and display label for this tick.
func ApplyPlan(a *Agent, p Plan) {
	a.Target = p.Target

	if p.Target == nil {
		a.Status = StatusIdle
		a.Action = p.Label
		if a.Action == "" {
			a.Action = LabelWandering
		}
		return
	}

	label := p.Label
	if a.Position == *p.Target {
		a.Status = p.Desired
		switch p.Desired {
		case StatusWorking:
			label = LabelBusiness
		case StatusResting:
			label = LabelResting
		}
	} else {
		a.Status = StatusMoving
		switch p.Desired {
		case StatusWorking:
			label = LabelCommute
		case StatusResting:
			label = LabelHome
		}
	}
	a.Action = label
}

// Upkeep applies the per-tick cost or recovery of the current status.
func Upkeep(a *Agent) {
	switch a.Status {
	case StatusWorking:
		a.Stats.AdjustEnergy(-1)
		a.Stats.AdjustMood(-0.2)
	case StatusResting:
		a.Stats.AdjustEnergy(5)
	default:
		a.Stats.AdjustEnergy(-0.5)
	}
}

// Converse applies the fixed aftermath of a finished conversation and
// releases the agent back to IDLE.
func Converse(a *Agent) {
	a.Status = StatusIdle
	a.Action = LabelWandering
	a.Stats.AdjustMood(5)
	a.Stats.AdjustEnergy(-2)
	a.Stats.GainExperience(2)
}
