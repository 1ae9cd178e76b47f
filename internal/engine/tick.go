// Package engine provides the tick-based simulation loop: the town clock,
// daily routines, meetings, conversations, and the money ledger.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// MinutesPerDay is the length of the simulated day.
const MinutesPerDay = 1440

// FormatClock renders minutes-of-day as HH:MM.
func FormatClock(minute int) string {
	minute = ((minute % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// Engine drives the simulation forward on a fixed wall-clock period.
// It starts paused.
type Engine struct {
	Interval time.Duration // Wall-clock time between ticks

	// OnTick runs after every completed tick, outside the simulation lock.
	OnTick func(tick uint64)

	sim     *Simulation
	running atomic.Bool
}

// NewEngine creates a paused engine for sim. The engine pauses itself when
// the simulation is won.
func NewEngine(sim *Simulation, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = 800 * time.Millisecond
	}
	e := &Engine{Interval: interval, sim: sim}
	sim.onWin = func() { e.running.Store(false) }
	return e
}

// Run ticks until ctx is cancelled. Paused periods skip ticks but keep the
// loop alive.
func (e *Engine) Run(ctx context.Context) {
	slog.Info("simulation engine started", "interval", e.Interval, "clock", e.sim.Clock())

	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("simulation engine stopped", "tick", e.sim.Ticks())
			return
		case <-ticker.C:
			if !e.running.Load() {
				continue
			}
			e.step(ctx)
		}
	}
}

// step advances the simulation by one tick and offers the resolver its one
// dequeue for this clock advance.
func (e *Engine) step(ctx context.Context) {
	if !e.sim.Tick() {
		e.running.Store(false)
		return
	}
	e.sim.Dispatch(ctx)

	if e.OnTick != nil {
		e.OnTick(e.sim.Ticks())
	}
}

// Start resumes ticking. It refuses once the simulation has a winner.
func (e *Engine) Start() bool {
	if e.sim.Won() {
		return false
	}
	e.running.Store(true)
	slog.Info("simulation resumed", "clock", e.sim.Clock())
	return true
}

// Pause stops new ticks. An in-flight conversation still completes.
func (e *Engine) Pause() {
	e.running.Store(false)
	slog.Info("simulation paused", "clock", e.sim.Clock())
}

// Running reports whether ticks are being scheduled.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Restart pauses the engine and resets the simulation to its roster.
func (e *Engine) Restart() {
	e.running.Store(false)
	e.sim.Restart()
}
