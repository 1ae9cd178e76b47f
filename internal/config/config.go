// Package config loads the town configuration from YAML over built-in
// defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/mini-tycoon/internal/agents"
	"github.com/talgya/mini-tycoon/internal/engine"
	"github.com/talgya/mini-tycoon/internal/world"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Map      MapConfig      `yaml:"map"`
	Clock    ClockConfig    `yaml:"clock"`
	Economy  EconomyConfig  `yaml:"economy"`
	Behavior BehaviorConfig `yaml:"behavior"`
	LLM      LLMConfig      `yaml:"llm"`
	Roster   []AgentSpec    `yaml:"roster"`
}

type MapConfig struct {
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	Seed      int64   `yaml:"seed"`
	PondLevel float64 `yaml:"pond_level"` // 0 disables ponds
}

type ClockConfig struct {
	IntervalMS     int    `yaml:"interval_ms"`
	MinutesPerTick int    `yaml:"minutes_per_tick"`
	Start          string `yaml:"start"` // HH:MM
}

type EconomyConfig struct {
	WinThreshold  float64      `yaml:"win_threshold"`
	StartingStats agents.Stats `yaml:"starting_stats"`
}

type BehaviorConfig struct {
	MeetChance      float64         `yaml:"meet_chance"`
	ShopChance      float64         `yaml:"shop_chance"`
	WanderChance    float64         `yaml:"wander_chance"`
	HistoryLookback int             `yaml:"history_lookback"`
	MaxPending      int             `yaml:"max_pending"`
	Schedule        agents.Schedule `yaml:"schedule"`
}

type LLMConfig struct {
	Language string `yaml:"language"`
	Model    string `yaml:"model"`
	// 0 derives one call per tick from clock.interval_ms, the most the
	// resolver can start.
	MaxCallsPerMin int `yaml:"max_calls_per_min"`
}

// AgentSpec is one roster entry. Stats override economy.starting_stats.
type AgentSpec struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Emoji       string         `yaml:"emoji"`
	Title       string         `yaml:"title"`
	Role        string         `yaml:"role"`
	Personality string         `yaml:"personality"`
	Color       string         `yaml:"color"`
	Action      string         `yaml:"action"`
	Position    world.Position `yaml:"position"`
	Home        world.Position `yaml:"home"`
	Work        world.Position `yaml:"work"`
	Stats       *agents.Stats  `yaml:"stats,omitempty"`
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Defaults returns the stock 16x12 town with its nine residents.
func Defaults() Config {
	eng := engine.DefaultConfig()
	cfg := Config{
		Map: MapConfig{Width: 16, Height: 12},
		Clock: ClockConfig{
			IntervalMS:     800,
			MinutesPerTick: eng.MinutesPerTick,
			Start:          engine.FormatClock(eng.StartMinute),
		},
		Economy: EconomyConfig{
			WinThreshold:  eng.WinThreshold,
			StartingStats: agents.StartingStats,
		},
		Behavior: BehaviorConfig{
			MeetChance:      eng.MeetChance,
			ShopChance:      eng.ShopChance,
			WanderChance:    eng.WanderChance,
			HistoryLookback: eng.HistoryLookback,
			MaxPending:      eng.MaxPending,
			Schedule:        eng.Schedule,
		},
		LLM: LLMConfig{Language: "English"},
	}
	for _, a := range agents.DefaultRoster() {
		cfg.Roster = append(cfg.Roster, AgentSpec{
			ID:          string(a.ID),
			Name:        a.Name,
			Emoji:       a.Emoji,
			Title:       a.Title,
			Role:        a.Role.String(),
			Personality: a.Personality,
			Color:       a.Color,
			Action:      a.Action,
			Position:    a.Position,
			Home:        a.Home,
			Work:        a.Work,
		})
	}
	return cfg
}

// Normalize trims strings and fills blanks a YAML file may leave.
func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.Clock.Start = strings.TrimSpace(c.Clock.Start)
	if c.Clock.Start == "" {
		c.Clock.Start = "08:00"
	}
	c.LLM.Language = strings.TrimSpace(c.LLM.Language)
	if c.LLM.Language == "" {
		c.LLM.Language = "English"
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.MaxCallsPerMin == 0 && c.Clock.IntervalMS > 0 {
		c.LLM.MaxCallsPerMin = (60000 + c.Clock.IntervalMS - 1) / c.Clock.IntervalMS
	}
	for i := range c.Roster {
		r := &c.Roster[i]
		r.ID = strings.TrimSpace(r.ID)
		r.Role = strings.ToUpper(strings.TrimSpace(r.Role))
		if r.Name == "" {
			r.Name = r.ID
		}
		if r.Action == "" {
			r.Action = agents.LabelWandering
		}
	}
}

// Validate checks ranges, the roster, and that every roster position is
// walkable on the generated grid.
func (c Config) Validate() error {
	if c.Map.Width < 3 || c.Map.Height < 3 {
		return fmt.Errorf("%w: map %dx%d too small", ErrInvalid, c.Map.Width, c.Map.Height)
	}
	if c.Clock.IntervalMS <= 0 {
		return fmt.Errorf("%w: clock.interval_ms must be positive", ErrInvalid)
	}
	if c.Clock.MinutesPerTick <= 0 || c.Clock.MinutesPerTick > engine.MinutesPerDay {
		return fmt.Errorf("%w: clock.minutes_per_tick must be in 1..%d", ErrInvalid, engine.MinutesPerDay)
	}
	if _, err := parseClock(c.Clock.Start); err != nil {
		return fmt.Errorf("%w: clock.start: %v", ErrInvalid, err)
	}
	if c.LLM.MaxCallsPerMin < 0 {
		return fmt.Errorf("%w: llm.max_calls_per_min must not be negative", ErrInvalid)
	}
	if c.Economy.WinThreshold <= 0 {
		return fmt.Errorf("%w: economy.win_threshold must be positive", ErrInvalid)
	}

	b := c.Behavior
	for name, p := range map[string]float64{
		"meet_chance":   b.MeetChance,
		"shop_chance":   b.ShopChance,
		"wander_chance": b.WanderChance,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("%w: behavior.%s %v outside [0,1]", ErrInvalid, name, p)
		}
	}
	if b.HistoryLookback < 0 || b.MaxPending < 0 {
		return fmt.Errorf("%w: behavior.history_lookback and max_pending must not be negative", ErrInvalid)
	}
	for name, w := range map[string]agents.Window{
		"producer_work": b.Schedule.ProducerWork,
		"consumer_work": b.Schedule.ConsumerWork,
		"night":         b.Schedule.Night,
	} {
		if w.Start < 0 || w.Start > 23 || w.End < 0 || w.End > 24 {
			return fmt.Errorf("%w: behavior.schedule.%s hours out of range", ErrInvalid, name)
		}
	}

	return c.validateRoster()
}

func (c Config) validateRoster() error {
	if len(c.Roster) == 0 {
		return fmt.Errorf("%w: roster is empty", ErrInvalid)
	}
	grid := world.GenerateWithConfig(c.GenConfig())
	seen := make(map[string]bool, len(c.Roster))
	producers := 0
	for _, r := range c.Roster {
		if r.ID == "" {
			return fmt.Errorf("%w: roster entry without id", ErrInvalid)
		}
		if seen[r.ID] {
			return fmt.Errorf("%w: duplicate roster id %q", ErrInvalid, r.ID)
		}
		seen[r.ID] = true

		role, err := agents.ParseRole(r.Role)
		if err != nil {
			return fmt.Errorf("%w: roster %s: %v", ErrInvalid, r.ID, err)
		}
		if role == agents.RoleProducer {
			producers++
		}

		for name, p := range map[string]world.Position{"position": r.Position, "home": r.Home, "work": r.Work} {
			if !grid.IsWalkable(p.X, p.Y) {
				return fmt.Errorf("%w: roster %s: %s %v is not walkable", ErrInvalid, r.ID, name, p)
			}
		}
	}
	if producers == 0 {
		return fmt.Errorf("%w: roster needs at least one producer", ErrInvalid)
	}
	return nil
}

// Interval is the wall-clock tick period.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Clock.IntervalMS) * time.Millisecond
}

// EngineConfig converts to the simulation tuning. Call after Validate.
func (c Config) EngineConfig() engine.Config {
	start, _ := parseClock(c.Clock.Start)
	return engine.Config{
		MinutesPerTick:  c.Clock.MinutesPerTick,
		StartMinute:     start,
		WinThreshold:    c.Economy.WinThreshold,
		MeetChance:      c.Behavior.MeetChance,
		ShopChance:      c.Behavior.ShopChance,
		WanderChance:    c.Behavior.WanderChance,
		HistoryLookback: c.Behavior.HistoryLookback,
		MaxPending:      c.Behavior.MaxPending,
		Schedule:        c.Behavior.Schedule,
	}
}

// GenConfig returns the grid generation parameters. Roster positions are
// protected from ponds.
func (c Config) GenConfig() world.GenConfig {
	gc := world.GenConfig{
		Width:     c.Map.Width,
		Height:    c.Map.Height,
		Seed:      c.Map.Seed,
		PondLevel: c.Map.PondLevel,
	}
	for _, r := range c.Roster {
		gc.Protected = append(gc.Protected, r.Position, r.Home, r.Work)
	}
	return gc
}

// Agents builds the starting roster.
func (c Config) Agents() ([]agents.Agent, error) {
	out := make([]agents.Agent, 0, len(c.Roster))
	for _, r := range c.Roster {
		role, err := agents.ParseRole(r.Role)
		if err != nil {
			return nil, fmt.Errorf("roster %s: %w", r.ID, err)
		}
		stats := c.Economy.StartingStats
		if r.Stats != nil {
			stats = *r.Stats
		}
		out = append(out, agents.Agent{
			ID:          agents.ID(r.ID),
			Name:        r.Name,
			Emoji:       r.Emoji,
			Title:       r.Title,
			Role:        role,
			Personality: r.Personality,
			Color:       r.Color,
			Position:    r.Position,
			Home:        r.Home,
			Work:        r.Work,
			Action:      r.Action,
			Stats:       stats,
		})
	}
	return out, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
