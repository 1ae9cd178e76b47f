package agents

import "math"

// MaxStat caps mood and energy.
const MaxStat = 100

// Stats holds an agent's wellbeing and wallet.
// Mood and Energy stay within [0, MaxStat]; Experience only grows.
// Money may go negative: payers are not credit-checked.
type Stats struct {
	Mood       float64 `json:"mood" yaml:"mood"`
	Energy     float64 `json:"energy" yaml:"energy"`
	Experience float64 `json:"exp" yaml:"exp"`
	Money      float64 `json:"money" yaml:"money"`
}

// AdjustMood adds delta to mood, clamped to [0, MaxStat].
func (s *Stats) AdjustMood(delta float64) {
	s.Mood = clamp(s.Mood + delta)
}

// AdjustEnergy adds delta to energy, clamped to [0, MaxStat].
func (s *Stats) AdjustEnergy(delta float64) {
	s.Energy = clamp(s.Energy + delta)
}

// GainExperience adds a non-negative amount of experience.
func (s *Stats) GainExperience(amount float64) {
	if amount > 0 {
		s.Experience += amount
	}
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(MaxStat, v))
}
