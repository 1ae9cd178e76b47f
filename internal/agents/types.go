// Package agents provides the agent data model, the daily status state
// machine, and the fixed starting roster.
package agents

import (
	"fmt"
	"strings"

	"github.com/talgya/mini-tycoon/internal/world"
)

// ID is a unique agent identifier, e.g. "boss-food" or "cust-2".
type ID string

// Role separates sellers from buyers.
type Role uint8

const (
	RoleProducer Role = iota // Runs a sale site, works 08:00–20:00
	RoleConsumer             // Potential buyer, works 09:00–17:00
)

var roleNames = [...]string{"PRODUCER", "CONSUMER"}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("Role(%d)", r)
}

// MarshalText encodes the role as its label.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role label.
func (r *Role) UnmarshalText(b []byte) error {
	role, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// ParseRole accepts PRODUCER/CONSUMER and the legacy BOSS/CUSTOMER labels.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PRODUCER", "BOSS":
		return RoleProducer, nil
	case "CONSUMER", "CUSTOMER":
		return RoleConsumer, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// Status is the agent's place in the daily state machine.
type Status uint8

const (
	StatusIdle     Status = iota // Wandering or shopping
	StatusMoving                 // En route to a target
	StatusWorking                // At the work position during work hours
	StatusResting                // At home at night
	StatusTalking                // Conversation in flight
	StatusThinking               // Queued for a conversation
)

var statusNames = [...]string{"IDLE", "MOVING", "WORKING", "RESTING", "TALKING", "THINKING"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", s)
}

// MarshalText encodes the status as its label.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status label.
func (s *Status) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if name == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// Frozen reports whether the agent is held by the conversation pipeline.
// Frozen agents are skipped by scheduling, movement, and detection.
func (s Status) Frozen() bool {
	return s == StatusThinking || s == StatusTalking
}

// Approachable reports whether another agent may start a conversation with
// an agent in this status.
func (s Status) Approachable() bool {
	return s == StatusIdle || s == StatusMoving || s == StatusWorking
}

// Agent is one simulated townsperson.
type Agent struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Emoji       string `json:"emoji,omitempty"`
	Title       string `json:"title,omitempty"` // e.g. "Restaurant owner"
	Role        Role   `json:"role"`
	Personality string `json:"personality"`
	Color       string `json:"color,omitempty"`

	// Location
	Position world.Position  `json:"position"`
	Home     world.Position  `json:"home"`
	Work     world.Position  `json:"work"`
	Target   *world.Position `json:"target,omitempty"`

	Status Status `json:"status"`
	Action string `json:"action"` // Display label only
	Stats  Stats  `json:"stats"`
}

// Clone returns a deep copy of the agent.
func (a *Agent) Clone() *Agent {
	c := *a
	if a.Target != nil {
		t := *a.Target
		c.Target = &t
	}
	return &c
}

// IsProducer reports whether the agent sells.
func (a *Agent) IsProducer() bool {
	return a.Role == RoleProducer
}
