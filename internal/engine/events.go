package engine

import "sync"

// Event categories.
const (
	CategoryTick         = "tick"
	CategoryMeeting      = "meeting"
	CategoryConversation = "conversation"
	CategoryTransaction  = "transaction"
	CategoryWin          = "win"
	CategoryRestart      = "restart"
)

const maxRecentEvents = 200

// Event is a notable occurrence in the town.
type Event struct {
	Epoch       uint64         `json:"epoch"`
	Tick        uint64         `json:"tick"`
	Clock       string         `json:"clock"`
	Category    string         `json:"category"`
	Description string         `json:"description"`
	Meta        map[string]any `json:"meta,omitempty"`
}

type subscribers struct {
	mu     sync.Mutex
	nextID int
	chans  map[int]chan Event
}

// Subscribe returns a channel receiving every subsequent event. Slow
// subscribers miss events rather than blocking the simulation.
func (s *Simulation) Subscribe() (int, <-chan Event) {
	s.subs.mu.Lock()
	defer s.subs.mu.Unlock()
	if s.subs.chans == nil {
		s.subs.chans = make(map[int]chan Event)
	}
	s.subs.nextID++
	ch := make(chan Event, 64)
	s.subs.chans[s.subs.nextID] = ch
	return s.subs.nextID, ch
}

// Unsubscribe closes and removes a subscription.
func (s *Simulation) Unsubscribe(id int) {
	s.subs.mu.Lock()
	defer s.subs.mu.Unlock()
	if ch, ok := s.subs.chans[id]; ok {
		close(ch)
		delete(s.subs.chans, id)
	}
}

// RecentEvents returns up to limit of the latest events, oldest first.
func (s *Simulation) RecentEvents(limit int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := 0
	if limit > 0 && len(s.events) > limit {
		start = len(s.events) - limit
	}
	return append([]Event(nil), s.events[start:]...)
}

// emitLocked stamps, stores, and fans out an event. Caller holds mu.
func (s *Simulation) emitLocked(e Event) {
	e.Epoch = s.epoch
	e.Tick = s.ticks
	e.Clock = FormatClock(s.minute)

	s.events = append(s.events, e)
	if len(s.events) > maxRecentEvents {
		s.events = s.events[len(s.events)-maxRecentEvents:]
	}

	s.subs.mu.Lock()
	for _, ch := range s.subs.chans {
		select {
		case ch <- e:
		default:
		}
	}
	s.subs.mu.Unlock()
}
