// Conversation resolver: drains the pending queue one pair at a time.
// The collaborator call runs outside the simulation lock; its result is
// applied as a single step when it lands, possibly several ticks later.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/mini-tycoon/internal/agents"
	"github.com/talgya/mini-tycoon/internal/llm"
	"github.com/talgya/mini-tycoon/internal/world"
)

// DialogueLine is one attributed line of a finished conversation.
type DialogueLine struct {
	SpeakerID   agents.ID `json:"speaker_id"`
	SpeakerName string    `json:"speaker_name"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
}

// Transaction is an accepted deal. Amount is always finite and positive.
type Transaction struct {
	Amount  float64   `json:"amount"`
	PayerID agents.ID `json:"payer_id"`
	PayeeID agents.ID `json:"payee_id"`
	Item    string    `json:"item"`
}

// Interaction is an append-only record of one finished conversation.
type Interaction struct {
	ID           string         `json:"id"`
	Participants [2]agents.ID   `json:"participants"`
	Lines        []DialogueLine `json:"lines"`
	Transaction  *Transaction   `json:"transaction,omitempty"`
	Minute       int            `json:"minute"`
	Clock        string         `json:"clock"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Involves reports whether the record is between exactly a and b.
func (r Interaction) Involves(a, b agents.ID) bool {
	p := r.Participants
	return (p[0] == a && p[1] == b) || (p[0] == b && p[1] == a)
}

// job is a dequeued pair waiting on the collaborator.
type job struct {
	pair  Pair
	epoch uint64
	req   llm.ConversationRequest
	names [2]string
}

// Dispatch starts resolving the front pair in the background. It returns
// false when nothing was started: the queue is empty, the simulation is won,
// or a conversation is already in flight.
func (s *Simulation) Dispatch(ctx context.Context) bool {
	j, ok := s.begin()
	if !ok {
		return false
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.finish(ctx, j)
	}()
	return true
}

// ResolveNext resolves the front pair synchronously under the same
// single-flight rule as Dispatch.
func (s *Simulation) ResolveNext(ctx context.Context) bool {
	j, ok := s.begin()
	if !ok {
		return false
	}
	s.finish(ctx, j)
	return true
}

// begin takes the in-flight slot and pops the front pair.
func (s *Simulation) begin() (*job, bool) {
	select {
	case s.slot <- struct{}{}:
	default:
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.winner != nil || len(s.queue) == 0 {
		<-s.slot
		return nil, false
	}

	pair := s.queue[0]
	s.queue = s.queue[1:]

	a, okA := s.index[pair.A]
	b, okB := s.index[pair.B]
	if !okA || !okB {
		slog.Warn("pending pair references unknown agent", "a", pair.A, "b", pair.B)
		<-s.slot
		return nil, false
	}

	for _, ag := range []*agents.Agent{a, b} {
		ag.Status = agents.StatusTalking
		ag.Action = agents.LabelNegotiating
	}
	s.inFlight = true

	return &job{
		pair:  pair,
		epoch: s.epoch,
		names: [2]string{a.Name, b.Name},
		req: llm.ConversationRequest{
			A:        profile(a),
			B:        profile(b),
			Location: world.TileName(s.Grid.At(a.Position)),
			Time:     FormatClock(s.minute),
			History:  s.historyLocked(pair.A, pair.B),
		},
	}, true
}

// finish calls the collaborator and applies the outcome.
func (s *Simulation) finish(ctx context.Context, j *job) {
	var conv *llm.Conversation
	var err error
	if s.Collaborator != nil {
		conv, err = s.Collaborator.Converse(ctx, j.req)
	} else {
		err = fmt.Errorf("no collaborator configured")
	}
	if err == nil && (conv == nil || len(conv.Lines) == 0) {
		err = fmt.Errorf("empty conversation")
	}
	if err != nil {
		slog.Warn("collaborator failed, using greeting", "a", j.pair.A, "b", j.pair.B, "error", err)
		conv = fallbackConversation(j.names[0], j.names[1])
	}

	now := s.Now()

	s.mu.Lock()
	if j.epoch != s.epoch {
		s.inFlight = false
		s.mu.Unlock()
		<-s.slot
		slog.Info("discarding conversation from before restart", "a", j.pair.A, "b", j.pair.B)
		return
	}

	a, okA := s.index[j.pair.A]
	b, okB := s.index[j.pair.B]
	if !okA || !okB {
		s.inFlight = false
		s.mu.Unlock()
		<-s.slot
		slog.Warn("conversation participant vanished", "a", j.pair.A, "b", j.pair.B)
		return
	}

	rec := Interaction{
		ID:           uuid.NewString(),
		Participants: [2]agents.ID{a.ID, b.ID},
		Minute:       s.minute,
		Clock:        FormatClock(s.minute),
		CreatedAt:    now,
	}
	for _, l := range conv.Lines {
		speaker := b
		if l.Speaker == a.Name || l.Speaker == string(a.ID) {
			speaker = a
		}
		rec.Lines = append(rec.Lines, DialogueLine{
			SpeakerID:   speaker.ID,
			SpeakerName: l.Speaker,
			Text:        l.Text,
			CreatedAt:   now,
		})
	}

	var won *agents.Agent
	if tx, ok := s.acceptProposal(conv.Proposal); ok {
		rec.Transaction = tx
		won = s.applyTransfer(tx.PayerID, tx.Amount, tx.PayeeID)
	} else if conv.Proposal != nil {
		slog.Info("dropped invalid deal proposal", "a", a.ID, "b", b.ID, "proposal", fmt.Sprintf("%+v", *conv.Proposal))
	}

	s.history = append(s.history, rec)
	agents.Converse(a)
	agents.Converse(b)

	desc := fmt.Sprintf("%s and %s chatted", a.Name, b.Name)
	if tx := rec.Transaction; tx != nil {
		desc = fmt.Sprintf("%s bought %s for ¥%.0f", s.index[tx.PayerID].Name, tx.Item, tx.Amount)
		s.emitLocked(Event{
			Category:    CategoryTransaction,
			Description: desc,
			Meta:        map[string]any{"payer": tx.PayerID, "payee": tx.PayeeID, "amount": tx.Amount, "item": tx.Item},
		})
	}
	s.emitLocked(Event{
		Category:    CategoryConversation,
		Description: desc,
		Meta:        map[string]any{"interaction": rec.ID, "a": a.ID, "b": b.ID},
	})

	epoch := s.epoch
	s.inFlight = false
	s.mu.Unlock()
	<-s.slot

	if won != nil && s.onWin != nil {
		s.onWin()
	}
	s.record(ctx, epoch, rec, won)
}

// record archives the outcome. Storage failures never affect the town.
func (s *Simulation) record(ctx context.Context, epoch uint64, rec Interaction, won *agents.Agent) {
	if s.Recorder == nil {
		return
	}
	if err := s.Recorder.RecordInteraction(ctx, epoch, rec); err != nil {
		slog.Warn("failed to record interaction", "id", rec.ID, "error", err)
	}
	if won != nil {
		if err := s.Recorder.RecordWin(ctx, epoch, *won); err != nil {
			slog.Warn("failed to record win", "winner", won.ID, "error", err)
		}
	}
}

// historyLocked summarises the last few meetings of exactly this pair.
func (s *Simulation) historyLocked(a, b agents.ID) string {
	var recent []Interaction
	for i := len(s.history) - 1; i >= 0 && len(recent) < s.cfg.HistoryLookback; i-- {
		if s.history[i].Involves(a, b) {
			recent = append(recent, s.history[i])
		}
	}

	lines := make([]string, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		r := recent[i]
		result := "[No Deal]"
		if tx := r.Transaction; tx != nil {
			result = fmt.Sprintf("[Deal] %s for ¥%.0f", tx.Item, tx.Amount)
		}
		lines = append(lines, fmt.Sprintf("Time: %s. Result: %s.", r.Clock, result))
	}
	return strings.Join(lines, "\n")
}

func profile(a *agents.Agent) llm.Profile {
	return llm.Profile{
		ID:          string(a.ID),
		Name:        a.Name,
		Title:       a.Title,
		Role:        a.Role.String(),
		Personality: a.Personality,
		Mood:        a.Stats.Mood,
		Money:       a.Stats.Money,
	}
}

func fallbackConversation(a, b string) *llm.Conversation {
	return &llm.Conversation{Lines: []llm.Line{
		{Speaker: a, Text: "Hello."},
		{Speaker: b, Text: "Hello, see you around."},
	}}
}
