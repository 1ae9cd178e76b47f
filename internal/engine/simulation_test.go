package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/talgya/mini-tycoon/internal/agents"
	"github.com/talgya/mini-tycoon/internal/entropy"
	"github.com/talgya/mini-tycoon/internal/llm"
	"github.com/talgya/mini-tycoon/internal/world"
)

type collabFunc func(ctx context.Context, req llm.ConversationRequest) (*llm.Conversation, error)

func (f collabFunc) Converse(ctx context.Context, req llm.ConversationRequest) (*llm.Conversation, error) {
	return f(ctx, req)
}

func at(x, y int) world.Position { return world.Position{X: x, Y: y} }

// stationary returns an agent whose home and work are where it stands.
func stationary(id agents.ID, role agents.Role, p world.Position) agents.Agent {
	return agents.Agent{
		ID: id, Name: "Name " + string(id), Role: role,
		Position: p, Home: p, Work: p,
		Stats: agents.StartingStats,
	}
}

// plazaPair: a producer and a consumer side by side on the plaza.
func plazaPair() []agents.Agent {
	return []agents.Agent{
		stationary("boss", agents.RoleProducer, at(8, 5)),
		stationary("cust", agents.RoleConsumer, at(7, 5)),
	}
}

func plazaTwoPairs() []agents.Agent {
	return append(plazaPair(),
		stationary("boss2", agents.RoleProducer, at(8, 7)),
		stationary("cust2", agents.RoleConsumer, at(7, 7)),
	)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MeetChance = 1
	cfg.ShopChance = 0
	cfg.WanderChance = 0
	return cfg
}

func newTestSim(t *testing.T, roster []agents.Agent, cfg Config, collab Collaborator) *Simulation {
	t.Helper()
	s := NewSimulation(world.Generate(16, 12), roster, cfg, entropy.NewSeeded(1))
	s.Collaborator = collab
	s.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func deal(amount float64, payer, payee, item string) Collaborator {
	return collabFunc(func(ctx context.Context, req llm.ConversationRequest) (*llm.Conversation, error) {
		return &llm.Conversation{
			Lines: []llm.Line{
				{Speaker: req.A.Name, Text: "Noodles, fresh today."},
				{Speaker: req.B.Name, Text: "I'll take them."},
			},
			Proposal: &llm.Proposal{Success: true, Amount: amount, PayerID: payer, PayeeID: payee, Item: item},
		}, nil
	})
}

func mustAgent(t *testing.T, s *Simulation, id agents.ID) agents.Agent {
	t.Helper()
	a, ok := s.Agent(id)
	if !ok {
		t.Fatalf("agent %s missing", id)
	}
	return a
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		minute int
		want   string
	}{
		{0, "00:00"},
		{495, "08:15"},
		{1439, "23:59"},
		{1440, "00:00"},
		{-15, "23:45"},
	}
	for _, tt := range tests {
		if got := FormatClock(tt.minute); got != tt.want {
			t.Errorf("FormatClock(%d) = %q, want %q", tt.minute, got, tt.want)
		}
	}
}

func TestTickWrapsClock(t *testing.T) {
	cfg := testConfig()
	cfg.MeetChance = 0
	cfg.StartMinute = 23*60 + 45
	s := newTestSim(t, plazaPair(), cfg, nil)

	if !s.Tick() {
		t.Fatal("Tick returned false")
	}
	if s.Minute() != 0 || s.Clock() != "00:00" || s.Ticks() != 1 {
		t.Errorf("after wrap: minute %d clock %s ticks %d", s.Minute(), s.Clock(), s.Ticks())
	}

	for i := 0; i < 200; i++ {
		s.Tick()
		if m := s.Minute(); m < 0 || m >= MinutesPerDay {
			t.Fatalf("minute %d out of range", m)
		}
	}
}

func TestTickMovesTowardWork(t *testing.T) {
	cfg := testConfig()
	cfg.MeetChance = 0
	cfg.StartMinute = 9 * 60
	commuter := stationary("cust", agents.RoleConsumer, at(6, 5))
	commuter.Work = at(9, 5)
	s := newTestSim(t, []agents.Agent{commuter}, cfg, nil)

	for i := 1; i <= 3; i++ {
		s.Tick()
		a := mustAgent(t, s, "cust")
		if a.Position != at(6+i, 5) || a.Status != agents.StatusMoving {
			t.Fatalf("tick %d: at %v status %v", i, a.Position, a.Status)
		}
		if a.Action != agents.LabelCommute {
			t.Errorf("tick %d: action %q", i, a.Action)
		}
	}

	for i := 0; i < 3; i++ {
		s.Tick()
		a := mustAgent(t, s, "cust")
		if a.Position != at(9, 5) || a.Status != agents.StatusWorking || a.Action != agents.LabelBusiness {
			t.Fatalf("at work: %v %v %q", a.Position, a.Status, a.Action)
		}
	}
}

func TestRestingAgentsNeitherMeetNorMove(t *testing.T) {
	cfg := testConfig()
	cfg.StartMinute = 23 * 60
	roster := plazaPair()
	for i := range roster {
		roster[i].Stats.Energy = 50
	}
	s := newTestSim(t, roster, cfg, nil)

	s.Tick()
	if p := s.Pending(); len(p) != 0 {
		t.Fatalf("resting agents queued %v", p)
	}
	for _, a := range s.Agents() {
		if a.Status != agents.StatusResting || a.Stats.Energy != 55 {
			t.Errorf("%s: status %v energy %v", a.ID, a.Status, a.Stats.Energy)
		}
	}
}

func TestDetectorFreezesPair(t *testing.T) {
	s := newTestSim(t, plazaPair(), testConfig(), nil)

	s.Tick()
	pending := s.Pending()
	if len(pending) != 1 || pending[0] != (Pair{A: "boss", B: "cust"}) {
		t.Fatalf("pending = %v", pending)
	}
	before := s.Agents()
	for _, a := range before {
		if a.Status != agents.StatusThinking {
			t.Errorf("%s status %v, want THINKING", a.ID, a.Status)
		}
	}

	// Frozen agents keep position and stats until resolved.
	for i := 0; i < 5; i++ {
		s.Tick()
	}
	after := s.Agents()
	for i := range before {
		if after[i].Position != before[i].Position || after[i].Stats != before[i].Stats || after[i].Status != agents.StatusThinking {
			t.Errorf("%s changed while frozen: %+v -> %+v", before[i].ID, before[i], after[i])
		}
	}
	if len(s.Pending()) != 1 {
		t.Errorf("frozen agents queued again: %v", s.Pending())
	}
}

func TestDetectorQueueCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPending = 1
	s := newTestSim(t, plazaTwoPairs(), cfg, nil)

	s.Tick()
	if p := s.Pending(); len(p) != 1 {
		t.Fatalf("pending = %v, want one pair", p)
	}
	for _, id := range []agents.ID{"boss2", "cust2"} {
		if a := mustAgent(t, s, id); a.Status.Frozen() {
			t.Errorf("%s frozen beyond the queue cap", id)
		}
	}
}

func TestResolveDeal(t *testing.T) {
	var got llm.ConversationRequest
	collab := collabFunc(func(ctx context.Context, req llm.ConversationRequest) (*llm.Conversation, error) {
		got = req
		return deal(500, "cust", "boss", "noodles").Converse(ctx, req)
	})
	s := newTestSim(t, plazaPair(), testConfig(), collab)

	s.Tick()
	if !s.ResolveNext(context.Background()) {
		t.Fatal("ResolveNext found nothing")
	}

	if got.A.ID != "boss" || got.B.ID != "cust" || got.Location != "FLOOR" || got.Time != "08:15" || got.History != "" {
		t.Errorf("request = %+v", got)
	}
	if got.A.Role != "PRODUCER" || got.B.Money != 100000 {
		t.Errorf("profiles = %+v / %+v", got.A, got.B)
	}

	boss, cust := mustAgent(t, s, "boss"), mustAgent(t, s, "cust")
	if boss.Stats.Money != 100500 || cust.Stats.Money != 99500 {
		t.Errorf("money boss %v cust %v", boss.Stats.Money, cust.Stats.Money)
	}
	if cust.Stats.Mood != 85 || cust.Stats.Energy != 98 || cust.Stats.Experience != 2 || boss.Stats.Experience != 2 {
		t.Errorf("aftermath: cust %+v boss %+v", cust.Stats, boss.Stats)
	}
	if boss.Status != agents.StatusIdle || cust.Status != agents.StatusIdle {
		t.Errorf("statuses %v %v", boss.Status, cust.Status)
	}

	recs := s.Interactions()
	if len(recs) != 1 {
		t.Fatalf("interactions = %d", len(recs))
	}
	rec := recs[0]
	want := Transaction{Amount: 500, PayerID: "cust", PayeeID: "boss", Item: "noodles"}
	if rec.Transaction == nil || *rec.Transaction != want {
		t.Errorf("transaction = %+v", rec.Transaction)
	}
	if rec.Lines[0].SpeakerID != "boss" || rec.Lines[1].SpeakerID != "cust" {
		t.Errorf("speakers = %+v", rec.Lines)
	}
	if rec.ID == "" || rec.Clock != "08:15" {
		t.Errorf("record = %+v", rec)
	}
	if s.InFlight() {
		t.Error("still in flight")
	}

	// The second meeting of the pair sees the first.
	s.Tick()
	if !s.ResolveNext(context.Background()) {
		t.Fatal("second meeting not queued")
	}
	if got.History != "Time: 08:15. Result: [Deal] noodles for ¥500." {
		t.Errorf("history = %q", got.History)
	}
}

func TestHistoryLookback(t *testing.T) {
	cfg := testConfig()
	cfg.HistoryLookback = 2
	s := newTestSim(t, plazaPair(), cfg, nil)
	for i, clock := range []string{"08:00", "09:00", "10:00"} {
		rec := Interaction{Participants: [2]agents.ID{"cust", "boss"}, Clock: clock}
		if i == 2 {
			rec.Transaction = &Transaction{Amount: 50, Item: "tea"}
		}
		s.history = append(s.history, rec)
	}
	s.history = append(s.history, Interaction{Participants: [2]agents.ID{"boss", "other"}, Clock: "11:00"})

	got := s.historyLocked("boss", "cust")
	want := "Time: 09:00. Result: [No Deal].\nTime: 10:00. Result: [Deal] tea for ¥50."
	if got != want {
		t.Errorf("history =\n%s\nwant\n%s", got, want)
	}
}

func TestInvalidProposalsAreDropped(t *testing.T) {
	tests := []struct {
		name string
		p    llm.Proposal
	}{
		{"negative", llm.Proposal{Success: true, Amount: -10, PayerID: "cust", PayeeID: "boss"}},
		{"zero", llm.Proposal{Success: true, Amount: 0, PayerID: "cust", PayeeID: "boss"}},
		{"nan", llm.Proposal{Success: true, Amount: math.NaN(), PayerID: "cust", PayeeID: "boss"}},
		{"inf", llm.Proposal{Success: true, Amount: math.Inf(1), PayerID: "cust", PayeeID: "boss"}},
		{"not successful", llm.Proposal{Amount: 10, PayerID: "cust", PayeeID: "boss"}},
		{"unknown payer", llm.Proposal{Success: true, Amount: 10, PayerID: "ghost", PayeeID: "boss"}},
		{"missing payee", llm.Proposal{Success: true, Amount: 10, PayerID: "cust"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.p
			collab := collabFunc(func(ctx context.Context, req llm.ConversationRequest) (*llm.Conversation, error) {
				return &llm.Conversation{Lines: []llm.Line{{Speaker: req.A.Name, Text: "Deal?"}}, Proposal: &p}, nil
			})
			s := newTestSim(t, plazaPair(), testConfig(), collab)
			s.Tick()
			s.ResolveNext(context.Background())

			recs := s.Interactions()
			if len(recs) != 1 || recs[0].Transaction != nil || len(recs[0].Lines) != 1 {
				t.Fatalf("interactions = %+v", recs)
			}
			for _, a := range s.Agents() {
				if a.Stats.Money != 100000 || a.Status != agents.StatusIdle {
					t.Errorf("%s: money %v status %v", a.ID, a.Stats.Money, a.Status)
				}
			}
		})
	}
}

func TestMissingItemDefaults(t *testing.T) {
	s := newTestSim(t, plazaPair(), testConfig(), deal(20, "cust", "boss", ""))
	s.Tick()
	s.ResolveNext(context.Background())
	if tx := s.Interactions()[0].Transaction; tx == nil || tx.Item != "Product" {
		t.Errorf("transaction = %+v", tx)
	}
}

func TestCollaboratorFailureFallsBack(t *testing.T) {
	failing := collabFunc(func(ctx context.Context, req llm.ConversationRequest) (*llm.Conversation, error) {
		return nil, errors.New("connection reset")
	})
	for name, collab := range map[string]Collaborator{"error": failing, "none": nil} {
		t.Run(name, func(t *testing.T) {
			s := newTestSim(t, plazaPair(), testConfig(), collab)
			s.Tick()
			s.ResolveNext(context.Background())

			recs := s.Interactions()
			if len(recs) != 1 {
				t.Fatalf("interactions = %d", len(recs))
			}
			rec := recs[0]
			if len(rec.Lines) != 2 || rec.Transaction != nil {
				t.Fatalf("record = %+v", rec)
			}
			if rec.Lines[0].SpeakerID != "boss" || rec.Lines[1].SpeakerID != "cust" {
				t.Errorf("fallback speakers = %+v", rec.Lines)
			}
			for _, a := range s.Agents() {
				if a.Status != agents.StatusIdle || a.Stats.Experience != 2 {
					t.Errorf("%s: %v %+v", a.ID, a.Status, a.Stats)
				}
			}
		})
	}
}

// blocker is a collaborator that holds every call until released.
type blocker struct {
	started chan llm.ConversationRequest
	release chan struct{}
}

func newBlocker() *blocker {
	return &blocker{started: make(chan llm.ConversationRequest, 4), release: make(chan struct{})}
}

func (b *blocker) Converse(ctx context.Context, req llm.ConversationRequest) (*llm.Conversation, error) {
	b.started <- req
	<-b.release
	return &llm.Conversation{Lines: []llm.Line{{Speaker: req.A.Name, Text: "Hi."}}}, nil
}

func TestSingleConversationInFlight(t *testing.T) {
	b := newBlocker()
	s := newTestSim(t, plazaTwoPairs(), testConfig(), b)
	ctx := context.Background()

	s.Tick()
	if len(s.Pending()) != 2 {
		t.Fatalf("pending = %v", s.Pending())
	}

	if !s.Dispatch(ctx) {
		t.Fatal("first dispatch refused")
	}
	req := <-b.started
	if req.A.ID != "boss" {
		t.Errorf("resolved %s first, want FIFO order", req.A.ID)
	}
	if s.Dispatch(ctx) || s.ResolveNext(ctx) {
		t.Fatal("second resolution started while one is in flight")
	}
	if !s.InFlight() {
		t.Error("InFlight = false during call")
	}
	if a := mustAgent(t, s, "boss"); a.Status != agents.StatusTalking || a.Action != agents.LabelNegotiating {
		t.Errorf("boss: %v %q", a.Status, a.Action)
	}
	if a := mustAgent(t, s, "boss2"); a.Status != agents.StatusThinking {
		t.Errorf("boss2: %v", a.Status)
	}

	// Ticks keep running while the call is outstanding.
	s.Tick()
	s.Tick()

	b.release <- struct{}{}
	s.Wait()

	if !s.Dispatch(ctx) {
		t.Fatal("dispatch after completion refused")
	}
	if req := <-b.started; req.A.ID != "boss2" {
		t.Errorf("second resolution for %s", req.A.ID)
	}
	b.release <- struct{}{}
	s.Wait()

	if n := len(s.Interactions()); n != 2 {
		t.Errorf("interactions = %d", n)
	}
}

func TestWinHaltsEngine(t *testing.T) {
	cfg := testConfig()
	cfg.WinThreshold = 100500
	s := newTestSim(t, plazaPair(), cfg, deal(500, "cust", "boss", "noodles"))
	e := NewEngine(s, time.Millisecond)
	if !e.Start() {
		t.Fatal("Start refused")
	}

	s.Tick()
	s.ResolveNext(context.Background())

	winner, ok := s.Winner()
	if !ok || winner.ID != "boss" || !s.Won() {
		t.Fatalf("winner = %+v, %v", winner, ok)
	}
	if e.Running() {
		t.Error("engine still running after win")
	}
	if e.Start() {
		t.Error("Start accepted after win")
	}
	if s.Tick() {
		t.Error("Tick ran after win")
	}

	// A later crossing never replaces the first winner.
	s.mu.Lock()
	again := s.applyTransfer("boss", 500000, "cust")
	s.mu.Unlock()
	if again != nil {
		t.Errorf("second winner recorded: %+v", again)
	}
	if w, _ := s.Winner(); w.ID != "boss" {
		t.Errorf("winner replaced by %s", w.ID)
	}

	wins := 0
	for _, ev := range s.RecentEvents(0) {
		if ev.Category == CategoryWin {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("win events = %d", wins)
	}
}

func TestNegativeBalanceAllowed(t *testing.T) {
	s := newTestSim(t, plazaPair(), testConfig(), deal(250000, "cust", "boss", "fund"))
	s.Tick()
	s.ResolveNext(context.Background())
	if cust := mustAgent(t, s, "cust"); cust.Stats.Money != -150000 {
		t.Errorf("cust money = %v", cust.Stats.Money)
	}
}

func TestRestartRestoresRoster(t *testing.T) {
	cfg := testConfig()
	cfg.WinThreshold = 100500
	s := newTestSim(t, plazaPair(), cfg, deal(500, "cust", "boss", "noodles"))
	e := NewEngine(s, time.Millisecond)
	e.Start()

	s.Tick()
	s.ResolveNext(context.Background())
	if !s.Won() {
		t.Fatal("setup: expected a win")
	}

	e.Restart()

	if e.Running() {
		t.Error("engine running after restart")
	}
	if s.Won() || len(s.Interactions()) != 0 || len(s.Pending()) != 0 {
		t.Error("restart left winner, history, or queue behind")
	}
	if s.Minute() != cfg.StartMinute || s.Ticks() != 0 || s.Epoch() != 1 {
		t.Errorf("clock %d ticks %d epoch %d", s.Minute(), s.Ticks(), s.Epoch())
	}
	roster := plazaPair()
	for i, a := range s.Agents() {
		want := roster[i]
		if a.Position != want.Position || a.Stats != want.Stats || a.Status != want.Status {
			t.Errorf("%s not restored: %+v", a.ID, a)
		}
	}
	if !e.Start() {
		t.Error("Start refused after restart")
	}
}

func TestRestartDiscardsStaleConversation(t *testing.T) {
	b := newBlocker()
	s := newTestSim(t, plazaPair(), testConfig(), b)
	ctx := context.Background()

	s.Tick()
	s.Dispatch(ctx)
	<-b.started
	s.Restart()
	b.release <- struct{}{}
	s.Wait()

	if n := len(s.Interactions()); n != 0 {
		t.Errorf("stale conversation recorded: %d", n)
	}
	for _, a := range s.Agents() {
		if a.Stats.Experience != 0 || a.Status != agents.StatusIdle {
			t.Errorf("%s touched by stale conversation: %+v", a.ID, a)
		}
	}
	if s.InFlight() {
		t.Error("InFlight after stale completion")
	}

	s.Tick()
	if !s.Dispatch(ctx) {
		t.Fatal("slot not released by stale completion")
	}
	<-b.started
	b.release <- struct{}{}
	s.Wait()
	if n := len(s.Interactions()); n != 1 {
		t.Errorf("interactions = %d", n)
	}
}

type memRecorder struct {
	recs []Interaction
	wins []agents.Agent
}

func (m *memRecorder) RecordInteraction(ctx context.Context, epoch uint64, rec Interaction) error {
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memRecorder) RecordWin(ctx context.Context, epoch uint64, winner agents.Agent) error {
	m.wins = append(m.wins, winner)
	return errors.New("disk full")
}

func TestEngineStepDispatchesAndRecords(t *testing.T) {
	cfg := testConfig()
	cfg.WinThreshold = 100500
	s := newTestSim(t, plazaPair(), cfg, deal(500, "cust", "boss", "noodles"))
	rec := &memRecorder{}
	s.Recorder = rec
	e := NewEngine(s, time.Millisecond)
	var ticks []uint64
	e.OnTick = func(tick uint64) { ticks = append(ticks, tick) }
	e.Start()

	e.step(context.Background())
	s.Wait()

	if len(ticks) != 1 || ticks[0] != 1 {
		t.Errorf("OnTick calls = %v", ticks)
	}
	if len(rec.recs) != 1 || len(rec.wins) != 1 || rec.wins[0].ID != "boss" {
		t.Errorf("recorded %d interactions, %d wins", len(rec.recs), len(rec.wins))
	}
	if e.Running() {
		t.Error("engine running after win")
	}

	e.step(context.Background())
	if len(ticks) != 1 {
		t.Error("step ticked after win")
	}
}

func TestEngineRunHonoursPause(t *testing.T) {
	cfg := testConfig()
	cfg.MeetChance = 0
	s := newTestSim(t, plazaPair(), cfg, nil)
	e := NewEngine(s, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if s.Ticks() != 0 {
		t.Errorf("paused engine ticked %d times", s.Ticks())
	}

	e.Start()
	deadline := time.Now().Add(2 * time.Second)
	for s.Ticks() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	e.Pause()
	cancel()
	<-done

	if s.Ticks() < 3 {
		t.Errorf("ticks = %d", s.Ticks())
	}
}

func TestSubscribeAndSnapshot(t *testing.T) {
	s := newTestSim(t, plazaPair(), testConfig(), nil)
	id, ch := s.Subscribe()

	s.Tick()

	var cats []string
	for len(ch) > 0 {
		cats = append(cats, (<-ch).Category)
	}
	if strings.Join(cats, ",") != "meeting,tick" {
		t.Errorf("events = %v", cats)
	}

	s.Unsubscribe(id)
	if _, open := <-ch; open {
		t.Error("channel open after Unsubscribe")
	}

	snap := s.Snapshot()
	if snap.Tick != 1 || snap.Clock != "08:15" || len(snap.Agents) != 2 || len(snap.Pending) != 1 || snap.Winner != nil {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Grid.Width != 16 {
		t.Errorf("grid width %d", snap.Grid.Width)
	}
}

// haggle sells between a producer and a consumer and lets everyone else chat.
func haggle(amount float64) Collaborator {
	return collabFunc(func(ctx context.Context, req llm.ConversationRequest) (*llm.Conversation, error) {
		conv := &llm.Conversation{Lines: []llm.Line{
			{Speaker: req.A.Name, Text: "Evening."},
			{Speaker: req.B.Name, Text: "Evening."},
		}}
		payer, payee := req.A, req.B
		if payer.Role == agents.RoleProducer.String() {
			payer, payee = payee, payer
		}
		if payer.Role == agents.RoleConsumer.String() && payee.Role == agents.RoleProducer.String() {
			conv.Proposal = &llm.Proposal{Success: true, Amount: amount, PayerID: payer.ID, PayeeID: payee.ID, Item: "tea"}
		}
		return conv, nil
	})
}

func TestMultiDayRunKeepsInvariants(t *testing.T) {
	const days = 5
	roster := agents.DefaultRoster()
	var startMoney float64
	for _, a := range roster {
		startMoney += a.Stats.Money
	}

	for seed := int64(1); seed <= 4; seed++ {
		cfg := DefaultConfig()
		s := NewSimulation(world.Generate(16, 12), roster, cfg, entropy.NewSeeded(seed))
		s.Collaborator = haggle(75)

		exp := make(map[agents.ID]float64)
		ticks := days * MinutesPerDay / cfg.MinutesPerTick
		for i := 0; i < ticks; i++ {
			if !s.Tick() {
				t.Fatalf("seed %d: tick %d refused before any win", seed, i)
			}
			s.ResolveNext(context.Background())

			snap := s.Snapshot()
			if snap.InFlight {
				t.Fatalf("seed %d tick %d: conversation still in flight after synchronous resolve", seed, i)
			}
			queued := make(map[agents.ID]int)
			for _, p := range snap.Pending {
				queued[p.A]++
				queued[p.B]++
			}

			var money float64
			for _, a := range snap.Agents {
				money += a.Stats.Money
				st := a.Stats
				if st.Mood < 0 || st.Mood > agents.MaxStat || st.Energy < 0 || st.Energy > agents.MaxStat {
					t.Fatalf("seed %d tick %d: %s stats out of range: %+v", seed, i, a.ID, st)
				}
				if st.Experience < exp[a.ID] {
					t.Fatalf("seed %d tick %d: %s experience fell %v -> %v", seed, i, a.ID, exp[a.ID], st.Experience)
				}
				exp[a.ID] = st.Experience
				if !snap.Grid.IsWalkable(a.Position.X, a.Position.Y) {
					t.Fatalf("seed %d tick %d: %s on unwalkable %v", seed, i, a.ID, a.Position)
				}
				want := 0
				if a.Status.Frozen() {
					want = 1
				}
				if queued[a.ID] != want {
					t.Fatalf("seed %d tick %d: %s (%s) queued %d times", seed, i, a.ID, a.Status, queued[a.ID])
				}
			}
			if math.Abs(money-startMoney) > 1e-6 {
				t.Fatalf("seed %d tick %d: money not conserved: %v != %v", seed, i, money, startMoney)
			}
		}
		if len(s.Interactions()) == 0 {
			t.Errorf("seed %d: nobody met in %d days", seed, days)
		}
	}
}

func TestSnapshotSince(t *testing.T) {
	s := newTestSim(t, plazaPair(), testConfig(), deal(10, "cust", "boss", "tea"))
	for i := 0; i < 3; i++ {
		s.Tick()
		s.ResolveNext(context.Background())
	}

	full := s.Snapshot()
	if full.InteractionCount != 3 || len(full.Interactions) != 3 {
		t.Fatalf("full snapshot = count %d, %d records", full.InteractionCount, len(full.Interactions))
	}

	d := s.SnapshotSince(full.Epoch, 2)
	if d.InteractionCount != 3 || len(d.Interactions) != 1 || d.Interactions[0].ID != full.Interactions[2].ID {
		t.Errorf("since 2 = count %d, %+v", d.InteractionCount, d.Interactions)
	}
	if d := s.SnapshotSince(full.Epoch, 3); len(d.Interactions) != 0 {
		t.Errorf("nothing new, got %d records", len(d.Interactions))
	}

	s.Restart()
	s.Tick()
	s.ResolveNext(context.Background())
	if d := s.SnapshotSince(full.Epoch, 3); d.Epoch == full.Epoch || len(d.Interactions) != 1 || d.InteractionCount != 1 {
		t.Errorf("after restart = epoch %d count %d, %d records", d.Epoch, d.InteractionCount, len(d.Interactions))
	}
}
