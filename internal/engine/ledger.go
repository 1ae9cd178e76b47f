package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/mini-tycoon/internal/agents"
	"github.com/talgya/mini-tycoon/internal/llm"
)

const defaultItem = "Product"

// acceptProposal vets a proposed deal. Caller holds mu.
func (s *Simulation) acceptProposal(p *llm.Proposal) (*Transaction, bool) {
	if p == nil || !p.Success {
		return nil, false
	}
	if math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) || p.Amount <= 0 {
		return nil, false
	}
	payer, payee := agents.ID(p.PayerID), agents.ID(p.PayeeID)
	if payer == "" || payee == "" {
		return nil, false
	}
	if _, ok := s.index[payer]; !ok {
		return nil, false
	}
	if _, ok := s.index[payee]; !ok {
		return nil, false
	}

	item := p.Item
	if item == "" {
		item = defaultItem
	}
	return &Transaction{Amount: p.Amount, PayerID: payer, PayeeID: payee, Item: item}, true
}

// applyTransfer moves money from payer to payee. The payer may go negative.
// If the payee crosses the win threshold first, the town is won and a copy
// of the winner is returned. Caller holds mu.
func (s *Simulation) applyTransfer(payerID agents.ID, amount float64, payeeID agents.ID) *agents.Agent {
	payer, payee := s.index[payerID], s.index[payeeID]
	payer.Stats.Money -= amount
	payee.Stats.Money += amount

	if s.winner != nil || payee.Stats.Money < s.cfg.WinThreshold {
		return nil
	}

	id := payee.ID
	s.winner = &id
	s.emitLocked(Event{
		Category:    CategoryWin,
		Description: fmt.Sprintf("%s reached ¥%.0f", payee.Name, payee.Stats.Money),
		Meta:        map[string]any{"winner": payee.ID, "money": payee.Stats.Money},
	})
	slog.Info("simulation won", "winner", payee.ID, "money", payee.Stats.Money)
	return payee.Clone()
}
