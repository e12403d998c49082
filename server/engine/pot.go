package engine

import (
	"sort"

	"dealer/server/card"
)

// pot is one settlement layer: the chips contributed between two
// all-in levels and the seats still eligible to win them.
type pot struct {
	amount   int
	eligible []*HandPlayer
}

// buildPots layers the contributions of every player (folded chips
// included) into a main pot and side pots.
func (h *Hand) buildPots() []pot {
	levels := []int{}
	seen := map[int]bool{}
	for _, p := range h.Players {
		if !p.Folded && p.Contributed > 0 && !seen[p.Contributed] {
			levels = append(levels, p.Contributed)
			seen[p.Contributed] = true
		}
	}
	sort.Ints(levels)

	pots := []pot{}
	prev := 0
	for _, lvl := range levels {
		pt := pot{}
		for _, p := range h.Players {
			c := p.Contributed
			if c > lvl {
				c = lvl
			}
			if c > prev {
				pt.amount += c - prev
			}
			if !p.Folded && p.Contributed >= lvl {
				pt.eligible = append(pt.eligible, p)
			}
		}
		if pt.amount > 0 {
			pots = append(pots, pt)
		}
		prev = lvl
	}
	return pots
}

type PotResult struct {
	Amount   int
	Eligible []string
	Winners  []string
}

type SeatResult struct {
	Username string
	Seat     int
	Stack    int // after settlement
	Net      int // payout minus contribution
	Folded   bool
	Rank     string // empty if never shown
	Won      bool
}

// Result summarizes a finished hand. Payouts lists only seats that
// received chips; Seats covers everyone.
type Result struct {
	HandID    string
	Variant   Variant
	Pot       int
	Community []card.Card
	Winners   []string
	Payouts   map[string]int
	Ranks     map[string]card.HandRank
	Pots      []PotResult
	Seats     []SeatResult
	Aborted   bool
}

// finishByFold ends the hand with a single unfolded player. Cards stay
// hidden; the pot moves without a showdown.
func (h *Hand) finishByFold() {
	w := h.remaining()[0]
	w.Stack += h.Pot
	payouts := map[string]int{w.Username: h.Pot}
	h.done = true
	h.toAct = -1
	h.drawAt = -1
	h.result = &Result{
		HandID:    h.ID,
		Variant:   h.Variant,
		Pot:       h.Pot,
		Community: h.Community,
		Winners:   []string{w.Username},
		Payouts:   payouts,
		Pots:      []PotResult{{Amount: h.Pot, Eligible: []string{w.Username}, Winners: []string{w.Username}}},
		Seats:     h.seatResults(payouts, nil),
	}
}

// finishShowdown ranks every unfolded hand and pays out each pot layer
// to its best eligible hand, splitting ties. An odd chip goes to the
// earliest seat among the winners.
func (h *Hand) finishShowdown() error {
	ranks := map[string]card.HandRank{}
	for _, p := range h.remaining() {
		r, err := card.Evaluate(append(append([]card.Card{}, p.Cards...), h.Community...))
		if err != nil {
			return err
		}
		ranks[p.Username] = r
	}

	payouts := map[string]int{}
	potResults := []PotResult{}
	winners := map[string]bool{}
	for _, pt := range h.buildPots() {
		best := []*HandPlayer{}
		for _, p := range pt.eligible {
			if len(best) == 0 {
				best = []*HandPlayer{p}
				continue
			}
			switch ranks[p.Username].Compare(ranks[best[0].Username]) {
			case 1:
				best = []*HandPlayer{p}
			case 0:
				best = append(best, p)
			}
		}
		share := pt.amount / len(best)
		rem := pt.amount % len(best)
		pr := PotResult{Amount: pt.amount}
		for _, p := range pt.eligible {
			pr.Eligible = append(pr.Eligible, p.Username)
		}
		for i, p := range best {
			pay := share
			if i == 0 {
				pay += rem
			}
			payouts[p.Username] += pay
			p.Stack += pay
			pr.Winners = append(pr.Winners, p.Username)
			winners[p.Username] = true
		}
		potResults = append(potResults, pr)
	}

	names := []string{}
	for _, p := range h.Players {
		if winners[p.Username] {
			names = append(names, p.Username)
		}
	}
	h.done = true
	h.toAct = -1
	h.drawAt = -1
	h.result = &Result{
		HandID:    h.ID,
		Variant:   h.Variant,
		Pot:       h.Pot,
		Community: h.Community,
		Winners:   names,
		Payouts:   payouts,
		Ranks:     ranks,
		Pots:      potResults,
		Seats:     h.seatResults(payouts, ranks),
	}
	return nil
}

func (h *Hand) seatResults(payouts map[string]int, ranks map[string]card.HandRank) []SeatResult {
	out := make([]SeatResult, 0, len(h.Players))
	for _, p := range h.Players {
		sr := SeatResult{
			Username: p.Username,
			Seat:     p.Seat,
			Stack:    p.Stack,
			Net:      payouts[p.Username] - p.Contributed,
			Folded:   p.Folded,
			Won:      payouts[p.Username] > 0,
		}
		if r, ok := ranks[p.Username]; ok {
			sr.Rank = r.String()
		}
		out = append(out, sr)
	}
	return out
}
