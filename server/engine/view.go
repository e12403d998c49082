package engine

import (
	"dealer/server/card"
	"dealer/server/protocol"
)

// View builds the table snapshot as seen by viewer: their own cards in
// full, everyone else reduced to face-up cards.
func (h *Hand) View(tableID, viewer string) protocol.DealUpdate {
	du := protocol.DealUpdate{
		Type:      protocol.TypeDealUpdate,
		TableID:   tableID,
		Street:    h.street,
		YourCards: []string{},
		Visible:   map[string][]string{},
		Community: card.Codes(h.Community),
		Pot:       h.Pot,
		Stacks:    map[string]int{},
		Bets:      map[string]int{},
	}
	for _, p := range h.Players {
		du.Stacks[p.Username] = p.Stack
		du.Bets[p.Username] = p.Committed
		if p.Folded {
			du.Folded = append(du.Folded, p.Username)
			continue
		}
		if p.Username == viewer {
			du.YourCards = card.Codes(p.Cards)
			continue
		}
		if up := p.upCards(); len(up) > 0 {
			du.Visible[p.Username] = card.Codes(up)
		}
	}
	if a := h.Actor(); a != nil {
		du.Turn = a.Username
	} else if d := h.Drawer(); d != nil {
		du.Turn = d.Username
	}
	return du
}

// Public is the spectator view: no hole cards at all.
func (h *Hand) Public(tableID string) protocol.SpectateTable {
	st := protocol.SpectateTable{
		TableID:   tableID,
		Variant:   string(h.Variant),
		Street:    h.street,
		Visible:   map[string][]string{},
		Community: card.Codes(h.Community),
		Pot:       h.Pot,
		Stacks:    map[string]int{},
	}
	for _, p := range h.Players {
		st.Stacks[p.Username] = p.Stack
		if p.Folded {
			continue
		}
		if up := p.upCards(); len(up) > 0 {
			st.Visible[p.Username] = card.Codes(up)
		}
	}
	if a := h.Actor(); a != nil {
		st.Turn = a.Username
	}
	return st
}

// showdownMessage reveals ranks and full hands of everyone who reached
// showdown.
func (h *Hand) showdownMessage(tableID string) protocol.ShowdownResult {
	r := h.result
	msg := protocol.ShowdownResult{
		Type:    protocol.TypeShowdownResult,
		TableID: tableID,
		Winners: r.Winners,
		Payouts: r.Payouts,
		Pot:     r.Pot,
	}
	if len(r.Ranks) > 0 {
		msg.Ranks = map[string]string{}
		msg.Cards = map[string][]string{}
		for _, p := range h.Players {
			if _, ok := r.Ranks[p.Username]; !ok {
				continue
			}
			msg.Ranks[p.Username] = r.Ranks[p.Username].String()
			msg.Cards[p.Username] = card.Codes(p.Cards)
		}
	}
	for _, pr := range r.Pots {
		msg.Pots = append(msg.Pots, protocol.PotShare{Amount: pr.Amount, Eligible: pr.Eligible, Winners: pr.Winners})
	}
	return msg
}
