package engine

import "fmt"

// Variant selects the rule set for a table. The codes double as the
// wire and config values.
type Variant string

const (
	FiveCardDraw  Variant = "5card"
	SevenCardStud Variant = "7card"
	TexasHoldem   Variant = "texas"
)

func ParseVariant(s string) (Variant, error) {
	switch s {
	case "5card", "five_card_draw":
		return FiveCardDraw, nil
	case "7card", "seven_card_stud":
		return SevenCardStud, nil
	case "texas", "texas_holdem", "holdem":
		return TexasHoldem, nil
	}
	return "", fmt.Errorf("unknown variant %q", s)
}

func (v Variant) Name() string {
	switch v {
	case FiveCardDraw:
		return "Five Card Draw"
	case SevenCardStud:
		return "Seven Card Stud"
	case TexasHoldem:
		return "Texas Hold'em"
	}
	return string(v)
}

type phaseKind int

const (
	phaseDeal phaseKind = iota
	phaseBet
	phaseDraw
)

// phase is one step of a variant's script. Deal phases distribute
// down/up cards per player or community cards; bet phases open a
// betting round; the draw phase lets each player swap cards once.
type phase struct {
	kind      phaseKind
	street    string
	down, up  int
	community int
	burn      bool
}

func (v Variant) phases() []phase {
	switch v {
	case FiveCardDraw:
		return []phase{
			{kind: phaseDeal, street: "predraw", down: 5},
			{kind: phaseBet, street: "predraw"},
			{kind: phaseDraw, street: "draw"},
			{kind: phaseBet, street: "postdraw"},
		}
	case SevenCardStud:
		return []phase{
			{kind: phaseDeal, street: "third_street", down: 2, up: 1},
			{kind: phaseBet, street: "third_street"},
			{kind: phaseDeal, street: "fourth_street", up: 1},
			{kind: phaseBet, street: "fourth_street"},
			{kind: phaseDeal, street: "fifth_street", up: 1},
			{kind: phaseBet, street: "fifth_street"},
			{kind: phaseDeal, street: "sixth_street", up: 1},
			{kind: phaseBet, street: "sixth_street"},
			{kind: phaseDeal, street: "seventh_street", down: 1},
			{kind: phaseBet, street: "seventh_street"},
		}
	case TexasHoldem:
		return []phase{
			{kind: phaseDeal, street: "preflop", down: 2},
			{kind: phaseBet, street: "preflop"},
			{kind: phaseDeal, street: "flop", community: 3, burn: true},
			{kind: phaseBet, street: "flop"},
			{kind: phaseDeal, street: "turn", community: 1, burn: true},
			{kind: phaseBet, street: "turn"},
			{kind: phaseDeal, street: "river", community: 1, burn: true},
			{kind: phaseBet, street: "river"},
		}
	}
	return nil
}

type ActionKind string

const (
	Fold  ActionKind = "fold"
	Check ActionKind = "check"
	Call  ActionKind = "call"
	Raise ActionKind = "raise"
	Draw  ActionKind = "draw"
)

// Action is one applied move, kept in hand history. Auto marks moves
// the engine substituted for an absent or timed-out player.
type Action struct {
	Username string     `json:"username"`
	Kind     ActionKind `json:"action"`
	Amount   int        `json:"to,omitempty"`
	Auto     bool       `json:"auto,omitempty"`
}

// Config carries the forced-bet sizes. Hold'em posts the blinds; draw
// and stud collect the ante from every seat. BB doubles as the minimum
// bet unit for all variants.
type Config struct {
	Ante int
	SB   int
	BB   int
}
