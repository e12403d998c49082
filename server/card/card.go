package card

import "fmt"

// Card is a playing card. Rank runs 2..14 (Ace high), Suit is one of
// 'c', 'd', 'h', 's'.
type Card struct {
	Rank int
	Suit byte
}

const Suits = "cdhs"

const ranks = "  23456789TJQKA"

func (c Card) String() string {
	return fmt.Sprintf("%c%c", ranks[c.Rank], c.Suit)
}

// SuitIndex returns the suit's position in Suits. Used to break rank
// ties deterministically (stud bring-in).
func (c Card) SuitIndex() int {
	for i := 0; i < len(Suits); i++ {
		if Suits[i] == c.Suit {
			return i
		}
	}
	return -1
}

// Parse converts a two-character code like "As" or "Td" back to a Card.
func Parse(s string) (Card, error) {
	if len(s) != 2 {
		return Card{}, fmt.Errorf("card: bad code %q", s)
	}
	rank := -1
	for i := 2; i <= 14; i++ {
		if ranks[i] == s[0] {
			rank = i
			break
		}
	}
	if rank < 0 {
		return Card{}, fmt.Errorf("card: bad rank in %q", s)
	}
	c := Card{Rank: rank, Suit: s[1]}
	if c.SuitIndex() < 0 {
		return Card{}, fmt.Errorf("card: bad suit in %q", s)
	}
	return c, nil
}

// Codes renders a hand as wire-format codes.
func Codes(cs []Card) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.String()
	}
	return out
}
