package card

import (
	"errors"
	"math/rand"
	"time"
)

// ErrInsufficientCards is returned when a deal asks for more cards than
// the deck holds. Callers treat it as a structural fault and abort the
// hand rather than reshuffle.
var ErrInsufficientCards = errors.New("deck: insufficient cards")

// Deck is a shuffled 52-card deck. Not safe for concurrent use; each
// hand owns exactly one deck.
type Deck struct {
	cards []Card
}

// NewDeck builds a full deck and shuffles it (Fisher-Yates). seed == 0
// means seed from the clock; tests pass a fixed seed.
func NewDeck(seed int64) *Deck {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := rand.New(rand.NewSource(seed))
	cards := make([]Card, 0, 52)
	for s := 0; s < 4; s++ {
		for rnk := 2; rnk <= 14; rnk++ {
			cards = append(cards, Card{Rank: rnk, Suit: Suits[s]})
		}
	}
	for i := len(cards) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
	return &Deck{cards: cards}
}

// Stacked builds a deck that deals the given cards in order. Intended
// for deterministic hands in tests.
func Stacked(cards ...Card) *Deck {
	return &Deck{cards: cards}
}

func (d *Deck) Remaining() int { return len(d.cards) }

// Deal removes and returns the top n cards.
func (d *Deck) Deal(n int) ([]Card, error) {
	if n > len(d.cards) {
		return nil, ErrInsufficientCards
	}
	out := d.cards[:n]
	d.cards = d.cards[n:]
	return out, nil
}

func (d *Deck) DealOne() (Card, error) {
	cs, err := d.Deal(1)
	if err != nil {
		return Card{}, err
	}
	return cs[0], nil
}

// Burn discards the top card unseen.
func (d *Deck) Burn() error {
	_, err := d.Deal(1)
	return err
}
