package card

import (
	"fmt"
	"sort"
)

// Category orders hand classes from weakest to strongest.
type Category int

const (
	HighCard Category = iota + 1
	OnePair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
	RoyalFlush
)

var categoryNames = map[Category]string{
	HighCard:      "High Card",
	OnePair:       "One Pair",
	TwoPair:       "Two Pair",
	ThreeOfAKind:  "Three of a Kind",
	Straight:      "Straight",
	Flush:         "Flush",
	FullHouse:     "Full House",
	FourOfAKind:   "Four of a Kind",
	StraightFlush: "Straight Flush",
	RoyalFlush:    "Royal Flush",
}

func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// HandRank is a comparable strength: category first, then kickers in
// decreasing significance.
type HandRank struct {
	Category  Category
	Tiebreaks []int
}

// Compare returns -1, 0 or +1 as r is weaker than, equal to, or
// stronger than o.
func (r HandRank) Compare(o HandRank) int {
	if r.Category != o.Category {
		if r.Category < o.Category {
			return -1
		}
		return 1
	}
	for i := 0; i < len(r.Tiebreaks) && i < len(o.Tiebreaks); i++ {
		if r.Tiebreaks[i] != o.Tiebreaks[i] {
			if r.Tiebreaks[i] < o.Tiebreaks[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (r HandRank) Beats(o HandRank) bool { return r.Compare(o) > 0 }

func (r HandRank) String() string { return r.Category.String() }

// Evaluate ranks the best five-card hand available in cards. Accepts
// five to seven cards (hold'em and stud showdowns pass seven).
func Evaluate(cards []Card) (HandRank, error) {
	n := len(cards)
	if n < 5 || n > 7 {
		return HandRank{}, fmt.Errorf("evaluate: need 5-7 cards, got %d", n)
	}
	if n == 5 {
		return eval5(cards), nil
	}
	best := HandRank{}
	choose := [5]int{}
	five := make([]Card, 5)
	var rec func(start, k int)
	rec = func(start, k int) {
		if k == 5 {
			for i := 0; i < 5; i++ {
				five[i] = cards[choose[i]]
			}
			if r := eval5(five); best.Category == 0 || r.Beats(best) {
				best = r
			}
			return
		}
		for i := start; i <= n-(5-k); i++ {
			choose[k] = i
			rec(i+1, k+1)
		}
	}
	rec(0, 0)
	return best, nil
}

func eval5(cs []Card) HandRank {
	ranks := make([]int, 5)
	flush := true
	for i, c := range cs {
		ranks[i] = c.Rank
		if c.Suit != cs[0].Suit {
			flush = false
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ranks)))

	straightHigh := straightHigh(ranks)

	if flush && straightHigh == 14 {
		return HandRank{Category: RoyalFlush, Tiebreaks: []int{14}}
	}
	if flush && straightHigh > 0 {
		return HandRank{Category: StraightFlush, Tiebreaks: []int{straightHigh}}
	}

	counts := map[int]int{}
	for _, r := range ranks {
		counts[r]++
	}
	// Group ranks by multiplicity, highest count first, then rank.
	type group struct{ rank, n int }
	groups := make([]group, 0, 5)
	for r, n := range counts {
		groups = append(groups, group{r, n})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].n != groups[j].n {
			return groups[i].n > groups[j].n
		}
		return groups[i].rank > groups[j].rank
	})
	tb := make([]int, 0, 5)
	for _, g := range groups {
		tb = append(tb, g.rank)
	}

	switch {
	case groups[0].n == 4:
		return HandRank{Category: FourOfAKind, Tiebreaks: tb}
	case groups[0].n == 3 && groups[1].n == 2:
		return HandRank{Category: FullHouse, Tiebreaks: tb}
	case flush:
		return HandRank{Category: Flush, Tiebreaks: ranks}
	case straightHigh > 0:
		return HandRank{Category: Straight, Tiebreaks: []int{straightHigh}}
	case groups[0].n == 3:
		return HandRank{Category: ThreeOfAKind, Tiebreaks: tb}
	case groups[0].n == 2 && groups[1].n == 2:
		return HandRank{Category: TwoPair, Tiebreaks: tb}
	case groups[0].n == 2:
		return HandRank{Category: OnePair, Tiebreaks: tb}
	default:
		return HandRank{Category: HighCard, Tiebreaks: ranks}
	}
}

// straightHigh returns the high card of a straight formed by ranks
// (sorted descending), or 0. The wheel A-5-4-3-2 counts with high 5.
func straightHigh(ranks []int) int {
	run := true
	for i := 1; i < 5; i++ {
		if ranks[i] != ranks[i-1]-1 {
			run = false
			break
		}
	}
	if run {
		return ranks[0]
	}
	if ranks[0] == 14 && ranks[1] == 5 && ranks[2] == 4 && ranks[3] == 3 && ranks[4] == 2 {
		return 5
	}
	return 0
}
