package card

import (
	"math/rand"
	"testing"

	poker "github.com/paulhankin/poker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hand(t *testing.T, codes ...string) []Card {
	t.Helper()
	cs := make([]Card, len(codes))
	for i, code := range codes {
		c, err := Parse(code)
		require.NoError(t, err)
		cs[i] = c
	}
	return cs
}

func rank(t *testing.T, codes ...string) HandRank {
	t.Helper()
	r, err := Evaluate(hand(t, codes...))
	require.NoError(t, err)
	return r
}

func TestEvaluateCategories(t *testing.T) {
	cases := []struct {
		codes []string
		want  Category
	}{
		{[]string{"Ks", "Qd", "9h", "5c", "2s"}, HighCard},
		{[]string{"Ks", "Kd", "9h", "5c", "2s"}, OnePair},
		{[]string{"Ks", "Kd", "9h", "9c", "2s"}, TwoPair},
		{[]string{"Ks", "Kd", "Kh", "9c", "2s"}, ThreeOfAKind},
		{[]string{"9s", "8d", "7h", "6c", "5s"}, Straight},
		{[]string{"As", "2s", "3s", "4s", "5s"}, StraightFlush},
		{[]string{"Ks", "Qs", "9s", "5s", "2s"}, Flush},
		{[]string{"Ks", "Kd", "Kh", "9c", "9s"}, FullHouse},
		{[]string{"Ks", "Kd", "Kh", "Kc", "2s"}, FourOfAKind},
		{[]string{"9s", "8s", "7s", "6s", "5s"}, StraightFlush},
		{[]string{"As", "Ks", "Qs", "Js", "Ts"}, RoyalFlush},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, rank(t, tc.codes...).Category, "%v", tc.codes)
	}
}

func TestWheelStraightRanksLow(t *testing.T) {
	wheel := rank(t, "As", "2d", "3h", "4c", "5s")
	six := rank(t, "2d", "3h", "4c", "5s", "6d")
	assert.Equal(t, Straight, wheel.Category)
	assert.Equal(t, []int{5}, wheel.Tiebreaks)
	assert.True(t, six.Beats(wheel))
}

func TestKickerComparisons(t *testing.T) {
	// Same pair, better kicker wins.
	a := rank(t, "Ks", "Kd", "Ah", "5c", "2s")
	b := rank(t, "Kh", "Kc", "Qh", "5d", "2d")
	assert.True(t, a.Beats(b))

	// Two pair compares high pair, low pair, then kicker.
	c := rank(t, "As", "Ad", "2h", "2c", "3s")
	d := rank(t, "Ks", "Kd", "Qh", "Qc", "As")
	assert.True(t, c.Beats(d))

	// Identical board, exact tie.
	e := rank(t, "Ks", "Qd", "9h", "5c", "2s")
	f := rank(t, "Kd", "Qs", "9c", "5h", "2d")
	assert.Equal(t, 0, e.Compare(f))
}

func TestEvaluatePicksBestFive(t *testing.T) {
	// Seven cards holding a flush that is easy to miss behind a pair.
	r := rank(t, "Ah", "Ad", "3h", "7h", "9h", "Jh", "2c")
	assert.Equal(t, Flush, r.Category)
	assert.Equal(t, []int{14, 11, 9, 7, 3}, r.Tiebreaks)

	_, err := Evaluate(hand(t, "Ah", "Ad", "3h"))
	assert.Error(t, err)
}

func TestEvaluateOrderInvariant(t *testing.T) {
	codes := []string{"Ah", "Ad", "3h", "7h", "9h", "Jh", "2c"}
	want := rank(t, codes...)
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]string(nil), codes...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, 0, want.Compare(rank(t, shuffled...)))
	}
}

func toPH(c Card) poker.Card {
	var s poker.Suit
	switch c.Suit {
	case 'c':
		s = poker.Club
	case 'd':
		s = poker.Diamond
	case 'h':
		s = poker.Heart
	case 's':
		s = poker.Spade
	}
	r := poker.Rank(c.Rank)
	if c.Rank == 14 {
		r = poker.Rank(1)
	}
	pc, _ := poker.MakeCard(s, r)
	return pc
}

func phEval7(t *testing.T, cs []Card) int16 {
	t.Helper()
	var a7 [7]poker.Card
	for i, c := range cs {
		a7[i] = toPH(c)
	}
	return poker.Eval7(&a7)
}

// phDirection reports whether larger library scores mean stronger
// hands, calibrated against two hands whose order is not in question.
func phDirection(t *testing.T) bool {
	royal := phEval7(t, hand(t, "As", "Ks", "Qs", "Js", "Ts", "2d", "3c"))
	junk := phEval7(t, hand(t, "2s", "4d", "6h", "8c", "Td", "Qh", "3s"))
	return royal > junk
}

func TestEvaluateAgreesWithLibrary(t *testing.T) {
	largerWins := phDirection(t)
	r := rand.New(rand.NewSource(99))
	for i := 0; i < 2000; i++ {
		d := NewDeck(r.Int63() + 1)
		a, err := d.Deal(7)
		require.NoError(t, err)
		b, err := d.Deal(7)
		require.NoError(t, err)

		ra, err := Evaluate(a)
		require.NoError(t, err)
		rb, err := Evaluate(b)
		require.NoError(t, err)

		pa, pb := phEval7(t, a), phEval7(t, b)
		if !largerWins {
			pa, pb = pb, pa
		}
		switch {
		case pa > pb:
			assert.Equal(t, 1, ra.Compare(rb), "%v vs %v", a, b)
		case pa < pb:
			assert.Equal(t, -1, ra.Compare(rb), "%v vs %v", a, b)
		default:
			assert.Equal(t, 0, ra.Compare(rb), "%v vs %v", a, b)
		}
	}
}
