package card

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeckIsPermutation(t *testing.T) {
	d := NewDeck(42)
	require.Equal(t, 52, d.Remaining())

	seen := map[Card]bool{}
	cs, err := d.Deal(52)
	require.NoError(t, err)
	for _, c := range cs {
		assert.False(t, seen[c], "duplicate card %s", c)
		seen[c] = true
	}
	assert.Len(t, seen, 52)
}

func TestDeckSeedDeterministic(t *testing.T) {
	a, _ := NewDeck(7).Deal(52)
	b, _ := NewDeck(7).Deal(52)
	assert.Equal(t, a, b)

	c, _ := NewDeck(8).Deal(52)
	assert.NotEqual(t, a, c)
}

func TestDealExhaustion(t *testing.T) {
	d := NewDeck(1)
	_, err := d.Deal(50)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Remaining())

	_, err = d.Deal(3)
	assert.ErrorIs(t, err, ErrInsufficientCards)
	assert.Equal(t, 2, d.Remaining())

	require.NoError(t, d.Burn())
	_, err = d.DealOne()
	require.NoError(t, err)
	_, err = d.DealOne()
	assert.ErrorIs(t, err, ErrInsufficientCards)
}

func TestParseRoundTrip(t *testing.T) {
	d := NewDeck(3)
	cs, _ := d.Deal(52)
	for _, c := range cs {
		got, err := Parse(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	_, err := Parse("Xx")
	assert.Error(t, err)
	_, err = Parse("A")
	assert.Error(t, err)
}
