// Package rating computes per-hand Elo adjustments for settled pots.
package rating

import "math"

// Player is one seat's rating input: current rating and net chip
// result for the hand (winnings minus contribution).
type Player struct {
	Rating float64
	Net    int
}

// Deltas scores every player against every opponent pairwise and
// returns the rating change per seat. K is tempered by pot size and
// chip margin so trivial pots barely move ratings. The deltas sum to
// roughly zero across the table.
func Deltas(players []Player, pot, bb int, k float64) []float64 {
	n := len(players)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	base := k * potScale(pot, bb) / float64(n-1)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b := players[i], players[j]
			ea := expect(a.Rating, b.Rating)
			sa := score(a.Net, b.Net)
			d := base * marginScale(a.Net-b.Net, bb) * (sa - ea)
			out[i] += d
			out[j] -= d
		}
	}
	return out
}

func expect(ra, rb float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (rb-ra)/400.0))
}

func score(netA, netB int) float64 {
	switch {
	case netA > netB:
		return 1.0
	case netA < netB:
		return 0.0
	}
	return 0.5
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func potScale(pot, bb int) float64 {
	if bb <= 0 || pot <= 0 {
		return 1.0
	}
	scale := float64(pot) / (2.0 * float64(bb)) // ~2bb baseline
	return clamp(scale, 0.5, 3.0)
}

func marginScale(diff, bb int) float64 {
	if bb <= 0 {
		return 1.0
	}
	m := math.Abs(float64(diff)) / float64(bb) // in BBs
	return 1.0 + 0.35*math.Tanh(m/8.0)         // ≤ ~1.35
}
