package domain

import (
	"math"
	"sort"
)

// No identifier survives the donor→broker→client round trip, so restart
// recovery pairs positions by a weighted score over the signals that do
// survive: symbol, direction, magic, open time and open price.

const (
	matchAcceptScore      = 20 // minimum for a position pairing
	orderMatchAcceptScore = 15 // minimum for a pending-order pairing
)

// MatchConfig tunes the scorer.
type MatchConfig struct {
	// CopyDonorMagic means client orders were tagged with the donor's magic
	// instead of the engine's own, so a set donor magic must match exactly.
	CopyDonorMagic bool
}

// Match is an accepted donor↔client pairing.
type Match struct {
	DonorTicket  int64
	ClientTicket int64
	Score        float64
}

// MatchPositions pairs unlinked donor positions with unlinked client
// positions. points maps symbol → point size (used for price tolerance);
// saved carries donor→client pairings from a previous run, which earn a
// bonus but are not trusted on their own. Pairings are greedy in descending
// score order, so no ticket is consumed twice.
func MatchPositions(donors []DonorPosition, clients []ClientPosition, points map[string]float64, saved map[int64]int64, cfg MatchConfig) []Match {
	type candidate struct {
		d, c  int
		score float64
	}
	var candidates []candidate
	for i, d := range donors {
		for j, c := range clients {
			point := points[d.Symbol]
			savedHit := saved != nil && saved[d.Ticket] == c.Ticket && c.Ticket != 0
			score, ok := scorePosition(d, c, point, savedHit, cfg)
			if ok && score >= matchAcceptScore {
				candidates = append(candidates, candidate{d: i, c: j, score: score})
			}
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})

	usedDonor := make(map[int]bool)
	usedClient := make(map[int]bool)
	var matches []Match
	for _, cand := range candidates {
		if usedDonor[cand.d] || usedClient[cand.c] {
			continue
		}
		usedDonor[cand.d] = true
		usedClient[cand.c] = true
		matches = append(matches, Match{
			DonorTicket:  donors[cand.d].Ticket,
			ClientTicket: clients[cand.c].Ticket,
			Score:        cand.score,
		})
	}
	return matches
}

func scorePosition(d DonorPosition, c ClientPosition, point float64, savedHit bool, cfg MatchConfig) (float64, bool) {
	if d.Symbol != c.Symbol || d.Direction != c.Direction {
		return 0, false
	}
	score := 20.0

	if cfg.CopyDonorMagic && d.Magic != nil {
		if c.Magic != *d.Magic {
			return 0, false
		}
		score += 30
	} else if d.Magic != nil && c.Magic == *d.Magic {
		score += 15
	}

	score += timeProximity(math.Abs(d.OpenedAt.Sub(c.OpenedAt).Seconds()))

	if point <= 0 {
		point = PointSize(5)
	}
	maxDiff := math.Max(100*point, 0.01)
	diff := math.Abs(d.PriceOpen - c.PriceOpen)
	if diff <= maxDiff {
		score += 10 * (1 - diff/maxDiff)
	} else {
		score -= 5 * math.Min(diff/maxDiff, 2)
	}
	if score < 0 {
		return 0, false
	}

	if savedHit {
		score += 10
	}
	return score, true
}

// timeProximity rewards open times that are close together, in tiers that
// loosen as the gap grows. Beyond a day the signal carries nothing.
func timeProximity(dt float64) float64 {
	switch {
	case dt <= 60:
		return 20 * (1 - dt/60)
	case dt <= 300:
		return 15 * (1 - (dt-60)/240)
	case dt <= 3600:
		return 10 * (1 - (dt-300)/3300)
	case dt <= 86400:
		return 5 * (1 - (dt-3600)/82800)
	default:
		return 0
	}
}

// MatchOrders re-pairs mirrored donor pending orders with live client
// pending orders after a restart, when the saved client ticket is gone.
func MatchOrders(donors []DonorPendingOrder, clients []ClientPendingOrder, points map[string]float64) []Match {
	type candidate struct {
		d, c  int
		score float64
	}
	var candidates []candidate
	for i, d := range donors {
		for j, c := range clients {
			score, ok := scoreOrder(d, c, points[d.Symbol])
			if ok && score >= orderMatchAcceptScore {
				candidates = append(candidates, candidate{d: i, c: j, score: score})
			}
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})

	usedDonor := make(map[int]bool)
	usedClient := make(map[int]bool)
	var matches []Match
	for _, cand := range candidates {
		if usedDonor[cand.d] || usedClient[cand.c] {
			continue
		}
		usedDonor[cand.d] = true
		usedClient[cand.c] = true
		matches = append(matches, Match{
			DonorTicket:  donors[cand.d].Ticket,
			ClientTicket: clients[cand.c].Ticket,
			Score:        cand.score,
		})
	}
	return matches
}

func scoreOrder(d DonorPendingOrder, c ClientPendingOrder, point float64) (float64, bool) {
	if d.Symbol != c.Symbol || d.Kind != c.Kind {
		return 0, false
	}
	score := 10.0

	if point <= 0 {
		point = PointSize(5)
	}
	maxDiff := math.Max(10*point, 0.001)
	diff := math.Abs(d.Price - c.Price)
	if diff <= maxDiff {
		score += 10 * (1 - diff/maxDiff)
	}

	dt := math.Abs(d.TimeSetup.Sub(c.TimeSetup).Seconds())
	switch {
	case dt <= 300:
		score += 10
	case dt <= 3600:
		score += 5
	default:
		return 0, false
	}
	return score, true
}
