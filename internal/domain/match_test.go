package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var matchBase = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func donorPos(ticket int64, symbol string, dir Direction, price float64, at time.Time, magic *int64) DonorPosition {
	return DonorPosition{
		Ticket: ticket, Symbol: symbol, Direction: dir, Volume: 0.10,
		PriceOpen: price, OpenedAt: at, SourceID: "alpha", Magic: magic,
	}
}

func clientPos(ticket int64, symbol string, dir Direction, price float64, at time.Time, magic int64) ClientPosition {
	return ClientPosition{
		Ticket: ticket, Symbol: symbol, Direction: dir, Volume: 0.01,
		PriceOpen: price, OpenedAt: at, Magic: magic,
	}
}

var eurusdPoints = map[string]float64{"EURUSD": 0.00001}

func TestMatchPositions_SymbolAndDirectionGate(t *testing.T) {
	donors := []DonorPosition{donorPos(1, "EURUSD", Buy, 1.10000, matchBase, nil)}
	clients := []ClientPosition{
		clientPos(10, "GBPUSD", Buy, 1.10000, matchBase, 777),
		clientPos(11, "EURUSD", Sell, 1.10000, matchBase, 777),
	}
	assert.Empty(t, MatchPositions(donors, clients, eurusdPoints, nil, MatchConfig{}))
}

func TestMatchPositions_HappyPair(t *testing.T) {
	donors := []DonorPosition{donorPos(1, "EURUSD", Buy, 1.10000, matchBase, nil)}
	clients := []ClientPosition{clientPos(10, "EURUSD", Buy, 1.10002, matchBase.Add(3*time.Second), 777)}

	matches := MatchPositions(donors, clients, eurusdPoints, nil, MatchConfig{})
	require.Len(t, matches, 1)
	assert.Equal(t, int64(1), matches[0].DonorTicket)
	assert.Equal(t, int64(10), matches[0].ClientTicket)
}

func TestMatchPositions_ExactMagicWins(t *testing.T) {
	magic := int64(4242)
	donors := []DonorPosition{donorPos(1, "EURUSD", Buy, 1.10000, matchBase, &magic)}
	clients := []ClientPosition{
		clientPos(10, "EURUSD", Buy, 1.10000, matchBase, 999),
		clientPos(11, "EURUSD", Buy, 1.10000, matchBase, 4242),
	}

	matches := MatchPositions(donors, clients, eurusdPoints, nil, MatchConfig{})
	require.Len(t, matches, 1)
	assert.Equal(t, int64(11), matches[0].ClientTicket)
}

func TestMatchPositions_CopyDonorMagicRequiresExact(t *testing.T) {
	magic := int64(4242)
	donors := []DonorPosition{donorPos(1, "EURUSD", Buy, 1.10000, matchBase, &magic)}
	clients := []ClientPosition{clientPos(10, "EURUSD", Buy, 1.10000, matchBase, 999)}

	matches := MatchPositions(donors, clients, eurusdPoints, nil, MatchConfig{CopyDonorMagic: true})
	assert.Empty(t, matches)
}

func TestMatchPositions_TimeProximityOrders(t *testing.T) {
	// Same signals except open-time gap: the near-in-time client wins.
	donors := []DonorPosition{donorPos(1, "EURUSD", Buy, 1.10000, matchBase, nil)}
	clients := []ClientPosition{
		clientPos(10, "EURUSD", Buy, 1.10000, matchBase.Add(2*time.Hour), 777),
		clientPos(11, "EURUSD", Buy, 1.10000, matchBase.Add(10*time.Second), 777),
	}

	matches := MatchPositions(donors, clients, eurusdPoints, nil, MatchConfig{})
	require.Len(t, matches, 1)
	assert.Equal(t, int64(11), matches[0].ClientTicket)
}

func TestMatchPositions_DayOldScoresBelowFresh(t *testing.T) {
	donors := []DonorPosition{donorPos(1, "EURUSD", Buy, 1.10000, matchBase, nil)}
	fresh := MatchPositions(donors,
		[]ClientPosition{clientPos(10, "EURUSD", Buy, 1.10000, matchBase.Add(30*time.Second), 777)},
		eurusdPoints, nil, MatchConfig{})
	stale := MatchPositions(donors,
		[]ClientPosition{clientPos(10, "EURUSD", Buy, 1.10000, matchBase.Add(26*time.Hour), 777)},
		eurusdPoints, nil, MatchConfig{})
	require.Len(t, fresh, 1)
	require.Len(t, stale, 1)
	assert.Greater(t, fresh[0].Score, stale[0].Score)
}

func TestMatchPositions_SavedPairBonus(t *testing.T) {
	donors := []DonorPosition{donorPos(1, "EURUSD", Buy, 1.10000, matchBase, nil)}
	clients := []ClientPosition{
		clientPos(10, "EURUSD", Buy, 1.10000, matchBase, 777),
		clientPos(11, "EURUSD", Buy, 1.10000, matchBase, 777),
	}

	matches := MatchPositions(donors, clients, eurusdPoints, map[int64]int64{1: 11}, MatchConfig{})
	require.Len(t, matches, 1)
	assert.Equal(t, int64(11), matches[0].ClientTicket)
}

func TestMatchPositions_GreedyConsumesTickets(t *testing.T) {
	donors := []DonorPosition{
		donorPos(1, "EURUSD", Buy, 1.10000, matchBase, nil),
		donorPos(2, "EURUSD", Buy, 1.10000, matchBase.Add(time.Second), nil),
	}
	clients := []ClientPosition{
		clientPos(10, "EURUSD", Buy, 1.10000, matchBase, 777),
		clientPos(11, "EURUSD", Buy, 1.10000, matchBase.Add(time.Second), 777),
	}

	matches := MatchPositions(donors, clients, eurusdPoints, nil, MatchConfig{})
	require.Len(t, matches, 2)
	seen := map[int64]bool{}
	for _, m := range matches {
		assert.False(t, seen[m.ClientTicket], "client ticket %d paired twice", m.ClientTicket)
		seen[m.ClientTicket] = true
	}
}

func TestMatchPositions_FarPriceRejected(t *testing.T) {
	// Price difference way past the tolerance drags the score below the
	// acceptance threshold.
	donors := []DonorPosition{donorPos(1, "EURUSD", Buy, 1.10000, matchBase, nil)}
	clients := []ClientPosition{clientPos(10, "EURUSD", Buy, 1.14000, matchBase.Add(26*time.Hour), 777)}
	assert.Empty(t, MatchPositions(donors, clients, eurusdPoints, nil, MatchConfig{}))
}

func TestMatchOrders_PairsByKindPriceAndTime(t *testing.T) {
	donors := []DonorPendingOrder{{
		Ticket: 5, Symbol: "EURUSD", Kind: BuyLimit, Volume: 0.10,
		Price: 1.09990, TimeSetup: matchBase, SourceID: "alpha",
	}}
	clients := []ClientPendingOrder{
		{Ticket: 50, Symbol: "EURUSD", Kind: SellLimit, Price: 1.09990, TimeSetup: matchBase},
		{Ticket: 51, Symbol: "EURUSD", Kind: BuyLimit, Price: 1.09991, TimeSetup: matchBase.Add(time.Minute)},
	}

	matches := MatchOrders(donors, clients, eurusdPoints)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(51), matches[0].ClientTicket)
}

func TestMatchOrders_TooOldRejected(t *testing.T) {
	donors := []DonorPendingOrder{{
		Ticket: 5, Symbol: "EURUSD", Kind: BuyLimit, Price: 1.09990, TimeSetup: matchBase,
	}}
	clients := []ClientPendingOrder{
		{Ticket: 50, Symbol: "EURUSD", Kind: BuyLimit, Price: 1.09990, TimeSetup: matchBase.Add(2 * time.Hour)},
	}
	assert.Empty(t, MatchOrders(donors, clients, eurusdPoints))
}
