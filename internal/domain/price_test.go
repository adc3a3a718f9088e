package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Quotes from the EURUSD examples: 5 digits, point 0.00001.
const (
	testDigits = 5
	testPoint  = 0.00001
)

func TestPointSize(t *testing.T) {
	assert.InDelta(t, 0.00001, PointSize(5), 1e-12)
	assert.InDelta(t, 0.001, PointSize(3), 1e-12)
	assert.InDelta(t, 0.01, PointSize(2), 1e-12)
}

func TestLimitPrice_BuyCappedAtOriginal(t *testing.T) {
	// Market above the donor fill: the price must stop at the original.
	price := LimitPrice(BuyLimit, 1.10025, 1.10000, 2*testPoint, testDigits)
	assert.InDelta(t, 1.10000, price, 1e-9)
}

func TestLimitPrice_BuyBelowOriginal(t *testing.T) {
	// Market dipped under the donor fill: offset from the ask wins.
	price := LimitPrice(BuyLimit, 1.09980, 1.10000, 2*testPoint, testDigits)
	assert.InDelta(t, 1.09978, price, 1e-9)
}

func TestLimitPrice_SellCappedAtOriginal(t *testing.T) {
	price := LimitPrice(SellLimit, 1.09975, 1.10000, 2*testPoint, testDigits)
	assert.InDelta(t, 1.10000, price, 1e-9)
}

func TestLimitPrice_SellAboveOriginal(t *testing.T) {
	price := LimitPrice(SellLimit, 1.10020, 1.10000, 2*testPoint, testDigits)
	assert.InDelta(t, 1.10022, price, 1e-9)
}

func TestLimitPrice_MonotoneInOffset(t *testing.T) {
	// A wider offset never produces a price worse for the client.
	for _, kind := range []OrderKind{BuyLimit, SellLimit} {
		prev := LimitPrice(kind, 1.10025, 1.10000, 0, testDigits)
		for points := 1; points <= 50; points++ {
			p := LimitPrice(kind, 1.10025, 1.10000, float64(points)*testPoint, testDigits)
			if kind == BuyLimit {
				assert.LessOrEqual(t, p, prev+1e-9, "buy offset %d", points)
			} else {
				assert.GreaterOrEqual(t, p, prev-1e-9, "sell offset %d", points)
			}
			prev = p
		}
	}
}

func TestLimitPrice_AlwaysDominates(t *testing.T) {
	for points := 0; points <= 30; points++ {
		offset := float64(points) * testPoint
		buy := LimitPrice(BuyLimit, 1.10025, 1.10000, offset, testDigits)
		assert.True(t, Dominance(buy, 1.10000, BuyLimit, testPoint))
		sell := LimitPrice(SellLimit, 1.09980, 1.10000, offset, testDigits)
		assert.True(t, Dominance(sell, 1.10000, SellLimit, testPoint))
	}
}

func TestDominance_Reflexive(t *testing.T) {
	for _, p := range []float64{0.5, 1.10000, 150.25, 1941.07} {
		assert.True(t, Dominance(p, p, BuyLimit, testPoint))
		assert.True(t, Dominance(p, p, SellLimit, testPoint))
	}
}

func TestDominance_Buy(t *testing.T) {
	assert.True(t, Dominance(1.09990, 1.10000, BuyLimit, testPoint))
	// within a tenth of a point over the original
	assert.True(t, Dominance(1.10000+0.05*testPoint, 1.10000, BuyLimit, testPoint))
	assert.False(t, Dominance(1.10001, 1.10000, BuyLimit, testPoint))
}

func TestDominance_Sell(t *testing.T) {
	assert.True(t, Dominance(1.10010, 1.10000, SellLimit, testPoint))
	assert.False(t, Dominance(1.09999, 1.10000, SellLimit, testPoint))
}

func TestRoundToDigits(t *testing.T) {
	assert.InDelta(t, 1.10001, RoundToDigits(1.1000050001, 5), 1e-12)
	assert.InDelta(t, 1941.07, RoundToDigits(1941.0749, 2), 1e-9)
}
