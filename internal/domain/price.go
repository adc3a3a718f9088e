package domain

import "math"

// dominanceEpsilonPoints is the tolerance, in points, allowed past the donor
// price before a limit price counts as worse than the donor's fill.
const dominanceEpsilonPoints = 0.1

// PointSize is the smallest price increment for a symbol quoted with the
// given digit count, one unit of the last digit.
func PointSize(digits int) float64 {
	return math.Pow(10, -float64(digits))
}

// RoundToDigits rounds a price to the symbol's quoted precision.
func RoundToDigits(price float64, digits int) float64 {
	scale := math.Pow(10, float64(digits))
	return math.Round(price*scale) / scale
}

// LimitPrice computes the limit price closest to the market that is still no
// worse than the original (donor) fill. marketRef is the ask for buy limits
// and the bid for sell limits; offset is an absolute price distance. A buy
// is capped at the original from above, a sell from below, so the result
// always dominates the donor's price.
func LimitPrice(kind OrderKind, marketRef, originalPrice, offset float64, digits int) float64 {
	var price float64
	if kind.Direction() == Buy {
		price = marketRef - offset
		if price > originalPrice {
			price = originalPrice
		}
	} else {
		price = marketRef + offset
		if price < originalPrice {
			price = originalPrice
		}
	}
	return RoundToDigits(price, digits)
}

// Dominance reports whether ourPrice is no worse than originalPrice for the
// given order kind, within a tenth of a point of tolerance.
func Dominance(ourPrice, originalPrice float64, kind OrderKind, point float64) bool {
	eps := dominanceEpsilonPoints * point
	if kind.Direction() == Buy {
		return ourPrice <= originalPrice+eps
	}
	return ourPrice >= originalPrice-eps
}
