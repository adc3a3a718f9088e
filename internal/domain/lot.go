package domain

import (
	"fmt"
	"math"
)

// LotMode selects how the client lot is derived from the donor lot.
type LotMode string

const (
	LotFixed      LotMode = "fixed"      // constant lot, Value is the lot
	LotProportion LotMode = "proportion" // donor lot scaled by Value
	LotAutolot    LotMode = "autolot"    // donor lot scaled by balance ratio
)

// Valid reports whether the mode is one of the recognized sizing rules.
func (m LotMode) Valid() bool {
	switch m {
	case LotFixed, LotProportion, LotAutolot:
		return true
	}
	return false
}

// LotConfig is the sizing policy for copied trades.
type LotConfig struct {
	Mode   LotMode
	Value  float64
	MinLot float64
	MaxLot float64
}

// VolumeConstraints are the broker's volume limits for a symbol.
type VolumeConstraints struct {
	Min  float64
	Max  float64
	Step float64
}

// CalculateLot derives the client lot for a copied trade. The result is
// clamped into the policy's [MinLot, MaxLot], then into the broker's volume
// limits, and rounded down to the broker's volume step.
func CalculateLot(donorLot float64, cfg LotConfig, donorBalance, clientBalance float64, vc VolumeConstraints) (float64, error) {
	var lot float64
	switch cfg.Mode {
	case LotFixed:
		lot = cfg.Value
	case LotProportion:
		lot = donorLot * cfg.Value
	case LotAutolot:
		if donorBalance <= 0 {
			return 0, fmt.Errorf("domain.CalculateLot: autolot needs a positive donor balance, got %v", donorBalance)
		}
		lot = donorLot * clientBalance / donorBalance
	default:
		return 0, fmt.Errorf("domain.CalculateLot: unknown lot mode %q", cfg.Mode)
	}

	if cfg.MinLot > 0 && lot < cfg.MinLot {
		lot = cfg.MinLot
	}
	if cfg.MaxLot > 0 && lot > cfg.MaxLot {
		lot = cfg.MaxLot
	}
	if vc.Min > 0 && lot < vc.Min {
		lot = vc.Min
	}
	if vc.Max > 0 && lot > vc.Max {
		lot = vc.Max
	}
	if vc.Step > 0 {
		lot = math.Floor(lot/vc.Step+1e-9) * vc.Step
		// flooring can undershoot the broker minimum by one step
		if vc.Min > 0 && lot < vc.Min {
			lot = vc.Min
		}
	}
	if lot <= 0 {
		return 0, fmt.Errorf("domain.CalculateLot: computed lot %v is not tradable", lot)
	}
	return lot, nil
}
