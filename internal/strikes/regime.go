package strikes

import (
	"main/internal/model/enum"
	"main/pkg/exception"
)

// Targets is a (short, long) delta-target pair for one regime.
type Targets struct {
	Short float64
	Long  float64
}

// TargetTable maps each volatility regime to its delta targets. The
// mapping is a pure lookup with no hidden state. Higher-vol regimes use
// larger short deltas to collect more premium while staying
// defined-risk.
type TargetTable struct {
	Low    Targets
	Medium Targets
	High   Targets
}

// DefaultTargets returns the adaptive regime table.
func DefaultTargets() TargetTable {
	return TargetTable{
		Low:    Targets{Short: 0.25, Long: 0.10},
		Medium: Targets{Short: 0.30, Long: 0.12},
		High:   Targets{Short: 0.35, Long: 0.15},
	}
}

// Lookup resolves the targets for a regime.
func (t TargetTable) Lookup(regime enum.Regime) (Targets, error) {
	switch regime {
	case enum.RegimeLow:
		return t.Low, nil
	case enum.RegimeMedium:
		return t.Medium, nil
	case enum.RegimeHigh:
		return t.High, nil
	default:
		return Targets{}, exception.ErrStrikeUnknownRegime
	}
}

func (t TargetTable) isZero() bool {
	return t == TargetTable{}
}

// Thresholds classify annualized volatility into a regime.
type Thresholds struct {
	Low  float64
	High float64
}

// RegimeFromVol maps an annualized volatility to its regime.
func (t Thresholds) RegimeFromVol(sigma float64) enum.Regime {
	switch {
	case sigma < t.Low:
		return enum.RegimeLow
	case sigma >= t.High:
		return enum.RegimeHigh
	default:
		return enum.RegimeMedium
	}
}
