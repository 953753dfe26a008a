package enum

// Regime classifies the current volatility environment. The strike
// selector maps each regime to a pair of target deltas.
type Regime uint8

const (
	_regime_beg Regime = iota
	RegimeLow
	RegimeMedium
	RegimeHigh
	_regime_end
)

func (r Regime) IsAvailable() bool {
	return r > _regime_beg && r < _regime_end
}

func (r Regime) String() string {
	switch r {
	case RegimeLow:
		return "LOW"
	case RegimeMedium:
		return "MEDIUM"
	case RegimeHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}
