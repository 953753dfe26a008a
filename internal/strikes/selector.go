package strikes

import (
	"math"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/pricing"
	"main/pkg/exception"
)

const yearSeconds = 365 * 24 * 3600

// Config holds the pricing inputs the selector needs.
type Config struct {
	RiskFreeRate float64
	DefaultVol   float64
	Targets      TargetTable
}

// Selector picks the four condor legs from an option chain snapshot.
type Selector struct {
	cfg Config
}

// NewSelector creates a selector. Zero targets fall back to the default
// regime table.
func NewSelector(cfg Config) *Selector {
	if cfg.Targets.isZero() {
		cfg.Targets = DefaultTargets()
	}
	return &Selector{cfg: cfg}
}

// Select picks the ATM pair plus short/long call and put legs matching
// the regime's target deltas. The long leg must sit strictly further
// out-of-the-money than the short leg; the result satisfies
// longCall > shortCall > atm > shortPut > longPut.
func (s *Selector) Select(chain model.OptionChain, spot float64, now, expiry time.Time, regime enum.Regime) (model.StrikeSet, error) {
	if len(chain) == 0 {
		return model.StrikeSet{}, exception.ErrStrikeEmptyChain
	}
	targets, err := s.cfg.Targets.Lookup(regime)
	if err != nil {
		return model.StrikeSet{}, err
	}

	atm := atmStrike(chain, spot)
	set := model.StrikeSet{ATMStrike: atm}

	foundCall, foundPut := false, false
	for _, q := range chain {
		if q.Strike != atm {
			continue
		}
		switch q.Type {
		case enum.OptionTypeCall:
			set.ATMCall = q
			foundCall = true
		case enum.OptionTypePut:
			set.ATMPut = q
			foundPut = true
		}
	}
	if !foundCall || !foundPut {
		return model.StrikeSet{}, errors.Wrapf(exception.ErrStrikeNoATM, "strike: %v", atm)
	}

	yearsToExpiry := expiry.Sub(now).Seconds() / yearSeconds

	set.ShortCall, err = s.pick(chain, enum.OptionTypeCall, spot, yearsToExpiry, targets.Short, func(strike float64) bool {
		return strike > atm
	})
	if err != nil {
		return model.StrikeSet{}, errors.Wrap(err, "short call")
	}
	set.LongCall, err = s.pick(chain, enum.OptionTypeCall, spot, yearsToExpiry, targets.Long, func(strike float64) bool {
		return strike > set.ShortCall.Strike
	})
	if err != nil {
		return model.StrikeSet{}, errors.Wrap(err, "long call")
	}

	set.ShortPut, err = s.pick(chain, enum.OptionTypePut, spot, yearsToExpiry, targets.Short, func(strike float64) bool {
		return strike < atm
	})
	if err != nil {
		return model.StrikeSet{}, errors.Wrap(err, "short put")
	}
	set.LongPut, err = s.pick(chain, enum.OptionTypePut, spot, yearsToExpiry, targets.Long, func(strike float64) bool {
		return strike < set.ShortPut.Strike
	})
	if err != nil {
		return model.StrikeSet{}, errors.Wrap(err, "long put")
	}

	if !set.Validate() {
		return model.StrikeSet{}, exception.ErrStrikeInvalidStructure
	}
	return set, nil
}

// pick returns the eligible quote whose |delta| is closest to target.
func (s *Selector) pick(chain model.OptionChain, optType enum.OptionType, spot, yearsToExpiry, target float64, eligible func(strike float64) bool) (model.OptionQuote, error) {
	var best model.OptionQuote
	bestDiff := math.Inf(1)
	found := false

	for _, q := range chain {
		if q.Type != optType || !eligible(q.Strike) {
			continue
		}
		delta, err := pricing.Delta(optType, spot, q.Strike, yearsToExpiry, s.cfg.RiskFreeRate, s.cfg.DefaultVol)
		if err != nil {
			return model.OptionQuote{}, err
		}
		if diff := math.Abs(delta - target); diff < bestDiff {
			bestDiff = diff
			best = q
			found = true
		}
	}
	if !found {
		return model.OptionQuote{}, exception.ErrStrikeNoCandidate
	}
	return best, nil
}

// atmStrike returns the chain strike nearest the spot, lower strike on
// ties.
func atmStrike(chain model.OptionChain, spot float64) float64 {
	best := chain[0].Strike
	bestDiff := math.Abs(best - spot)
	for _, q := range chain[1:] {
		diff := math.Abs(q.Strike - spot)
		if diff < bestDiff || (diff == bestDiff && q.Strike < best) {
			best = q.Strike
			bestDiff = diff
		}
	}
	return best
}
