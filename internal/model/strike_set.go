package model

import "main/internal/model/enum"

// StrikeSet references the four condor legs plus the ATM pair inside one
// option chain snapshot. Immutable once selected; the basis for all four
// order legs of a position.
type StrikeSet struct {
	ATMStrike float64
	ATMCall   OptionQuote
	ATMPut    OptionQuote
	ShortCall OptionQuote
	LongCall  OptionQuote
	ShortPut  OptionQuote
	LongPut   OptionQuote
}

// Quote returns the chain entry backing the given leg.
func (s StrikeSet) Quote(leg enum.Leg) OptionQuote {
	switch leg {
	case enum.LegShortCall:
		return s.ShortCall
	case enum.LegLongCall:
		return s.LongCall
	case enum.LegShortPut:
		return s.ShortPut
	case enum.LegLongPut:
		return s.LongPut
	default:
		return OptionQuote{}
	}
}

// Straddle returns the combined ATM call+put price at selection time.
func (s StrikeSet) Straddle() float64 {
	return s.ATMCall.LastPrice + s.ATMPut.LastPrice
}

// Validate checks the defined-risk ordering invariant:
// longCall > shortCall > atm > shortPut > longPut.
func (s StrikeSet) Validate() bool {
	return s.LongCall.Strike > s.ShortCall.Strike &&
		s.ShortCall.Strike > s.ATMStrike &&
		s.ATMStrike > s.ShortPut.Strike &&
		s.ShortPut.Strike > s.LongPut.Strike
}
