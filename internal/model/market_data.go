package model

import (
	"time"

	"main/internal/model/enum"
)

// Tick is a single trade print for one scrip. Consumed once by the
// signal engine and never stored.
type Tick struct {
	ScripID string
	Price   float64
	Volume  float64
	Time    time.Time
}

// OptionQuote is one row of an option chain snapshot. Snapshots are
// replaced wholesale each cycle and never mutated.
type OptionQuote struct {
	ScripID   string
	Type      enum.OptionType
	Strike    float64
	LastPrice float64
	Volume    float64
}

// OptionChain is the full set of quotes for one expiry, read-only per
// cycle.
type OptionChain []OptionQuote
