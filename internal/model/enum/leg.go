package enum

// Leg identifies one of the four condor legs. The spread structure is
// closed: new legs are never added without redesigning the strategy.
type Leg uint8

const (
	_leg_beg Leg = iota
	LegShortCall
	LegLongCall
	LegShortPut
	LegLongPut
	_leg_end
)

// EntryOrder returns legs in entry sequence: protection is bought before
// short risk is sold, bounding naked exposure during partial fills.
func EntryOrder() []Leg {
	return []Leg{LegLongCall, LegLongPut, LegShortCall, LegShortPut}
}

// ExitOrder returns legs in exit sequence: shorts are bought back before
// the protective longs are sold.
func ExitOrder() []Leg {
	return []Leg{LegShortCall, LegShortPut, LegLongCall, LegLongPut}
}

func (l Leg) IsAvailable() bool {
	return l > _leg_beg && l < _leg_end
}

// IsShort reports whether the leg is sold on entry.
func (l Leg) IsShort() bool {
	return l == LegShortCall || l == LegShortPut
}

// OptionType returns the option type the leg trades.
func (l Leg) OptionType() OptionType {
	switch l {
	case LegShortCall, LegLongCall:
		return OptionTypeCall
	case LegShortPut, LegLongPut:
		return OptionTypePut
	default:
		return OptionType(0)
	}
}

func (l Leg) String() string {
	switch l {
	case LegShortCall:
		return "SHORT_CALL"
	case LegLongCall:
		return "LONG_CALL"
	case LegShortPut:
		return "SHORT_PUT"
	case LegLongPut:
		return "LONG_PUT"
	default:
		return "UNKNOWN"
	}
}
