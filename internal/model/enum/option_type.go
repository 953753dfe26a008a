package enum

type OptionType uint8

const (
	_option_type_beg OptionType = iota
	OptionTypeCall
	OptionTypePut
	_option_type_end
)

func (t OptionType) IsAvailable() bool {
	return t > _option_type_beg && t < _option_type_end
}

func (t OptionType) String() string {
	switch t {
	case OptionTypeCall:
		return "CALL"
	case OptionTypePut:
		return "PUT"
	default:
		return "UNKNOWN"
	}
}
