package enum

type OrderSide uint8

const (
	_order_side_beg OrderSide = iota
	OrderSideBuy
	OrderSideSell
	_order_side_end
)

func (s OrderSide) IsAvailable() bool {
	return s > _order_side_beg && s < _order_side_end
}

// Reverse returns the opposite side, used when unwinding or closing legs.
func (s OrderSide) Reverse() OrderSide {
	switch s {
	case OrderSideBuy:
		return OrderSideSell
	case OrderSideSell:
		return OrderSideBuy
	default:
		return s
	}
}

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "BUY"
	case OrderSideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

type OrderStyle uint8

const (
	_order_style_beg OrderStyle = iota
	OrderStyleMarket
	OrderStyleLimit
	_order_style_end
)

func (s OrderStyle) IsAvailable() bool {
	return s > _order_style_beg && s < _order_style_end
}

func (s OrderStyle) String() string {
	switch s {
	case OrderStyleMarket:
		return "MKT"
	case OrderStyleLimit:
		return "LMT"
	default:
		return "UNKNOWN"
	}
}
