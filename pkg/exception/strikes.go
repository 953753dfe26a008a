package exception

import "errors"

var (
	ErrStrikeEmptyChain       = errors.New("strikes: empty option chain")
	ErrStrikeNoATM            = errors.New("strikes: atm option not found")
	ErrStrikeNoCandidate      = errors.New("strikes: no eligible strike")
	ErrStrikeInvalidStructure = errors.New("strikes: long leg not beyond short leg")
	ErrStrikeUnknownRegime    = errors.New("strikes: unknown volatility regime")
)
