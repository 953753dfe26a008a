package exception

import "errors"

var (
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
)
