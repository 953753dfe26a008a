package exception

import "errors"

var (
	ErrExecutionExhausted      = errors.New("execution: order placement retries exhausted")
	ErrExecutionRejected       = errors.New("execution: order rejected by broker")
	ErrExecutionEmptyOrderID   = errors.New("execution: broker returned empty order id")
	ErrExecutionInvalidRequest = errors.New("execution: invalid order request")
)
