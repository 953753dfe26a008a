package exception

import "errors"

var (
	ErrPositionInvalidTransition = errors.New("position: invalid state transition")
	ErrPositionPartialEntry      = errors.New("position: partial entry failure")
	ErrPositionExitRetryPending  = errors.New("position: exit retry pending")
	ErrPositionNotOpen           = errors.New("position: no open position")
)
