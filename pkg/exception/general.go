package exception

import "errors"

var (
	ErrEmergencyFault    = errors.New("engine: emergency fault")
	ErrJournalClosed     = errors.New("journal: writer closed")
	ErrJournalNotStarted = errors.New("journal: writer not started")
	ErrJournalQueueFull  = errors.New("journal: queue full")
	ErrBrokerResponse    = errors.New("broker: error response")
	ErrBrokerNoExpiry    = errors.New("broker: no eligible expiry")
)
