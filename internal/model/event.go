package model

// EventType categorizes journal events. The session history is
// reconstructable from the event stream alone.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventSystemStart
	EventDataUpdate
	EventEntrySignal
	EventStateTransition
	EventOrderPlaced
	EventOrderFailed
	EventPartialEntry
	EventExitSignal
	EventExitRetryPending
	EventRiskTrigger
	EventEmergencyFault
	EventSessionEnd
	eventTypeEnd
)

// EventTypeCount is the number of defined event types, used for
// fixed-size counter arrays.
const EventTypeCount = int(eventTypeEnd)

func (t EventType) String() string {
	switch t {
	case EventSystemStart:
		return "SYSTEM_START"
	case EventDataUpdate:
		return "DATA_UPDATE"
	case EventEntrySignal:
		return "ENTRY_SIGNAL"
	case EventStateTransition:
		return "STATE_TRANSITION"
	case EventOrderPlaced:
		return "ORDER_PLACED"
	case EventOrderFailed:
		return "ORDER_FAILED"
	case EventPartialEntry:
		return "PARTIAL_ENTRY_FAILURE"
	case EventExitSignal:
		return "EXIT_SIGNAL"
	case EventExitRetryPending:
		return "EXIT_RETRY_PENDING"
	case EventRiskTrigger:
		return "RISK_TRIGGER"
	case EventEmergencyFault:
		return "EMERGENCY_FAULT"
	case EventSessionEnd:
		return "SESSION_END"
	default:
		return "UNKNOWN"
	}
}

// Event is one append-only journal record.
type Event struct {
	Seq     uint64    `json:"seq"`
	TsNano  int64     `json:"ts"`
	Type    EventType `json:"type"`
	Details string    `json:"details"`
	OrderID string    `json:"orderId,omitempty"`
}
