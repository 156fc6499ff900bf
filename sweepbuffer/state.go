package sweepbuffer

import "fmt"

type State uint8

const (
	Idle State = iota
	SendingOutgoing
	AwaitingDelayedIncoming
	AwaitingOrdinaryIncoming
	SendingOrdinaryOutgoing
	Draining
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case SendingOutgoing:
		return "SendingOutgoing"
	case AwaitingDelayedIncoming:
		return "AwaitingDelayedIncoming"
	case AwaitingOrdinaryIncoming:
		return "AwaitingOrdinaryIncoming"
	case SendingOrdinaryOutgoing:
		return "SendingOrdinaryOutgoing"
	case Draining:
		return "Draining"
	case Done:
		return "Done"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// StateError is returned when a buffer operation is called out of order.
type StateError struct {
	Op   string
	Have State
	Want State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s called in state %s, want %s", e.Op, e.Have, e.Want)
}
