// Package fsm defines the lifecycle of one speech chunk.
package fsm

import "fmt"

type State string

type Event string

const (
	StateSpeaking State = "speaking"
	StateAwaiting State = "awaiting"
	StateReady    State = "ready"
	StateExecuted State = "executed"
	StateReverted State = "reverted"
)

const (
	EventEndpoint Event = "endpoint"
	EventFinal    Event = "final"
	EventExecute  Event = "execute"
	EventRevert   Event = "revert"
)

func Transition(current State, event Event) (State, error) {
	switch current {
	case StateSpeaking:
		switch event {
		case EventEndpoint:
			return StateAwaiting, nil
		case EventFinal:
			return StateReady, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAwaiting:
		switch event {
		case EventFinal:
			return StateReady, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateReady:
		switch event {
		case EventFinal:
			return StateReady, nil
		case EventExecute:
			return StateExecuted, nil
		case EventRevert:
			return StateReverted, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateExecuted:
		switch event {
		case EventRevert:
			return StateReverted, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateReverted:
		switch event {
		case EventEndpoint:
			return StateReverted, nil
		case EventFinal:
			return StateReverted, nil
		case EventExecute:
			return StateExecuted, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
