package bridge

import "fmt"

// Side selects which of the two bridge contracts an event or call refers to.
type Side uint8

const (
	SideInitiator Side = iota + 1
	SideCounterparty
)

func (s Side) String() string {
	switch s {
	case SideInitiator:
		return "initiator"
	case SideCounterparty:
		return "counterparty"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

type EventKind string

const (
	EventInitiated             EventKind = "initiated"
	EventInitiatorCompleted    EventKind = "initiator_completed"
	EventRefunded              EventKind = "refunded"
	EventLocked                EventKind = "locked"
	EventCounterpartyCompleted EventKind = "counterparty_completed"
	EventAborted               EventKind = "aborted"
)

// Side reports which contract emits events of this kind.
func (k EventKind) Side() Side {
	switch k {
	case EventInitiated, EventInitiatorCompleted, EventRefunded:
		return SideInitiator
	default:
		return SideCounterparty
	}
}

// Event is a contract event as read from one chain endpoint. Only ID is guaranteed for the
// completed, refunded and aborted kinds; Secret is set on completions.
type Event struct {
	Sequence uint64
	Kind     EventKind
	Details  BridgeTransferDetails
	Secret   HashLockPreImage
}

// EventKey identifies an event independently of the endpoint it was read from.
type EventKey struct {
	Kind EventKind
	ID   BridgeTransferID
}

func (e Event) Key() EventKey {
	return EventKey{Kind: e.Kind, ID: e.Details.ID}
}

func (e Event) LockDetails() LockDetails {
	return CompletedFromTransfer(e.Details, nil).LockDetails
}

func (e Event) CompletedDetails() CounterpartyCompletedDetails {
	return CompletedFromTransfer(e.Details, e.Secret)
}

func (e Event) String() string {
	return fmt.Sprintf("%s(%s)", e.Kind, e.Details.ID)
}
