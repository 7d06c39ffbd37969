package bridge

import (
	"errors"
	"fmt"
)

type ErrorKind uint8

const (
	SerializationError ErrorKind = iota + 1
	CallError
	FunctionViewError
	InvalidResponseLength
	LockTransferError
	CompleteTransferError
	AbortTransferError
	InitiateTransferError
	RefundTransferError
	ConversionError
)

var errorKindNames = map[ErrorKind]string{
	SerializationError:    "serialization error",
	CallError:             "call error",
	FunctionViewError:     "function view error",
	InvalidResponseLength: "invalid response length",
	LockTransferError:     "failed to lock bridge transfer",
	CompleteTransferError: "failed to complete bridge transfer",
	AbortTransferError:    "failed to abort bridge transfer",
	InitiateTransferError: "failed to initiate bridge transfer",
	RefundTransferError:   "failed to refund bridge transfer",
	ConversionError:       "invalid amount conversion",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// InitiatorError is returned by every Initiator operation.
type InitiatorError struct {
	Kind ErrorKind
	Err  error
}

func NewInitiatorError(kind ErrorKind, err error) *InitiatorError {
	return &InitiatorError{Kind: kind, Err: err}
}

func (e *InitiatorError) Error() string {
	if e.Err == nil {
		return "bridge initiator: " + e.Kind.String()
	}
	return fmt.Sprintf("bridge initiator: %s: %v", e.Kind, e.Err)
}

func (e *InitiatorError) Unwrap() error { return e.Err }

// CounterpartyError is returned by every Counterparty operation.
type CounterpartyError struct {
	Kind ErrorKind
	Err  error
}

func NewCounterpartyError(kind ErrorKind, err error) *CounterpartyError {
	return &CounterpartyError{Kind: kind, Err: err}
}

func (e *CounterpartyError) Error() string {
	if e.Err == nil {
		return "bridge counterparty: " + e.Kind.String()
	}
	return fmt.Sprintf("bridge counterparty: %s: %v", e.Kind, e.Err)
}

func (e *CounterpartyError) Unwrap() error { return e.Err }

// KindOf returns the kind carried by an initiator or counterparty error anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var ie *InitiatorError
	if errors.As(err, &ie) {
		return ie.Kind, true
	}
	var ce *CounterpartyError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}
