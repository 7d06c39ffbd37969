package movement

import (
	"fmt"
	"strings"

	"github.com/movementlabsxyz/suzuka/internal/bridge"
)

const (
	InitiatorModule    = "atomic_bridge_initiator"
	CounterpartyModule = "atomic_bridge_counterparty"

	DefaultURL           = "http://127.0.0.1:8080"
	DefaultModuleAddress = "0xcafe"

	TypeUserTransaction    = "user_transaction"
	TypePendingTransaction = "pending_transaction"
)

// Entry and view function names shared by both modules unless noted.
const (
	FnInitiateBridgeTransfer = "initiate_bridge_transfer" // initiator only
	FnCompleteBridgeTransfer = "complete_bridge_transfer"
	FnRefundBridgeTransfer   = "refund_bridge_transfer" // initiator only
	FnLockBridgeTransfer     = "lock_bridge_transfer"   // counterparty only
	FnAbortBridgeTransfer    = "abort_bridge_transfer"  // counterparty only
	FnSetTimeLockDuration    = "set_time_lock_duration"
	FnGetTimeLockDuration    = "get_time_lock_duration"
	FnBridgeTransfers        = "bridge_transfers"
)

// DetailsLength is the number of values returned by the bridge_transfers view.
const DetailsLength = 6

type EntryFunctionRequest struct {
	Sender        string   `json:"sender"`
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	// Arguments are BCS encoded, hex with a 0x prefix.
	Arguments []string `json:"arguments"`
}

type PendingTransaction struct {
	Hash string `json:"hash"`
}

type Transaction struct {
	Type     string        `json:"type"`
	Hash     string        `json:"hash"`
	Version  string        `json:"version,omitempty"`
	Success  bool          `json:"success"`
	VMStatus string        `json:"vm_status"`
	Events   []EventRecord `json:"events,omitempty"`
}

type ViewRequest struct {
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []string `json:"arguments"`
}

type LedgerInfo struct {
	ChainID       uint8  `json:"chain_id"`
	BlockHeight   string `json:"block_height"`
	LedgerVersion string `json:"ledger_version"`
}

type EventRecord struct {
	SequenceNumber string    `json:"sequence_number"`
	Type           string    `json:"type"`
	Data           EventData `json:"data"`
}

// EventData carries every field any bridge event may set; u64 values are decimal strings.
type EventData struct {
	BridgeTransferID string `json:"bridge_transfer_id"`
	Initiator        string `json:"initiator,omitempty"`
	Recipient        string `json:"recipient,omitempty"`
	Amount           string `json:"amount,omitempty"`
	HashLock         string `json:"hash_lock,omitempty"`
	TimeLock         string `json:"time_lock,omitempty"`
	PreImage         string `json:"pre_image,omitempty"`
}

type ErrorResponse struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
}

// Error codes returned by the REST API.
const (
	ErrorCodeNotFound     = "not_found"
	ErrorCodeInvalidInput = "invalid_input"
	ErrorCodeVMError      = "vm_error"
)

func FunctionID(moduleAddress, module, fn string) string {
	return fmt.Sprintf("%s::%s::%s", moduleAddress, module, fn)
}

// SplitFunctionID is the inverse of FunctionID.
func SplitFunctionID(id string) (moduleAddress, module, fn string, err error) {
	parts := strings.Split(id, "::")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("malformed function id %q", id)
	}
	return parts[0], parts[1], parts[2], nil
}

func ModuleFor(side bridge.Side) string {
	if side == bridge.SideInitiator {
		return InitiatorModule
	}
	return CounterpartyModule
}

var eventNames = map[bridge.EventKind]string{
	bridge.EventInitiated:             "BridgeTransferInitiatedEvent",
	bridge.EventInitiatorCompleted:    "BridgeTransferCompletedEvent",
	bridge.EventRefunded:              "BridgeTransferRefundedEvent",
	bridge.EventLocked:                "BridgeTransferLockedEvent",
	bridge.EventCounterpartyCompleted: "BridgeTransferCompletedEvent",
	bridge.EventAborted:               "BridgeTransferAbortedEvent",
}

// EventType is the fully qualified Move type of an event kind.
func EventType(moduleAddress string, kind bridge.EventKind) string {
	return FunctionID(moduleAddress, ModuleFor(kind.Side()), eventNames[kind])
}

// EventKindOf maps a fully qualified event type back to its kind.
func EventKindOf(eventType string) (bridge.EventKind, bool) {
	_, module, name, err := SplitFunctionID(eventType)
	if err != nil {
		return "", false
	}
	for kind, n := range eventNames {
		if n == name && ModuleFor(kind.Side()) == module {
			return kind, true
		}
	}
	return "", false
}
