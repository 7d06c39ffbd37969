package simchain

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/movementlabsxyz/suzuka/internal/bridge"
	"github.com/movementlabsxyz/suzuka/internal/bridge/bcs"
	"github.com/movementlabsxyz/suzuka/internal/bridge/movement"
	"github.com/movementlabsxyz/suzuka/internal/models"
)

// Abort codes reported in a failed transaction's vm_status.
const (
	EZeroAmount         = "EZERO_AMOUNT"
	ENotExist           = "ENOT_EXIST"
	EExists             = "ETRANSFER_EXISTS"
	ENotInitialized     = "ENOT_INITIALIZED"
	EWrongPreImage      = "EWRONG_PRE_IMAGE"
	ETimeLockNotExpired = "ETIMELOCK_NOT_EXPIRED"
	ENotAdmin           = "ENOT_ADMIN"
	ENotOriginator      = "ENOT_ORIGINATOR"
	EInvalidArguments   = "EINVALID_ARGUMENTS"
	EUnknownFunction    = "EUNKNOWN_FUNCTION"
)

const (
	successVMStatus  = "Executed successfully"
	hashLockLength   = 32
	transferIDLength = 32
)

type abortError struct {
	module string
	code   string
}

func (e *abortError) Error() string {
	return fmt.Sprintf("Move abort in %s: %s", e.module, e.code)
}

type transfer struct {
	initiator []byte
	recipient []byte
	amount    uint64
	hashLock  bridge.HashLock
	timeLock  uint64
	state     bridge.TransferState
}

// contract is one bridge module's storage. A transfer in the open state is still pending.
type contract struct {
	module    string
	duration  uint64
	open      bridge.TransferState
	transfers map[bridge.BridgeTransferID]*transfer
	events    []movement.EventRecord
}

func newContract(module string, duration uint64, open bridge.TransferState) *contract {
	return &contract{
		module:    module,
		duration:  duration,
		open:      open,
		transfers: make(map[bridge.BridgeTransferID]*transfer),
	}
}

func (c *contract) abort(code string) error {
	return &abortError{module: c.module, code: code}
}

func (c *contract) emit(moduleAddress string, kind bridge.EventKind, data movement.EventData) movement.EventRecord {
	rec := movement.EventRecord{
		SequenceNumber: strconv.Itoa(len(c.events)),
		Type:           movement.EventType(moduleAddress, kind),
		Data:           data,
	}
	c.events = append(c.events, rec)
	return rec
}

func (c *contract) pending(id bridge.BridgeTransferID) (*transfer, error) {
	t, ok := c.transfers[id]
	if !ok {
		return nil, c.abort(ENotExist)
	}
	if t.state != c.open {
		return nil, c.abort(ENotInitialized)
	}
	return t, nil
}

func transferData(id bridge.BridgeTransferID, t *transfer) movement.EventData {
	return movement.EventData{
		BridgeTransferID: id.String(),
		Initiator:        bridge.Address(t.initiator).String(),
		Recipient:        bridge.Address(t.recipient).String(),
		Amount:           strconv.FormatUint(t.amount, 10),
		HashLock:         t.hashLock.String(),
		TimeLock:         strconv.FormatUint(t.timeLock, 10),
	}
}

// viewValues renders a transfer the way the bridge_transfers view returns it.
func viewValues(t *transfer) []any {
	return []any{
		bridge.Address(t.initiator).String(),
		bridge.Address(t.recipient).String(),
		strconv.FormatUint(t.amount, 10),
		t.hashLock.String(),
		strconv.FormatUint(t.timeLock, 10),
		uint8(t.state),
	}
}

// call carries a decoded entry function invocation.
type call struct {
	sender models.AccountAddress
	fn     string
	args   [][]byte
}

func (c call) bytesArg(i int) ([]byte, error) {
	if i >= len(c.args) {
		return nil, fmt.Errorf("missing argument %d", i)
	}
	return bcs.DecodeBytes(c.args[i])
}

func (c call) u64Arg(i int) (uint64, error) {
	if i >= len(c.args) {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	return bcs.DecodeU64(c.args[i])
}

func (c call) fixedArg(i, n int) ([]byte, error) {
	b, err := c.bytesArg(i)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		return nil, fmt.Errorf("argument %d: want %d bytes, got %d", i, n, len(b))
	}
	return b, nil
}

// chain holds both modules and the simulated ledger. Callers serialize access.
type chain struct {
	moduleAddress string
	admin         models.AccountAddress
	height        uint64
	nonce         uint64

	initiator    *contract
	counterparty *contract
}

func (ch *chain) contract(module string) (*contract, bool) {
	switch module {
	case movement.InitiatorModule:
		return ch.initiator, true
	case movement.CounterpartyModule:
		return ch.counterparty, true
	default:
		return nil, false
	}
}

// execute applies one entry function and returns the events it emitted.
func (ch *chain) execute(module string, c call) ([]movement.EventRecord, error) {
	ct, ok := ch.contract(module)
	if !ok {
		return nil, &abortError{module: module, code: EUnknownFunction}
	}
	switch {
	case c.fn == movement.FnSetTimeLockDuration:
		return nil, ch.setTimeLockDuration(ct, c)
	case module == movement.InitiatorModule && c.fn == movement.FnInitiateBridgeTransfer:
		return ch.initiate(ct, c)
	case c.fn == movement.FnCompleteBridgeTransfer:
		return ch.complete(ct, c)
	case module == movement.InitiatorModule && c.fn == movement.FnRefundBridgeTransfer:
		return ch.refund(ct, c)
	case module == movement.CounterpartyModule && c.fn == movement.FnLockBridgeTransfer:
		return ch.lock(ct, c)
	case module == movement.CounterpartyModule && c.fn == movement.FnAbortBridgeTransfer:
		return ch.abortTransfer(ct, c)
	default:
		return nil, ct.abort(EUnknownFunction)
	}
}

func (ch *chain) setTimeLockDuration(ct *contract, c call) error {
	if c.sender != ch.admin {
		return ct.abort(ENotAdmin)
	}
	d, err := c.u64Arg(0)
	if err != nil {
		return ct.abort(EInvalidArguments)
	}
	ct.duration = d
	return nil
}

// initiate derives the transfer id from the originator, recipient, hash lock and a nonce.
func (ch *chain) initiate(ct *contract, c call) ([]movement.EventRecord, error) {
	recipient, err := c.bytesArg(0)
	if err != nil {
		return nil, ct.abort(EInvalidArguments)
	}
	hashLock, err := c.fixedArg(1, hashLockLength)
	if err != nil {
		return nil, ct.abort(EInvalidArguments)
	}
	timeLock, err := c.u64Arg(2)
	if err != nil {
		return nil, ct.abort(EInvalidArguments)
	}
	amount, err := c.u64Arg(3)
	if err != nil {
		return nil, ct.abort(EInvalidArguments)
	}
	if amount == 0 {
		return nil, ct.abort(EZeroAmount)
	}
	if timeLock == 0 {
		timeLock = ch.height + ct.duration
	}

	nonce := binary.BigEndian.AppendUint64(nil, ch.nonce)
	ch.nonce++
	id := bridge.BridgeTransferID(bridge.HashLockFromPreImage(bytes.Join([][]byte{c.sender[:], recipient, hashLock, nonce}, nil)))

	t := &transfer{
		initiator: append([]byte(nil), c.sender[:]...),
		recipient: recipient,
		amount:    amount,
		hashLock:  bridge.HashLock(hashLock),
		timeLock:  timeLock,
		state:     bridge.StateInitialized,
	}
	ct.transfers[id] = t
	return []movement.EventRecord{ct.emit(ch.moduleAddress, bridge.EventInitiated, transferData(id, t))}, nil
}

func (ch *chain) complete(ct *contract, c call) ([]movement.EventRecord, error) {
	rawID, err := c.fixedArg(0, transferIDLength)
	if err != nil {
		return nil, ct.abort(EInvalidArguments)
	}
	preImage, err := c.bytesArg(1)
	if err != nil {
		return nil, ct.abort(EInvalidArguments)
	}
	id := bridge.BridgeTransferID(rawID)
	t, err := ct.pending(id)
	if err != nil {
		return nil, err
	}
	if bridge.HashLockFromPreImage(preImage) != t.hashLock {
		return nil, ct.abort(EWrongPreImage)
	}
	t.state = bridge.StateCompleted

	kind := bridge.EventInitiatorCompleted
	if ct == ch.counterparty {
		kind = bridge.EventCounterpartyCompleted
	}
	data := transferData(id, t)
	data.PreImage = bridge.HashLockPreImage(preImage).String()
	return []movement.EventRecord{ct.emit(ch.moduleAddress, kind, data)}, nil
}

func (ch *chain) refund(ct *contract, c call) ([]movement.EventRecord, error) {
	rawID, err := c.fixedArg(0, transferIDLength)
	if err != nil {
		return nil, ct.abort(EInvalidArguments)
	}
	id := bridge.BridgeTransferID(rawID)
	t, err := ct.pending(id)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(t.initiator, c.sender[:]) {
		return nil, ct.abort(ENotOriginator)
	}
	if ch.height <= t.timeLock {
		return nil, ct.abort(ETimeLockNotExpired)
	}
	t.state = bridge.StateRefunded
	return []movement.EventRecord{ct.emit(ch.moduleAddress, bridge.EventRefunded, movement.EventData{BridgeTransferID: id.String()})}, nil
}

// lock mirrors an initiated transfer. Only the bridge operator may lock.
func (ch *chain) lock(ct *contract, c call) ([]movement.EventRecord, error) {
	if c.sender != ch.admin {
		return nil, ct.abort(ENotAdmin)
	}
	initiator, err := c.bytesArg(0)
	if err != nil {
		return nil, ct.abort(EInvalidArguments)
	}
	rawID, err := c.fixedArg(1, transferIDLength)
	if err != nil {
		return nil, ct.abort(EInvalidArguments)
	}
	hashLock, err := c.fixedArg(2, hashLockLength)
	if err != nil {
		return nil, ct.abort(EInvalidArguments)
	}
	recipient, err := c.bytesArg(3)
	if err != nil {
		return nil, ct.abort(EInvalidArguments)
	}
	amount, err := c.u64Arg(4)
	if err != nil {
		return nil, ct.abort(EInvalidArguments)
	}
	if amount == 0 {
		return nil, ct.abort(EZeroAmount)
	}
	id := bridge.BridgeTransferID(rawID)
	if _, ok := ct.transfers[id]; ok {
		return nil, ct.abort(EExists)
	}

	t := &transfer{
		initiator: initiator,
		recipient: recipient,
		amount:    amount,
		hashLock:  bridge.HashLock(hashLock),
		timeLock:  ch.height + ct.duration,
		state:     bridge.StateLocked,
	}
	ct.transfers[id] = t
	return []movement.EventRecord{ct.emit(ch.moduleAddress, bridge.EventLocked, transferData(id, t))}, nil
}

func (ch *chain) abortTransfer(ct *contract, c call) ([]movement.EventRecord, error) {
	if c.sender != ch.admin {
		return nil, ct.abort(ENotAdmin)
	}
	rawID, err := c.fixedArg(0, transferIDLength)
	if err != nil {
		return nil, ct.abort(EInvalidArguments)
	}
	id := bridge.BridgeTransferID(rawID)
	t, err := ct.pending(id)
	if err != nil {
		return nil, err
	}
	if ch.height <= t.timeLock {
		return nil, ct.abort(ETimeLockNotExpired)
	}
	t.state = bridge.StateAborted
	return []movement.EventRecord{ct.emit(ch.moduleAddress, bridge.EventAborted, movement.EventData{BridgeTransferID: id.String()})}, nil
}
