// Package bridge holds the chain-independent side of the atomic swap bridge: transfer types,
// the initiator and counterparty capabilities, and the event monitor.
package bridge

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

const hashLength = 32

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

func parseHash32(s string) ([hashLength]byte, error) {
	var h [hashLength]byte
	b, err := decodeHex(s)
	if err != nil {
		return h, err
	}
	if len(b) != hashLength {
		return h, fmt.Errorf("expected %d bytes, got %d", hashLength, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// BridgeTransferID identifies a transfer on both chains. The initiator chain derives it, the
// counterparty reuses it.
type BridgeTransferID [hashLength]byte

func ParseBridgeTransferID(s string) (BridgeTransferID, error) {
	h, err := parseHash32(s)
	if err != nil {
		return BridgeTransferID{}, fmt.Errorf("invalid bridge transfer id %q: %w", s, err)
	}
	return BridgeTransferID(h), nil
}

func (id BridgeTransferID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

func (id BridgeTransferID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *BridgeTransferID) UnmarshalText(text []byte) error {
	parsed, err := ParseBridgeTransferID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

type HashLock [hashLength]byte

func ParseHashLock(s string) (HashLock, error) {
	h, err := parseHash32(s)
	if err != nil {
		return HashLock{}, fmt.Errorf("invalid hash lock %q: %w", s, err)
	}
	return HashLock(h), nil
}

// HashLockFromPreImage is the Keccak-256 digest used by both bridge chains.
func HashLockFromPreImage(p HashLockPreImage) HashLock {
	var h HashLock
	d := sha3.NewLegacyKeccak256()
	d.Write(p)
	d.Sum(h[:0])
	return h
}

func (h HashLock) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h HashLock) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *HashLock) UnmarshalText(text []byte) error {
	parsed, err := ParseHashLock(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HashLockPreImage is the secret revealed to complete a transfer.
type HashLockPreImage []byte

// RandomPreImage returns 32 random bytes.
func RandomPreImage() (HashLockPreImage, error) {
	p := make(HashLockPreImage, hashLength)
	if _, err := rand.Read(p); err != nil {
		return nil, fmt.Errorf("failed to generate pre-image: %w", err)
	}
	return p, nil
}

func ParsePreImage(s string) (HashLockPreImage, error) {
	b, err := decodeHex(s)
	if err != nil {
		return nil, fmt.Errorf("invalid pre-image %q: %w", s, err)
	}
	return b, nil
}

func (p HashLockPreImage) String() string {
	return "0x" + hex.EncodeToString(p)
}

// TimeLock is a block height on the chain that holds the lock.
type TimeLock uint64

// Address is a chain-specific account address in its raw byte form.
type Address []byte

func ParseAddress(s string) (Address, error) {
	b, err := decodeHex(s)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return b, nil
}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a)
}

type AssetKind uint8

const (
	AssetEthAndWeth AssetKind = iota + 1
	AssetMoveth
)

func (k AssetKind) String() string {
	switch k {
	case AssetEthAndWeth:
		return "EthAndWeth"
	case AssetMoveth:
		return "Moveth"
	default:
		return fmt.Sprintf("AssetKind(%d)", uint8(k))
	}
}

// Amount is either an (eth, weth) pair on the EVM side or a MovETH value on the Move side.
type Amount struct {
	kind   AssetKind
	eth    uint64
	weth   uint64
	moveth uint64
}

func EthAndWeth(eth, weth uint64) Amount {
	return Amount{kind: AssetEthAndWeth, eth: eth, weth: weth}
}

func Moveth(v uint64) Amount {
	return Amount{kind: AssetMoveth, moveth: v}
}

func (a Amount) Kind() AssetKind { return a.kind }

func (a Amount) Eth() uint64 { return a.eth }

func (a Amount) Weth() uint64 { return a.weth }

func (a Amount) Moveth() uint64 { return a.moveth }

// Value is the total regardless of variant. ok is false when eth + weth does not fit in a u64.
func (a Amount) Value() (v uint64, ok bool) {
	total := a.ToUint256()
	return total.Uint64(), total.IsUint64()
}

// Add sums componentwise. Adding across variants leaves a unchanged.
func (a Amount) Add(b Amount) Amount {
	if a.kind != b.kind {
		return a
	}
	switch a.kind {
	case AssetEthAndWeth:
		a.eth += b.eth
		a.weth += b.weth
	case AssetMoveth:
		a.moveth += b.moveth
	}
	return a
}

func (a Amount) ToUint256() *uint256.Int {
	if a.kind == AssetEthAndWeth {
		return new(uint256.Int).Add(uint256.NewInt(a.eth), uint256.NewInt(a.weth))
	}
	return uint256.NewInt(a.moveth)
}

// MovethFromUint256 keeps the lower 64 bits as a MovETH amount.
func MovethFromUint256(v *uint256.Int) Amount {
	return Moveth(v.Uint64())
}

func (a Amount) String() string {
	if a.kind == AssetEthAndWeth {
		return fmt.Sprintf("EthAndWeth(%d, %d)", a.eth, a.weth)
	}
	return fmt.Sprintf("Moveth(%d)", a.moveth)
}

type TransferState uint8

const (
	StateInitialized TransferState = iota + 1
	StateCompleted
	StateRefunded
	StateAborted
	// StateLocked is the pending state of a counterparty transfer.
	StateLocked
)

// TransferStateFromUint decodes the state field of on-chain transfer details.
func TransferStateFromUint(v uint64) (TransferState, error) {
	s := TransferState(v)
	if v == 0 || v > uint64(StateLocked) {
		return 0, fmt.Errorf("unknown transfer state %d", v)
	}
	return s, nil
}

func (s TransferState) String() string {
	switch s {
	case StateInitialized:
		return "Initialized"
	case StateCompleted:
		return "Completed"
	case StateRefunded:
		return "Refunded"
	case StateAborted:
		return "Aborted"
	case StateLocked:
		return "Locked"
	default:
		return fmt.Sprintf("TransferState(%d)", uint8(s))
	}
}

type BridgeTransferDetails struct {
	ID        BridgeTransferID
	Initiator Address
	Recipient Address
	HashLock  HashLock
	TimeLock  TimeLock
	Amount    Amount
	State     TransferState
}

type LockDetails struct {
	ID        BridgeTransferID
	Initiator Address
	Recipient Address
	HashLock  HashLock
	TimeLock  TimeLock
	Amount    Amount
}

type CounterpartyCompletedDetails struct {
	LockDetails
	Secret HashLockPreImage
}

func CompletedFromLock(lock LockDetails, secret HashLockPreImage) CounterpartyCompletedDetails {
	return CounterpartyCompletedDetails{LockDetails: lock, Secret: secret}
}

func CompletedFromTransfer(details BridgeTransferDetails, secret HashLockPreImage) CounterpartyCompletedDetails {
	return CounterpartyCompletedDetails{
		LockDetails: LockDetails{
			ID:        details.ID,
			Initiator: details.Initiator,
			Recipient: details.Recipient,
			HashLock:  details.HashLock,
			TimeLock:  details.TimeLock,
			Amount:    details.Amount,
		},
		Secret: secret,
	}
}
