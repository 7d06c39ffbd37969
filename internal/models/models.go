package models

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

const HashLength = 32

var (
	ErrInvalidHashLength    = errors.New("invalid hash length")
	ErrInvalidAddressLength = errors.New("invalid address length")
	ErrInvalidSignature     = errors.New("invalid transaction signature")
)

// HashValue is a 32-byte digest.
type HashValue [HashLength]byte

// HashValueFromSlice copies a 32-byte slice into a HashValue.
func HashValueFromSlice(b []byte) (HashValue, error) {
	var h HashValue
	if len(b) != HashLength {
		return h, fmt.Errorf("%w: got %d bytes", ErrInvalidHashLength, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// ParseHashValue parses a hex string, with or without the 0x prefix.
func ParseHashValue(s string) (HashValue, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return HashValue{}, fmt.Errorf("failed to decode hash: %w", err)
	}
	return HashValueFromSlice(b)
}

func (h HashValue) String() string {
	return hex.EncodeToString(h[:])
}

func (h HashValue) IsZero() bool {
	return h == HashValue{}
}

func (h HashValue) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *HashValue) UnmarshalText(text []byte) error {
	parsed, err := ParseHashValue(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Sha3 returns the SHA3-256 digest of the concatenated inputs.
func Sha3(parts ...[]byte) HashValue {
	hasher := sha3.New256()
	for _, p := range parts {
		hasher.Write(p)
	}
	var h HashValue
	copy(h[:], hasher.Sum(nil))
	return h
}

// AccountAddress identifies a transaction sender.
type AccountAddress [32]byte

// ParseAccountAddress parses a hex literal such as 0x1 or a full 64 character address.
func ParseAccountAddress(s string) (AccountAddress, error) {
	var addr AccountAddress
	s = strings.TrimPrefix(s, "0x")
	if len(s) > 64 {
		return addr, fmt.Errorf("%w: %d hex characters", ErrInvalidAddressLength, len(s))
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return addr, fmt.Errorf("failed to decode address: %w", err)
	}
	copy(addr[32-len(b):], b)
	return addr, nil
}

// AccountAddressFromPublicKey derives the account address owned by an ed25519 key.
func AccountAddressFromPublicKey(pub ed25519.PublicKey) AccountAddress {
	return AccountAddress(Sha3(pub, []byte{0x00}))
}

func (a AccountAddress) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a AccountAddress) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AccountAddress) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// SignedTransaction is a client-signed user transaction. It is the unit submitted to the
// mempool and the unit written to DA.
type SignedTransaction struct {
	Sender                  AccountAddress `json:"sender"`
	SequenceNumber          uint64         `json:"sequence_number"`
	Payload                 []byte         `json:"payload"`
	MaxGasAmount            uint64         `json:"max_gas_amount"`
	GasUnitPrice            uint64         `json:"gas_unit_price"`
	ExpirationTimestampSecs uint64         `json:"expiration_timestamp_secs"`
	ChainID                 uint8          `json:"chain_id"`
	PublicKey               []byte         `json:"public_key"`
	Signature               []byte         `json:"signature"`
}

// SigningMessage returns the bytes covered by the signature.
func (tx *SignedTransaction) SigningMessage() []byte {
	buf := make([]byte, 0, 32+8*4+1+len(tx.Payload))
	buf = append(buf, tx.Sender[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, tx.SequenceNumber)
	buf = binary.LittleEndian.AppendUint64(buf, tx.MaxGasAmount)
	buf = binary.LittleEndian.AppendUint64(buf, tx.GasUnitPrice)
	buf = binary.LittleEndian.AppendUint64(buf, tx.ExpirationTimestampSecs)
	buf = append(buf, tx.ChainID)
	buf = append(buf, tx.Payload...)
	return buf
}

// Sign fills the public key and signature fields.
func (tx *SignedTransaction) Sign(key ed25519.PrivateKey) {
	tx.PublicKey = key.Public().(ed25519.PublicKey)
	tx.Signature = ed25519.Sign(key, tx.SigningMessage())
}

// Verify checks the signature against the embedded public key and sender.
func (tx *SignedTransaction) Verify() error {
	if len(tx.PublicKey) != ed25519.PublicKeySize || len(tx.Signature) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}
	if AccountAddressFromPublicKey(tx.PublicKey) != tx.Sender {
		return fmt.Errorf("%w: sender does not match public key", ErrInvalidSignature)
	}
	if !ed25519.Verify(tx.PublicKey, tx.SigningMessage(), tx.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// Hash identifies the transaction; it commits to the signature as well as the signed fields.
func (tx *SignedTransaction) Hash() HashValue {
	return Sha3(tx.SigningMessage(), tx.PublicKey, tx.Signature)
}

// Transaction is an opaque DA-level transaction: the encoded bytes of a SignedTransaction.
type Transaction struct {
	Data []byte `json:"data"`
}

func (t Transaction) ID() HashValue {
	return Sha3(t.Data)
}

// Weight is the bin-packing weight of the transaction inside a block.
func (t Transaction) Weight() int {
	return len(t.Data) + HashLength
}

// Block is an ordered set of transactions sequenced by the DA layer.
type Block struct {
	ID           HashValue     `json:"id"`
	Parent       HashValue     `json:"parent"`
	Transactions []Transaction `json:"transactions"`
}

// NewBlock builds a block and derives its id from the parent and the transaction ids.
func NewBlock(parent HashValue, transactions []Transaction) *Block {
	parts := make([][]byte, 0, len(transactions)+1)
	parts = append(parts, parent[:])
	for _, t := range transactions {
		id := t.ID()
		parts = append(parts, id[:])
	}
	return &Block{
		ID:           Sha3(parts...),
		Parent:       parent,
		Transactions: transactions,
	}
}

// Weight is the sum of the transaction weights plus the id and parent.
func (b *Block) Weight() int {
	weight := 2 * HashLength
	for _, t := range b.Transactions {
		weight += t.Weight()
	}
	return weight
}

// SignatureVerifiedTransaction tags a user transaction with its verification outcome.
type SignatureVerifiedTransaction struct {
	Valid           bool
	UserTransaction *SignedTransaction
}

// ExecutableTransactions holds the transactions of a block; only the unsharded form exists.
type ExecutableTransactions struct {
	Unsharded []SignatureVerifiedTransaction
}

func (e ExecutableTransactions) Len() int {
	return len(e.Unsharded)
}

// ExecutableBlock is consumed once by the executor and yields a commitment.
type ExecutableBlock struct {
	BlockHash    HashValue
	Transactions ExecutableTransactions
}

func NewExecutableBlock(blockHash HashValue, transactions ExecutableTransactions) ExecutableBlock {
	return ExecutableBlock{BlockHash: blockHash, Transactions: transactions}
}

// BlockCommitment proves that the block at Height was executed to the given digest.
type BlockCommitment struct {
	Height     uint64    `json:"height"`
	BlockID    HashValue `json:"block_id"`
	Commitment HashValue `json:"commitment"`
}

func (c BlockCommitment) String() string {
	return fmt.Sprintf("BlockCommitment{height: %d, block_id: %s, commitment: %s}", c.Height, c.BlockID, c.Commitment)
}

// ExecutedBlock is what the node records once a block has been executed.
type ExecutedBlock struct {
	Height       uint64    `json:"height"`
	BlockID      HashValue `json:"block_id"`
	BlockHash    HashValue `json:"block_hash"`
	Transactions int       `json:"transactions"`
	Commitment   HashValue `json:"commitment"`
}
