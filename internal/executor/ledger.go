package executor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru"

	"github.com/movementlabsxyz/suzuka/internal/models"
)

const DefaultCacheSize = 1024

var (
	headKey          = []byte("head")
	commitmentPrefix = []byte("commitment/")
	blockPrefix      = []byte("block/")
	accountPrefix    = []byte("account/")
)

type LedgerConfig struct {
	// Dir is the badger directory; empty keeps state in memory.
	Dir       string
	CacheSize int
}

// Ledger executes blocks by applying in-order, correctly signed transactions to per-account
// sequence numbers and chaining a SHA3 commitment over every block.
type Ledger struct {
	db *badger.DB
	// block hash -> height of recently executed blocks
	executed *lru.Cache
	// serialises ExecuteBlock so head and commitment chain stay consistent
	mu sync.Mutex
}

var _ Executor = (*Ledger)(nil)

func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	opts := badger.DefaultOptions(cfg.Dir).WithLogger(badgerLogger{})
	if cfg.Dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger at %q: %w", cfg.Dir, err)
	}
	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create executed block cache: %w", err)
	}
	return &Ledger{db: db, executed: cache}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) BlockHeadHeight(_ context.Context) (uint64, error) {
	var head uint64
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		head, err = getUint64(txn, headKey)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read head height: %w", err)
	}
	return head, nil
}

func (l *Ledger) ExecuteBlock(ctx context.Context, mode FinalityMode, block models.ExecutableBlock) (models.BlockCommitment, error) {
	if mode != Opt && mode != Fin {
		return models.BlockCommitment{}, fmt.Errorf("%w: %d", ErrUnknownFinalityMode, mode)
	}
	if err := ctx.Err(); err != nil {
		return models.BlockCommitment{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if height, ok := l.executed.Get(block.BlockHash); ok {
		return models.BlockCommitment{}, fmt.Errorf("%w: %s at height %d", ErrBlockReplay, block.BlockHash, height)
	}

	var commitment models.BlockCommitment
	err := l.db.Update(func(txn *badger.Txn) error {
		if height, err := getUint64(txn, blockKey(block.BlockHash)); err != nil {
			return err
		} else if height != 0 {
			return fmt.Errorf("%w: %s at height %d", ErrBlockReplay, block.BlockHash, height)
		}

		head, err := getUint64(txn, headKey)
		if err != nil {
			return err
		}
		var prev models.HashValue
		if head > 0 {
			c, err := getCommitment(txn, head)
			if err != nil {
				return err
			}
			prev = c.Commitment
		}

		applied, err := applyTransactions(txn, block)
		if err != nil {
			return err
		}

		height := head + 1
		parts := make([][]byte, 0, len(applied)+3)
		parts = append(parts, prev[:], block.BlockHash[:], binary.BigEndian.AppendUint64(nil, height))
		for _, h := range applied {
			parts = append(parts, h[:])
		}
		commitment = models.BlockCommitment{
			Height:     height,
			BlockID:    block.BlockHash,
			Commitment: models.Sha3(parts...),
		}

		if err := txn.Set(headKey, binary.BigEndian.AppendUint64(nil, height)); err != nil {
			return err
		}
		if err := txn.Set(commitmentKey(height), encodeCommitment(commitment)); err != nil {
			return err
		}
		return txn.Set(blockKey(block.BlockHash), binary.BigEndian.AppendUint64(nil, height))
	})
	if err != nil {
		return models.BlockCommitment{}, err
	}

	l.executed.Add(block.BlockHash, commitment.Height)
	slog.Debug("Executed block", "height", commitment.Height, "hash", block.BlockHash, "mode", mode, "commitment", commitment.Commitment)
	return commitment, nil
}

// applyTransactions advances account sequence numbers and returns the hashes of applied transactions.
func applyTransactions(txn *badger.Txn, block models.ExecutableBlock) ([]models.HashValue, error) {
	var applied []models.HashValue
	for _, vt := range block.Transactions.Unsharded {
		tx := vt.UserTransaction
		if !vt.Valid || tx == nil {
			continue
		}
		if err := tx.Verify(); err != nil {
			slog.Debug("Discarding transaction", "sender", tx.Sender, "sequence_number", tx.SequenceNumber, "error", err)
			continue
		}
		key := accountKey(tx.Sender)
		next, err := getUint64(txn, key)
		if err != nil {
			return nil, err
		}
		if tx.SequenceNumber != next {
			slog.Debug("Discarding out of order transaction", "sender", tx.Sender, "sequence_number", tx.SequenceNumber, "expected", next)
			continue
		}
		if err := txn.Set(key, binary.BigEndian.AppendUint64(nil, next+1)); err != nil {
			return nil, err
		}
		applied = append(applied, tx.Hash())
	}
	return applied, nil
}

// Commitment returns the commitment recorded at height.
func (l *Ledger) Commitment(_ context.Context, height uint64) (models.BlockCommitment, error) {
	var c models.BlockCommitment
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		c, err = getCommitment(txn, height)
		return err
	})
	return c, err
}

// SequenceNumber returns the next sequence number the account must use.
func (l *Ledger) SequenceNumber(_ context.Context, addr models.AccountAddress) (uint64, error) {
	var seq uint64
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		seq, err = getUint64(txn, accountKey(addr))
		return err
	})
	return seq, err
}

func commitmentKey(height uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, commitmentPrefix...), height)
}

func blockKey(hash models.HashValue) []byte {
	return append(append([]byte{}, blockPrefix...), hash[:]...)
}

func accountKey(addr models.AccountAddress) []byte {
	return append(append([]byte{}, accountPrefix...), addr[:]...)
}

// getUint64 reads a big-endian counter; a missing key reads as 0.
func getUint64(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("corrupt counter at %q: %d bytes", key, len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}

func encodeCommitment(c models.BlockCommitment) []byte {
	buf := binary.BigEndian.AppendUint64(make([]byte, 0, 8+2*models.HashLength), c.Height)
	buf = append(buf, c.BlockID[:]...)
	return append(buf, c.Commitment[:]...)
}

func getCommitment(txn *badger.Txn, height uint64) (models.BlockCommitment, error) {
	item, err := txn.Get(commitmentKey(height))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.BlockCommitment{}, fmt.Errorf("%w at height %d", ErrCommitmentNotFound, height)
	}
	if err != nil {
		return models.BlockCommitment{}, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return models.BlockCommitment{}, err
	}
	if len(v) != 8+2*models.HashLength {
		return models.BlockCommitment{}, fmt.Errorf("corrupt commitment at height %d", height)
	}
	c := models.BlockCommitment{Height: binary.BigEndian.Uint64(v[:8])}
	copy(c.BlockID[:], v[8:8+models.HashLength])
	copy(c.Commitment[:], v[8+models.HashLength:])
	return c, nil
}

// badgerLogger routes badger's printf-style logging through slog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (badgerLogger) Warningf(format string, args ...any) {
	slog.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (badgerLogger) Infof(format string, args ...any) {
	slog.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (badgerLogger) Debugf(format string, args ...any) {
	slog.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
