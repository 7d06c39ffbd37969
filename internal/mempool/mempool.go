package mempool

import (
	"bytes"
	"log/slog"
	"time"

	"github.com/google/btree"

	"github.com/movementlabsxyz/suzuka/internal/models"
	"github.com/movementlabsxyz/suzuka/internal/utils"
)

const btreeDegree = 32

// Config sizes the core mempool.
type Config struct {
	Capacity        int
	CapacityPerUser int
	TTL             time.Duration
}

func DefaultConfig() Config {
	return Config{
		Capacity:        1_000_000,
		CapacityPerUser: 100,
		TTL:             600 * time.Second,
	}
}

type entry struct {
	tx              *models.SignedTransaction
	hash            models.HashValue
	rankingScore    uint64
	timeline        TimelineState
	clientSubmitted bool
	insertedAt      time.Time
}

func entryLess(a, b *entry) bool {
	if c := bytes.Compare(a.tx.Sender[:], b.tx.Sender[:]); c != 0 {
		return c < 0
	}
	return a.tx.SequenceNumber < b.tx.SequenceNumber
}

// CoreMempool stores admitted transactions ordered by (sender, sequence number).
// It is owned by the transaction pipe and is not safe for concurrent use.
type CoreMempool struct {
	cfg     Config
	clock   *utils.Clock
	ordered *btree.BTreeG[*entry]
	byHash  map[models.HashValue]*entry
	perUser map[models.AccountAddress]int
}

func New(cfg Config, clock *utils.Clock) *CoreMempool {
	if clock == nil {
		clock = &utils.Clock{}
	}
	return &CoreMempool{
		cfg:     cfg,
		clock:   clock,
		ordered: btree.NewG[*entry](btreeDegree, entryLess),
		byHash:  make(map[models.HashValue]*entry),
		perUser: make(map[models.AccountAddress]int),
	}
}

// AddTxn admits tx. dbSequenceNumber is the sender's committed sequence number; transactions below
// it are too old. Re-adding an identical transaction is accepted without changing the pool.
func (m *CoreMempool) AddTxn(
	tx *models.SignedTransaction,
	rankingScore uint64,
	dbSequenceNumber uint64,
	timeline TimelineState,
	clientSubmitted bool,
) Status {
	if tx.SequenceNumber < dbSequenceNumber {
		return NewStatus(SequenceNumberTooOld).WithMessage("transaction sequence number is %d, current sequence number is %d", tx.SequenceNumber, dbSequenceNumber)
	}

	candidate := &entry{
		tx:              tx,
		hash:            tx.Hash(),
		rankingScore:    rankingScore,
		timeline:        timeline,
		clientSubmitted: clientSubmitted,
		insertedAt:      m.clock.Time(),
	}

	if existing, ok := m.ordered.Get(candidate); ok {
		if existing.hash == candidate.hash {
			return NewStatus(Accepted)
		}
		if candidate.tx.GasUnitPrice > existing.tx.GasUnitPrice {
			m.remove(existing)
		} else {
			return NewStatus(InvalidUpdate).WithMessage("transaction already in mempool with a different payload")
		}
	}

	if m.ordered.Len() >= m.cfg.Capacity {
		return NewStatus(MempoolIsFull).WithMessage("mempool size: %d, capacity: %d", m.ordered.Len(), m.cfg.Capacity)
	}
	if m.cfg.CapacityPerUser > 0 && m.perUser[tx.Sender] >= m.cfg.CapacityPerUser {
		return NewStatus(TooManyTransactions).WithMessage("sender %s has %d transactions in mempool", tx.Sender, m.perUser[tx.Sender])
	}

	m.ordered.ReplaceOrInsert(candidate)
	m.byHash[candidate.hash] = candidate
	m.perUser[tx.Sender]++
	return NewStatus(Accepted)
}

// GetByHash returns the transaction with the given hash, or nil.
func (m *CoreMempool) GetByHash(hash models.HashValue) *models.SignedTransaction {
	if e, ok := m.byHash[hash]; ok {
		return e.tx
	}
	return nil
}

// GC evicts transactions that outlived the mempool TTL or their own expiration time.
func (m *CoreMempool) GC() int {
	now := m.clock.Time()
	nowSecs := m.clock.Unix()
	var expired []*entry
	m.ordered.Ascend(func(e *entry) bool {
		if now.Sub(e.insertedAt) > m.cfg.TTL ||
			(e.tx.ExpirationTimestampSecs != 0 && e.tx.ExpirationTimestampSecs < nowSecs) {
			expired = append(expired, e)
		}
		return true
	})
	for _, e := range expired {
		m.remove(e)
	}
	if len(expired) > 0 {
		slog.Debug("Mempool garbage collected", "evicted", len(expired), "remaining", m.ordered.Len())
	}
	return len(expired)
}

func (m *CoreMempool) Len() int {
	return m.ordered.Len()
}

func (m *CoreMempool) remove(e *entry) {
	m.ordered.Delete(e)
	delete(m.byHash, e.hash)
	if m.perUser[e.tx.Sender] <= 1 {
		delete(m.perUser, e.tx.Sender)
	} else {
		m.perUser[e.tx.Sender]--
	}
}
