package mempool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movementlabsxyz/suzuka/internal/models"
	"github.com/movementlabsxyz/suzuka/internal/utils"
)

func tx(sender byte, seq uint64, payload string) *models.SignedTransaction {
	return &models.SignedTransaction{
		Sender:         models.AccountAddress{sender},
		SequenceNumber: seq,
		Payload:        []byte(payload),
		GasUnitPrice:   1,
	}
}

func TestAddTxnStatuses(t *testing.T) {
	pool := New(Config{Capacity: 3, CapacityPerUser: 2, TTL: time.Minute}, nil)

	assert.Equal(t, Accepted, pool.AddTxn(tx(1, 1, "a"), 0, 1, NonQualified, true).Code)
	assert.Equal(t, Accepted, pool.AddTxn(tx(1, 1, "a"), 0, 1, NonQualified, true).Code, "identical resubmission")
	assert.Equal(t, InvalidUpdate, pool.AddTxn(tx(1, 1, "b"), 0, 1, NonQualified, true).Code)
	assert.Equal(t, SequenceNumberTooOld, pool.AddTxn(tx(1, 0, "a"), 0, 1, NonQualified, true).Code)

	assert.Equal(t, Accepted, pool.AddTxn(tx(1, 2, "a"), 0, 0, NonQualified, true).Code)
	assert.Equal(t, TooManyTransactions, pool.AddTxn(tx(1, 3, "a"), 0, 0, NonQualified, true).Code)

	assert.Equal(t, Accepted, pool.AddTxn(tx(2, 1, "a"), 0, 0, NonQualified, true).Code)
	status := pool.AddTxn(tx(3, 1, "a"), 0, 0, NonQualified, true)
	assert.Equal(t, MempoolIsFull, status.Code)
	assert.Contains(t, status.String(), "capacity: 3")
	assert.Equal(t, 3, pool.Len())
}

func TestHigherGasPriceReplaces(t *testing.T) {
	pool := New(DefaultConfig(), nil)
	first := tx(1, 5, "first")
	require.Equal(t, Accepted, pool.AddTxn(first, 0, 0, NonQualified, true).Code)

	second := tx(1, 5, "second")
	second.GasUnitPrice = 10
	require.Equal(t, Accepted, pool.AddTxn(second, 0, 0, NonQualified, true).Code)

	assert.Nil(t, pool.GetByHash(first.Hash()))
	assert.Equal(t, second, pool.GetByHash(second.Hash()))
	assert.Equal(t, 1, pool.Len())
}

func TestGC(t *testing.T) {
	clock := &utils.Clock{}
	clock.Set(time.Unix(1_700_000_000, 0))
	pool := New(Config{Capacity: 10, TTL: time.Minute}, clock)

	stale := tx(1, 1, "stale")
	require.Equal(t, Accepted, pool.AddTxn(stale, 0, 0, NonQualified, true).Code)

	clock.Advance(30 * time.Second)
	fresh := tx(2, 1, "fresh")
	require.Equal(t, Accepted, pool.AddTxn(fresh, 0, 0, NonQualified, true).Code)
	expiring := tx(3, 1, "expiring")
	expiring.ExpirationTimestampSecs = 1_700_000_040
	require.Equal(t, Accepted, pool.AddTxn(expiring, 0, 0, NonQualified, true).Code)

	clock.Advance(31 * time.Second)
	assert.Equal(t, 2, pool.GC())
	assert.Equal(t, 1, pool.Len())
	assert.NotNil(t, pool.GetByHash(fresh.Hash()))
	assert.Nil(t, pool.GetByHash(stale.Hash()))
	assert.Nil(t, pool.GetByHash(expiring.Hash()))
}

func TestStatusCodeText(t *testing.T) {
	b, err := MempoolIsFull.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "MempoolIsFull", string(b))
	assert.Equal(t, "UnknownStatus", StatusCode(99).String())

	var code StatusCode
	require.NoError(t, code.UnmarshalText(b))
	assert.Equal(t, MempoolIsFull, code)
	require.NoError(t, code.UnmarshalText([]byte("Bogus")))
	assert.Equal(t, UnknownStatus, code)
}
