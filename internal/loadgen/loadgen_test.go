package loadgen

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movementlabsxyz/suzuka/internal/api"
	"github.com/movementlabsxyz/suzuka/internal/codec"
	"github.com/movementlabsxyz/suzuka/internal/mempool"
	"github.com/movementlabsxyz/suzuka/internal/models"
)

// boundedSubmitter accepts up to capacity transactions and reports a full mempool afterwards.
type boundedSubmitter struct {
	mu       sync.Mutex
	capacity int
	txs      map[models.HashValue]*models.SignedTransaction
	head     uint64
}

func (b *boundedSubmitter) SubmitTransaction(_ context.Context, tx *models.SignedTransaction) (mempool.Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.txs) >= b.capacity {
		return mempool.NewStatus(mempool.MempoolIsFull), nil
	}
	b.txs[tx.Hash()] = tx
	return mempool.NewStatus(mempool.Accepted), nil
}

func (b *boundedSubmitter) GetTransactionByHash(_ context.Context, hash models.HashValue) (*models.SignedTransaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.txs[hash], nil
}

func (b *boundedSubmitter) BlockHeadHeight(context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head++
	return b.head, nil
}

func newNode(t *testing.T, capacity int) (*boundedSubmitter, string) {
	t.Helper()
	sub := &boundedSubmitter{capacity: capacity, txs: map[models.HashValue]*models.SignedTransaction{}}
	srv := httptest.NewServer(api.New(api.Config{}, sub, sub, nil).Handler())
	t.Cleanup(srv.Close)
	return sub, srv.URL
}

func TestRun(t *testing.T) {
	for _, format := range []codec.Format{codec.FormatBinary, codec.FormatZstd, codec.FormatJSON} {
		t.Run(format.String(), func(t *testing.T) {
			sub, url := newNode(t, 7)
			g := New(Config{URL: url, Count: 10, MaxConcurrency: 3, Codec: codec.New(format)})

			res, err := g.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, uint64(7), res.Accepted)
			assert.Equal(t, map[mempool.StatusCode]uint64{mempool.MempoolIsFull: 3}, res.Rejected)
			assert.Len(t, sub.txs, 7)
		})
	}
}

func TestSubmit(t *testing.T) {
	sub, url := newNode(t, 1)
	g := New(Config{URL: url})

	tx, err := NewTransaction(4, time.Now().Add(time.Minute), []byte("payload"))
	require.NoError(t, err)
	require.NoError(t, tx.Verify())

	resp, err := g.Submit(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, mempool.Accepted, resp.Status)
	assert.Equal(t, tx.Hash(), resp.Hash)
	assert.Contains(t, sub.txs, tx.Hash())
}

func TestSubmitInvalidSignature(t *testing.T) {
	_, url := newNode(t, 1)
	g := New(Config{URL: url, MaxRetries: 1})

	tx, err := NewTransaction(4, time.Now().Add(time.Minute), nil)
	require.NoError(t, err)
	tx.Signature[0] ^= 0xff

	_, err = g.Submit(context.Background(), tx)
	assert.ErrorContains(t, err, "400")
}

func TestFollow(t *testing.T) {
	_, url := newNode(t, 1)
	g := New(Config{URL: url})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var heights []uint64
	err := g.Follow(ctx, 5*time.Millisecond, func(h uint64) {
		heights = append(heights, h)
		if len(heights) == 3 {
			cancel()
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, heights)
}
