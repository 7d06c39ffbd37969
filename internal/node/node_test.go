package node

import (
	"context"
	"crypto/ed25519"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/movementlabsxyz/suzuka/internal/codec"
	"github.com/movementlabsxyz/suzuka/internal/da"
	"github.com/movementlabsxyz/suzuka/internal/executor"
	"github.com/movementlabsxyz/suzuka/internal/mempool"
	"github.com/movementlabsxyz/suzuka/internal/models"
	"github.com/movementlabsxyz/suzuka/internal/settlement"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeDA struct {
	mu       sync.Mutex
	writes   []*da.BatchWriteRequest
	writeErr error
	stream   []*da.StreamReadFromHeightResponse
	opened   []uint64
}

func (f *fakeDA) BatchWrite(_ context.Context, req *da.BatchWriteRequest) (*da.BatchWriteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.writes = append(f.writes, req)
	return &da.BatchWriteResponse{}, nil
}

func (f *fakeDA) StreamReadFromHeight(_ context.Context, req *da.StreamReadFromHeightRequest) (da.BlobStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, req.Height)
	return &sliceStream{responses: f.stream}, nil
}

type sliceStream struct {
	responses []*da.StreamReadFromHeightResponse
}

func (s *sliceStream) Recv() (*da.StreamReadFromHeightResponse, error) {
	if len(s.responses) == 0 {
		return nil, io.EOF
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

type fakeExecutor struct {
	mu     sync.Mutex
	head   uint64
	blocks []models.ExecutableBlock
}

func (e *fakeExecutor) BlockHeadHeight(context.Context) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.head, nil
}

func (e *fakeExecutor) ExecuteBlock(_ context.Context, _ executor.FinalityMode, block models.ExecutableBlock) (models.BlockCommitment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, b := range e.blocks {
		if b.BlockHash == block.BlockHash {
			return models.BlockCommitment{}, executor.ErrBlockReplay
		}
	}
	e.head++
	e.blocks = append(e.blocks, block)
	return models.BlockCommitment{Height: e.head, BlockID: block.BlockHash, Commitment: models.Sha3(block.BlockHash[:])}, nil
}

type recordingOutput struct {
	mu        sync.Mutex
	blocks    []*models.ExecutedBlock
	events    []models.BlockCommitmentEvent
	latestErr error
}

func (o *recordingOutput) WriteExecutedBlock(_ context.Context, block *models.ExecutedBlock) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.blocks = append(o.blocks, block)
	return nil
}

func (o *recordingOutput) WriteCommitmentEvent(_ context.Context, event models.BlockCommitmentEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
	return nil
}

func (o *recordingOutput) GetLatestCommitment(context.Context) (*models.BlockCommitment, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.latestErr != nil {
		return nil, o.latestErr
	}
	for i := len(o.events) - 1; i >= 0; i-- {
		if c, ok := o.events[i].Accepted(); ok {
			return &c, nil
		}
	}
	return nil, nil
}

func (o *recordingOutput) Close() error { return nil }

func (o *recordingOutput) snapshot() ([]*models.ExecutedBlock, []models.BlockCommitmentEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*models.ExecutedBlock(nil), o.blocks...), append([]models.BlockCommitmentEvent(nil), o.events...)
}

func signedTransactions(t *testing.T, n int) []*models.SignedTransaction {
	t.Helper()
	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	sender := models.AccountAddressFromPublicKey(key.Public().(ed25519.PublicKey))
	txs := make([]*models.SignedTransaction, n)
	for i := range txs {
		tx := &models.SignedTransaction{
			Sender:                  sender,
			SequenceNumber:          uint64(i),
			Payload:                 []byte("transfer"),
			MaxGasAmount:            1000,
			GasUnitPrice:            1,
			ExpirationTimestampSecs: uint64(time.Now().Add(time.Hour).Unix()),
			ChainID:                 27,
		}
		tx.Sign(key)
		txs[i] = tx
	}
	return txs
}

func newTestNode(t *testing.T, c Components) *PartialNode {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BatchTimeout = 20 * time.Millisecond
	if c.Executor == nil {
		c.Executor = &fakeExecutor{}
	}
	if c.DA == nil {
		c.DA = &fakeDA{}
	}
	if c.Settlement == nil {
		c.Settlement = settlement.NewMockClient()
	}
	if c.Registerer == nil {
		c.Registerer = prometheus.NewRegistry()
	}
	n, err := New(cfg, c)
	require.NoError(t, err)
	return n
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(DefaultConfig(), Components{})
	assert.Error(t, err)
}

func TestTickWriteTransactionsToDA(t *testing.T) {
	t.Run("writes one batch", func(t *testing.T) {
		fake := &fakeDA{}
		n := newTestNode(t, Components{DA: fake})
		for _, tx := range signedTransactions(t, 3) {
			n.transactions <- tx
		}
		n.inFlight.Store(3)

		require.NoError(t, n.TickWriteTransactionsToDA(context.Background()))
		require.Len(t, fake.writes, 1)
		require.Len(t, fake.writes[0].Blobs, 3)
		decoded, err := codec.DecodeTransaction(fake.writes[0].Blobs[2].Data)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), decoded.SequenceNumber)
		assert.Zero(t, n.InFlight())
		assert.Equal(t, float64(1), testutil.ToFloat64(n.metrics.batchesWritten))
	})

	t.Run("skips empty batch", func(t *testing.T) {
		fake := &fakeDA{}
		n := newTestNode(t, Components{DA: fake})
		start := time.Now()
		require.NoError(t, n.TickWriteTransactionsToDA(context.Background()))
		assert.Empty(t, fake.writes)
		assert.GreaterOrEqual(t, time.Since(start), n.cfg.BatchTimeout)
	})

	t.Run("failed write loses the batch", func(t *testing.T) {
		fake := &fakeDA{writeErr: errors.New("light node unavailable")}
		n := newTestNode(t, Components{DA: fake})
		for _, tx := range signedTransactions(t, 2) {
			n.transactions <- tx
		}
		n.inFlight.Store(2)

		err := n.TickWriteTransactionsToDA(context.Background())
		assert.ErrorContains(t, err, "light node unavailable")
		assert.Zero(t, n.InFlight())
		assert.Empty(t, n.transactions)
	})

	t.Run("cancelled", func(t *testing.T) {
		n := newTestNode(t, Components{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, n.TickWriteTransactionsToDA(ctx), context.Canceled)
	})
}

func blockResponse(t *testing.T, height uint64, parent models.HashValue, txs []*models.SignedTransaction) (*da.StreamReadFromHeightResponse, *models.Block) {
	t.Helper()
	c := codec.New(codec.FormatBinary)
	var inner []models.Transaction
	for _, tx := range txs {
		data, err := c.EncodeTransaction(tx)
		require.NoError(t, err)
		inner = append(inner, models.Transaction{Data: data})
	}
	block := models.NewBlock(parent, inner)
	data, err := c.EncodeBlock(block)
	require.NoError(t, err)
	return &da.StreamReadFromHeightResponse{Blob: &da.BlobResponse{
		Type: da.SequencedBlobBlock,
		Blob: &da.Blob{BlobID: block.ID.String(), Data: data, Height: height},
	}}, block
}

func TestReadBlocksFromDA(t *testing.T) {
	txs := signedTransactions(t, 3)
	first, block1 := blockResponse(t, 1, models.HashValue{}, txs[:2])
	second, block2 := blockResponse(t, 2, block1.ID, txs[2:])

	fake := &fakeDA{stream: []*da.StreamReadFromHeightResponse{first, second, first}}
	exec := &fakeExecutor{}
	out := &recordingOutput{}
	n := newTestNode(t, Components{DA: fake, Executor: exec, Output: out})

	require.NoError(t, n.ReadBlocksFromDA(context.Background()))
	assert.Equal(t, []uint64{0}, fake.opened)

	blocks, _ := out.snapshot()
	require.Len(t, blocks, 2)
	assert.Equal(t, block1.ID, blocks[0].BlockID)
	assert.Equal(t, 2, blocks[0].Transactions)
	assert.Equal(t, block2.ID, blocks[1].BlockID)
	assert.Equal(t, uint64(2), blocks[1].Height)
	assert.Equal(t, float64(1), testutil.ToFloat64(n.metrics.replaysSkipped))

	require.Len(t, exec.blocks, 2)
	assert.True(t, exec.blocks[0].Transactions.Unsharded[0].Valid)
	assert.Equal(t, txs[1].Hash(), exec.blocks[0].Transactions.Unsharded[1].UserTransaction.Hash())
}

func TestReadBlocksFromDARejectsMalformedBlobs(t *testing.T) {
	tests := []struct {
		name    string
		resp    *da.StreamReadFromHeightResponse
		wantErr error
		wantMsg string
	}{
		{
			name:    "no blob response",
			resp:    &da.StreamReadFromHeightResponse{},
			wantErr: ErrMissingBlob,
		},
		{
			name: "intent",
			resp: &da.StreamReadFromHeightResponse{Blob: &da.BlobResponse{
				Type: da.SequencedBlobIntent,
				Blob: &da.Blob{Data: []byte{1}},
			}},
			wantErr: ErrInvalidBlobType,
		},
		{
			name:    "block without blob",
			resp:    &da.StreamReadFromHeightResponse{Blob: &da.BlobResponse{Type: da.SequencedBlobBlock}},
			wantErr: ErrMissingBlob,
		},
		{
			name: "undecodable block",
			resp: &da.StreamReadFromHeightResponse{Blob: &da.BlobResponse{
				Type: da.SequencedBlobBlock,
				Blob: &da.Blob{Data: []byte{0x7f, 0x00}, Height: 4},
			}},
			wantMsg: "failed to decode block at DA height 4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			n := newTestNode(t, Components{
				DA:       &fakeDA{stream: []*da.StreamReadFromHeightResponse{tt.resp}},
				Executor: exec,
			})
			err := n.ReadBlocksFromDA(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.ErrorContains(t, err, tt.wantMsg)
			}
			assert.Empty(t, exec.blocks)
		})
	}
}

func TestRunExecutorStopsOnWriterFailure(t *testing.T) {
	fake := &fakeDA{writeErr: errors.New("broken pipe")}
	n := newTestNode(t, Components{DA: fake})
	n.transactions <- signedTransactions(t, 1)[0]
	n.inFlight.Store(1)

	err := n.RunExecutor(context.Background())
	assert.ErrorContains(t, err, "broken pipe")
}

func TestRunFailsOnUnreadableOutput(t *testing.T) {
	out := &recordingOutput{latestErr: errors.New("connection refused")}
	n := newTestNode(t, Components{Output: out})

	err := n.Run(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestRunEndToEnd(t *testing.T) {
	light := da.NewMemoryLightNode(da.MemoryLightNodeConfig{BlockTime: 10 * time.Millisecond}, nil)
	ledger, err := executor.NewLedger(executor.LedgerConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	out := &recordingOutput{}
	client := settlement.NewMockClient()
	n := newTestNode(t, Components{DA: light, Executor: ledger, Settlement: client, Output: out})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 2)
	go func() { done <- light.Run(ctx) }()
	go func() { done <- n.Run(ctx) }()

	mc := n.MempoolClient()
	txs := signedTransactions(t, 3)
	for _, tx := range txs {
		status, err := mc.SubmitTransaction(ctx, tx)
		require.NoError(t, err)
		require.Equal(t, mempool.Accepted, status.Code)
	}

	require.Eventually(t, func() bool {
		seq, err := ledger.SequenceNumber(ctx, txs[0].Sender)
		return err == nil && seq == 3
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		blocks, events := out.snapshot()
		return len(events) > 0 && len(events) == len(blocks)
	}, 5*time.Second, 10*time.Millisecond)

	_, events := out.snapshot()
	for _, ev := range events {
		_, accepted := ev.Accepted()
		assert.True(t, accepted, ev.String())
	}

	got, err := mc.GetTransactionByHash(ctx, txs[1].Hash())
	require.NoError(t, err)
	assert.Equal(t, txs[1].Hash(), got.Hash())

	cancel()
	light.Close()
	for range 2 {
		assert.NoError(t, <-done)
	}
	assert.Zero(t, n.InFlight())
}
