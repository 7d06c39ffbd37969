package da

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/movementlabsxyz/suzuka/internal/codec"
	"github.com/movementlabsxyz/suzuka/internal/models"
	"github.com/movementlabsxyz/suzuka/internal/utils"
)

const (
	DefaultBlockTime      = 500 * time.Millisecond
	DefaultMaxBlockWeight = 1 << 20
)

type MemoryLightNodeConfig struct {
	BlockTime      time.Duration
	MaxBlockWeight int
	Codec          *codec.Codec
}

// MemoryLightNode is an in-process sequencer: written blobs are packed into blocks every block
// time and streamed back by height, starting at 1.
type MemoryLightNode struct {
	cfg   MemoryLightNodeConfig
	clock *utils.Clock

	mu      sync.Mutex
	pending []models.Transaction
	blocks  []*Blob
	parent  models.HashValue
	closed  bool
	// closed and replaced whenever a block is sealed or the node closes
	notify chan struct{}
}

var _ LightNodeClient = (*MemoryLightNode)(nil)

func NewMemoryLightNode(cfg MemoryLightNodeConfig, clock *utils.Clock) *MemoryLightNode {
	if cfg.BlockTime <= 0 {
		cfg.BlockTime = DefaultBlockTime
	}
	if cfg.MaxBlockWeight <= 0 {
		cfg.MaxBlockWeight = DefaultMaxBlockWeight
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.New(codec.FormatBinary)
	}
	if clock == nil {
		clock = &utils.Clock{}
	}
	return &MemoryLightNode{cfg: cfg, clock: clock, notify: make(chan struct{})}
}

func (n *MemoryLightNode) BatchWrite(_ context.Context, req *BatchWriteRequest) (*BatchWriteResponse, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, fmt.Errorf("light node is closed")
	}
	resp := &BatchWriteResponse{Blobs: make([]*BlobResponse, 0, len(req.Blobs))}
	now := n.clock.Unix()
	for _, blob := range req.Blobs {
		tx := models.Transaction{Data: blob.Data}
		n.pending = append(n.pending, tx)
		resp.Blobs = append(resp.Blobs, &BlobResponse{
			Type: SequencedBlobIntent,
			Blob: &Blob{BlobID: tx.ID().String(), Data: blob.Data, Timestamp: now},
		})
	}
	return resp, nil
}

// Run seals a block every block time until ctx is done.
func (n *MemoryLightNode) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.cfg.BlockTime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := n.SealBlock(); err != nil {
				return err
			}
		}
	}
}

// SealBlock packs pending transactions into the next block. It returns nil when nothing is pending.
func (n *MemoryLightNode) SealBlock() (*Blob, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.pending) == 0 {
		return nil, nil
	}

	var (
		included []models.Transaction
		leftover []models.Transaction
		weight   = 2 * models.HashLength
	)
	for _, tx := range n.pending {
		// an oversized transaction still gets a block of its own
		if len(included) == 0 || weight+tx.Weight() <= n.cfg.MaxBlockWeight {
			included = append(included, tx)
			weight += tx.Weight()
			continue
		}
		leftover = append(leftover, tx)
	}

	block := models.NewBlock(n.parent, included)
	data, err := n.cfg.Codec.EncodeBlock(block)
	if err != nil {
		return nil, fmt.Errorf("failed to encode block %s: %w", block.ID, err)
	}
	blob := &Blob{
		BlobID:    block.ID.String(),
		Data:      data,
		Height:    uint64(len(n.blocks)) + 1,
		Timestamp: n.clock.Unix(),
	}
	n.blocks = append(n.blocks, blob)
	n.pending = leftover
	n.parent = block.ID
	n.broadcast()

	slog.Debug("Sealed block", "height", blob.Height, "id", block.ID, "transactions", len(included), "weight", weight)
	return blob, nil
}

// Height returns the height of the last sealed block.
func (n *MemoryLightNode) Height() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return uint64(len(n.blocks))
}

// Close ends every open stream with io.EOF and rejects further writes.
func (n *MemoryLightNode) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	n.broadcast()
}

func (n *MemoryLightNode) broadcast() {
	close(n.notify)
	n.notify = make(chan struct{})
}

// StreamReadFromHeight replays sealed blocks from max(height, 1) and then follows new ones.
func (n *MemoryLightNode) StreamReadFromHeight(ctx context.Context, req *StreamReadFromHeightRequest) (BlobStream, error) {
	return &memoryBlobStream{ctx: ctx, node: n, next: max(req.Height, 1)}, nil
}

type memoryBlobStream struct {
	ctx  context.Context
	node *MemoryLightNode
	next uint64
}

func (s *memoryBlobStream) Recv() (*StreamReadFromHeightResponse, error) {
	for {
		s.node.mu.Lock()
		if s.next <= uint64(len(s.node.blocks)) {
			blob := s.node.blocks[s.next-1]
			s.node.mu.Unlock()
			s.next++
			return &StreamReadFromHeightResponse{Blob: &BlobResponse{Type: SequencedBlobBlock, Blob: blob}}, nil
		}
		if s.node.closed {
			s.node.mu.Unlock()
			return nil, io.EOF
		}
		notify := s.node.notify
		s.node.mu.Unlock()

		select {
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		case <-notify:
		}
	}
}
