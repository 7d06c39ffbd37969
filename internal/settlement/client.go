// Package settlement posts block commitments to the settlement contract and surfaces whether
// each one was accepted.
package settlement

import (
	"context"
	"fmt"
	"sync"

	"github.com/movementlabsxyz/suzuka/internal/models"
)

//go:generate mockgen -destination settlementmock/client.go -package settlementmock . Client

// Client talks to the settlement contract.
type Client interface {
	PostBlockCommitment(ctx context.Context, commitment models.BlockCommitment) error
	// GetCommitmentAtHeight returns nil when nothing is recorded at height.
	GetCommitmentAtHeight(ctx context.Context, height uint64) (*models.BlockCommitment, error)
}

// RejectedError is returned by a client when the contract refused a commitment.
type RejectedError struct {
	Height uint64
	Reason models.RejectionReason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("commitment at height %d rejected: %s", e.Height, e.Reason)
}

// MockClient is an in-memory settlement contract.
type MockClient struct {
	mu          sync.Mutex
	commitments map[uint64]models.BlockCommitment
	overrides   map[uint64]models.BlockCommitment
	rejections  map[uint64]models.RejectionReason
	posted      []models.BlockCommitment
}

var _ Client = (*MockClient)(nil)

// NewMockClient returns a client that rejects commitments at the given heights with InvalidHeight.
func NewMockClient(rejectHeights ...uint64) *MockClient {
	c := &MockClient{
		commitments: make(map[uint64]models.BlockCommitment),
		overrides:   make(map[uint64]models.BlockCommitment),
		rejections:  make(map[uint64]models.RejectionReason),
	}
	for _, h := range rejectHeights {
		c.rejections[h] = models.RejectionInvalidHeight
	}
	return c
}

// RejectHeight makes the contract refuse the commitment at height.
func (c *MockClient) RejectHeight(height uint64, reason models.RejectionReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejections[height] = reason
}

// OverrideBlockCommitment records commitment in place of whatever is posted at its height.
func (c *MockClient) OverrideBlockCommitment(commitment models.BlockCommitment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[commitment.Height] = commitment
}

func (c *MockClient) PostBlockCommitment(ctx context.Context, commitment models.BlockCommitment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posted = append(c.posted, commitment)
	if reason, ok := c.rejections[commitment.Height]; ok {
		return &RejectedError{Height: commitment.Height, Reason: reason}
	}
	recorded := commitment
	if override, ok := c.overrides[commitment.Height]; ok {
		recorded = override
	}
	c.commitments[recorded.Height] = recorded
	return nil
}

func (c *MockClient) GetCommitmentAtHeight(_ context.Context, height uint64) (*models.BlockCommitment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if commitment, ok := c.commitments[height]; ok {
		return &commitment, nil
	}
	return nil, nil
}

// Posted returns every commitment received, in arrival order.
func (c *MockClient) Posted() []models.BlockCommitment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.BlockCommitment(nil), c.posted...)
}
