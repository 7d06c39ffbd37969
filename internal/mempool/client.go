package mempool

import (
	"context"
	"fmt"

	"github.com/movementlabsxyz/suzuka/internal/models"
)

// ClientRequest is a message on the mempool request channel. The pipe replies exactly once.
type ClientRequest interface {
	isClientRequest()
}

type SubmitResponse struct {
	Status Status
}

type SubmitTransaction struct {
	Tx    *models.SignedTransaction
	Reply chan<- SubmitResponse
}

type GetTransactionByHash struct {
	Hash  models.HashValue
	Reply chan<- *models.SignedTransaction
}

func (SubmitTransaction) isClientRequest()    {}
func (GetTransactionByHash) isClientRequest() {}

// Client sends requests to the pipe and waits for the one-shot reply.
type Client struct {
	requests chan<- ClientRequest
}

func NewClient(requests chan<- ClientRequest) *Client {
	return &Client{requests: requests}
}

func (c *Client) SubmitTransaction(ctx context.Context, tx *models.SignedTransaction) (Status, error) {
	reply := make(chan SubmitResponse, 1)
	if err := c.send(ctx, SubmitTransaction{Tx: tx, Reply: reply}); err != nil {
		return Status{}, err
	}
	select {
	case resp := <-reply:
		return resp.Status, nil
	case <-ctx.Done():
		return Status{}, fmt.Errorf("waiting for submit reply: %w", ctx.Err())
	}
}

// GetTransactionByHash returns nil when the mempool does not hold the transaction.
func (c *Client) GetTransactionByHash(ctx context.Context, hash models.HashValue) (*models.SignedTransaction, error) {
	reply := make(chan *models.SignedTransaction, 1)
	if err := c.send(ctx, GetTransactionByHash{Hash: hash, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case tx := <-reply:
		return tx, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for lookup reply: %w", ctx.Err())
	}
}

func (c *Client) send(ctx context.Context, req ClientRequest) error {
	select {
	case c.requests <- req:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sending mempool request: %w", ctx.Err())
	}
}
