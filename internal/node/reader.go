package node

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/movementlabsxyz/suzuka/internal/codec"
	"github.com/movementlabsxyz/suzuka/internal/da"
	"github.com/movementlabsxyz/suzuka/internal/executor"
	"github.com/movementlabsxyz/suzuka/internal/models"
	"github.com/movementlabsxyz/suzuka/internal/utils"
)

var (
	ErrInvalidBlobType = errors.New("blob is not a sequenced block")
	ErrMissingBlob     = errors.New("response carries no blob")
)

// ReadBlocksFromDA streams blocks from the executor head onwards, executes them and posts their
// commitments. Any malformed blob ends the stream with an error.
func (n *PartialNode) ReadBlocksFromDA(ctx context.Context) error {
	head, err := utils.WithRetry(ctx, n.cfg.MaxRetries, "get block head height", n.executor.BlockHeadHeight)
	if err != nil {
		return err
	}
	n.metrics.headHeight.Set(float64(head))

	n.daMu.Lock()
	stream, err := n.da.StreamReadFromHeight(ctx, &da.StreamReadFromHeightRequest{Height: head})
	n.daMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to open DA stream at height %d: %w", head, err)
	}
	slog.Info("Reading blocks from DA", "height", head)

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			slog.Info("DA stream ended")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to receive from DA stream: %w", err)
		}
		if err := n.processBlob(ctx, resp); err != nil {
			return err
		}
	}
}

func (n *PartialNode) processBlob(ctx context.Context, resp *da.StreamReadFromHeightResponse) error {
	if resp == nil || resp.Blob == nil {
		return ErrMissingBlob
	}
	if resp.Blob.Type != da.SequencedBlobBlock {
		return fmt.Errorf("%w: got %s", ErrInvalidBlobType, resp.Blob.Type)
	}
	blob := resp.Blob.Blob
	if blob == nil {
		return ErrMissingBlob
	}

	block, err := codec.DecodeBlock(blob.Data)
	if err != nil {
		return fmt.Errorf("failed to decode block at DA height %d: %w", blob.Height, err)
	}
	txs := make([]models.SignatureVerifiedTransaction, 0, len(block.Transactions))
	for _, t := range block.Transactions {
		tx, err := codec.DecodeTransaction(t.Data)
		if err != nil {
			return fmt.Errorf("failed to decode transaction %s in block %s: %w", t.ID(), block.ID, err)
		}
		txs = append(txs, models.SignatureVerifiedTransaction{Valid: true, UserTransaction: tx})
	}

	blockHash := models.HashValue(sha256.Sum256(blob.Data))
	executable := models.NewExecutableBlock(blockHash, models.ExecutableTransactions{Unsharded: txs})

	commitment, err := n.executor.ExecuteBlock(ctx, executor.Opt, executable)
	if errors.Is(err, executor.ErrBlockReplay) {
		n.metrics.replaysSkipped.Inc()
		slog.Debug("Skipping executed block", "height", blob.Height, "block_id", block.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to execute block %s: %w", block.ID, err)
	}
	n.metrics.blocksExecuted.Inc()
	n.metrics.headHeight.Set(float64(commitment.Height))
	slog.Info("Executed block", "height", commitment.Height, "block_id", block.ID, "transactions", len(txs))

	if err := n.output.WriteExecutedBlock(ctx, &models.ExecutedBlock{
		Height:       commitment.Height,
		BlockID:      block.ID,
		BlockHash:    blockHash,
		Transactions: len(txs),
		Commitment:   commitment.Commitment,
	}); err != nil {
		return fmt.Errorf("failed to record executed block %d: %w", commitment.Height, err)
	}
	return n.settlement.PostBlockCommitment(ctx, commitment)
}
