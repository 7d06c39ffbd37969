package node

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/movementlabsxyz/suzuka/internal/da"
)

// WriteTransactionsToDA writes batches until ctx is done or a write fails.
func (n *PartialNode) WriteTransactionsToDA(ctx context.Context) error {
	for {
		if err := n.TickWriteTransactionsToDA(ctx); err != nil {
			return err
		}
	}
}

// TickWriteTransactionsToDA collects forwarded transactions until the batch deadline passes or no
// transaction arrives within one receive timeout, then writes them in a single BatchWrite.
// Transactions of a failed write are not retried.
func (n *PartialNode) TickWriteTransactionsToDA(ctx context.Context) error {
	deadline := time.Now().Add(n.cfg.BatchTimeout)
	timer := time.NewTimer(n.cfg.BatchTimeout)
	defer timer.Stop()

	var blobs []da.BlobWrite
	defer func() {
		if len(blobs) > 0 {
			n.pipe.Release(len(blobs))
		}
	}()

collect:
	for time.Now().Before(deadline) {
		timer.Reset(n.cfg.BatchTimeout)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tx, ok := <-n.transactions:
			if !ok {
				break collect
			}
			data, err := n.cfg.Codec.EncodeTransaction(tx)
			if err != nil {
				n.pipe.Release(1)
				return fmt.Errorf("failed to encode transaction %s: %w", tx.Hash(), err)
			}
			blobs = append(blobs, da.BlobWrite{Data: data})
		case <-timer.C:
			break collect
		}
	}

	if len(blobs) == 0 {
		return nil
	}

	n.daMu.Lock()
	_, err := n.da.BatchWrite(ctx, &da.BatchWriteRequest{Blobs: blobs})
	n.daMu.Unlock()
	if err != nil {
		n.metrics.writeFailures.Inc()
		return fmt.Errorf("failed to write batch of %d transactions to DA: %w", len(blobs), err)
	}

	n.metrics.batchesWritten.Inc()
	n.metrics.batchSize.Observe(float64(len(blobs)))
	slog.Info("Wrote transactions to DA", "count", len(blobs))
	return nil
}
