package output

import (
	"context"
	"log/slog"
	"sync"

	"github.com/movementlabsxyz/suzuka/internal/models"
)

// LogHandler writes records to the process logger and keeps the latest accepted commitment in memory.
type LogHandler struct {
	mu     sync.Mutex
	latest *models.BlockCommitment
}

var _ OutputHandler = (*LogHandler)(nil)

func NewLogHandler() *LogHandler {
	return &LogHandler{}
}

func (h *LogHandler) WriteExecutedBlock(_ context.Context, block *models.ExecutedBlock) error {
	slog.Info("Executed block",
		"height", block.Height,
		"block_id", block.BlockID,
		"block_hash", block.BlockHash,
		"transactions", block.Transactions,
		"commitment", block.Commitment)
	return nil
}

func (h *LogHandler) WriteCommitmentEvent(_ context.Context, event models.BlockCommitmentEvent) error {
	commitment, accepted := event.Accepted()
	if !accepted {
		slog.Debug("Recorded commitment event", "event", event.String())
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil || commitment.Height > h.latest.Height {
		h.latest = &commitment
	}
	slog.Debug("Recorded commitment event", "event", event.String())
	return nil
}

func (h *LogHandler) GetLatestCommitment(_ context.Context) (*models.BlockCommitment, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return nil, nil
	}
	latest := *h.latest
	return &latest, nil
}

func (h *LogHandler) Close() error {
	return nil
}
