package output

import (
	"context"

	"github.com/movementlabsxyz/suzuka/internal/models"
)

type OutputHandler interface {
	// WriteExecutedBlock records a block once the executor has produced its commitment.
	WriteExecutedBlock(ctx context.Context, block *models.ExecutedBlock) error

	// WriteCommitmentEvent records the settlement outcome of a commitment.
	WriteCommitmentEvent(ctx context.Context, event models.BlockCommitmentEvent) error

	// GetLatestCommitment returns the highest accepted commitment, or nil if none was recorded.
	GetLatestCommitment(ctx context.Context) (*models.BlockCommitment, error)

	// Close closes the output handler.
	Close() error
}
