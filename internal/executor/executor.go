// Package executor defines the block execution boundary of the node and a reference ledger
// implementation backed by badger.
package executor

import (
	"context"
	"errors"

	"github.com/movementlabsxyz/suzuka/internal/models"
)

// FinalityMode selects whether a commitment is produced before (Opt) or after (Fin) settlement.
type FinalityMode int

const (
	Opt FinalityMode = iota
	Fin
)

func (m FinalityMode) String() string {
	if m == Fin {
		return "Fin"
	}
	return "Opt"
}

var (
	// ErrBlockReplay is returned for a block hash that has already been executed.
	ErrBlockReplay         = errors.New("block already executed")
	ErrCommitmentNotFound  = errors.New("commitment not found")
	ErrUnknownFinalityMode = errors.New("unknown finality mode")
)

type Executor interface {
	// BlockHeadHeight is the height of the last executed block, 0 before the first.
	BlockHeadHeight(ctx context.Context) (uint64, error)
	ExecuteBlock(ctx context.Context, mode FinalityMode, block models.ExecutableBlock) (models.BlockCommitment, error)
}
