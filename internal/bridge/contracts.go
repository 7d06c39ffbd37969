package bridge

import "context"

// Initiator is the side of the swap where funds are locked first. GetBridgeTransferDetails
// returns nil when the chain has no such transfer.
type Initiator interface {
	InitiateBridgeTransfer(ctx context.Context, initiator, recipient Address, hashLock HashLock, timeLock TimeLock, amount Amount) (BridgeTransferID, error)
	CompleteBridgeTransfer(ctx context.Context, id BridgeTransferID, preImage HashLockPreImage) error
	RefundBridgeTransfer(ctx context.Context, id BridgeTransferID) error
	GetBridgeTransferDetails(ctx context.Context, id BridgeTransferID) (*BridgeTransferDetails, error)
	SetTimeLockDuration(ctx context.Context, duration uint64) error
	GetTimeLockDuration(ctx context.Context) (uint64, error)
}

// Counterparty mirrors a transfer under the initiator's id and hash lock. Its time lock is set
// by the chain from its configured duration.
type Counterparty interface {
	LockBridgeTransfer(ctx context.Context, id BridgeTransferID, hashLock HashLock, initiator, recipient Address, amount Amount) error
	CompleteBridgeTransfer(ctx context.Context, id BridgeTransferID, preImage HashLockPreImage) error
	AbortBridgeTransfer(ctx context.Context, id BridgeTransferID) error
	GetBridgeTransferDetails(ctx context.Context, id BridgeTransferID) (*BridgeTransferDetails, error)
	SetTimeLockDuration(ctx context.Context, duration uint64) error
	GetTimeLockDuration(ctx context.Context) (uint64, error)
}
