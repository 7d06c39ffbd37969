package movement

import (
	"context"
	"fmt"

	"github.com/movementlabsxyz/suzuka/internal/bridge"
	"github.com/movementlabsxyz/suzuka/internal/bridge/bcs"
)

var (
	_ bridge.Initiator    = (*InitiatorClient)(nil)
	_ bridge.Counterparty = (*CounterpartyClient)(nil)
)

// InitiatorClient calls the atomic_bridge_initiator module.
type InitiatorClient struct {
	c *Client
}

func initiatorError(kind bridge.ErrorKind, err error) error {
	return bridge.NewInitiatorError(kind, err)
}

// InitiateBridgeTransfer locks amount under hashLock. The chain takes the initiator from the
// transaction sender and reports the new transfer id in its Initiated event.
func (i *InitiatorClient) InitiateBridgeTransfer(ctx context.Context, _ bridge.Address, recipient bridge.Address,
	hashLock bridge.HashLock, timeLock bridge.TimeLock, amount bridge.Amount,
) (bridge.BridgeTransferID, error) {
	if amount.Kind() != bridge.AssetMoveth {
		return bridge.BridgeTransferID{}, initiatorError(bridge.ConversionError, fmt.Errorf("%s is not a MovETH amount", amount))
	}
	tx, err := i.c.submit(ctx, InitiatorModule, FnInitiateBridgeTransfer,
		bcs.EncodeBytes(recipient),
		bcs.EncodeBytes(hashLock[:]),
		bcs.EncodeU64(uint64(timeLock)),
		bcs.EncodeU64(amount.Moveth()),
	)
	if err != nil {
		return bridge.BridgeTransferID{}, initiatorError(bridge.InitiateTransferError, err)
	}

	for _, rec := range tx.Events {
		ev, ok, err := decodeEvent(rec)
		if err != nil {
			return bridge.BridgeTransferID{}, initiatorError(bridge.SerializationError, err)
		}
		if ok && ev.Kind == bridge.EventInitiated {
			return ev.Details.ID, nil
		}
	}
	return bridge.BridgeTransferID{}, initiatorError(bridge.InitiateTransferError,
		fmt.Errorf("transaction %s emitted no initiated event", tx.Hash))
}

func (i *InitiatorClient) CompleteBridgeTransfer(ctx context.Context, id bridge.BridgeTransferID, preImage bridge.HashLockPreImage) error {
	if _, err := i.c.submit(ctx, InitiatorModule, FnCompleteBridgeTransfer, bcs.EncodeBytes(id[:]), bcs.EncodeBytes(preImage)); err != nil {
		return initiatorError(bridge.CompleteTransferError, err)
	}
	return nil
}

func (i *InitiatorClient) RefundBridgeTransfer(ctx context.Context, id bridge.BridgeTransferID) error {
	if _, err := i.c.submit(ctx, InitiatorModule, FnRefundBridgeTransfer, bcs.EncodeBytes(id[:])); err != nil {
		return initiatorError(bridge.RefundTransferError, err)
	}
	return nil
}

func (i *InitiatorClient) GetBridgeTransferDetails(ctx context.Context, id bridge.BridgeTransferID) (*bridge.BridgeTransferDetails, error) {
	return i.c.transferDetails(ctx, InitiatorModule, id, initiatorError)
}

func (i *InitiatorClient) SetTimeLockDuration(ctx context.Context, duration uint64) error {
	if _, err := i.c.submit(ctx, InitiatorModule, FnSetTimeLockDuration, bcs.EncodeU64(duration)); err != nil {
		return initiatorError(bridge.CallError, err)
	}
	return nil
}

func (i *InitiatorClient) GetTimeLockDuration(ctx context.Context) (uint64, error) {
	return i.c.timeLockDuration(ctx, InitiatorModule, initiatorError)
}

// CounterpartyClient calls the atomic_bridge_counterparty module.
type CounterpartyClient struct {
	c *Client
}

func counterpartyError(kind bridge.ErrorKind, err error) error {
	return bridge.NewCounterpartyError(kind, err)
}

func (cp *CounterpartyClient) LockBridgeTransfer(ctx context.Context, id bridge.BridgeTransferID, hashLock bridge.HashLock,
	initiator, recipient bridge.Address, amount bridge.Amount,
) error {
	if amount.Kind() != bridge.AssetMoveth {
		return counterpartyError(bridge.SerializationError, fmt.Errorf("%s is not a MovETH amount", amount))
	}
	_, err := cp.c.submit(ctx, CounterpartyModule, FnLockBridgeTransfer,
		bcs.EncodeBytes(initiator),
		bcs.EncodeBytes(id[:]),
		bcs.EncodeBytes(hashLock[:]),
		bcs.EncodeBytes(recipient),
		bcs.EncodeU64(amount.Moveth()),
	)
	if err != nil {
		return counterpartyError(bridge.LockTransferError, err)
	}
	return nil
}

func (cp *CounterpartyClient) CompleteBridgeTransfer(ctx context.Context, id bridge.BridgeTransferID, preImage bridge.HashLockPreImage) error {
	if _, err := cp.c.submit(ctx, CounterpartyModule, FnCompleteBridgeTransfer, bcs.EncodeBytes(id[:]), bcs.EncodeBytes(preImage)); err != nil {
		return counterpartyError(bridge.CompleteTransferError, err)
	}
	return nil
}

func (cp *CounterpartyClient) AbortBridgeTransfer(ctx context.Context, id bridge.BridgeTransferID) error {
	if _, err := cp.c.submit(ctx, CounterpartyModule, FnAbortBridgeTransfer, bcs.EncodeBytes(id[:])); err != nil {
		return counterpartyError(bridge.AbortTransferError, err)
	}
	return nil
}

func (cp *CounterpartyClient) GetBridgeTransferDetails(ctx context.Context, id bridge.BridgeTransferID) (*bridge.BridgeTransferDetails, error) {
	return cp.c.transferDetails(ctx, CounterpartyModule, id, counterpartyError)
}

func (cp *CounterpartyClient) SetTimeLockDuration(ctx context.Context, duration uint64) error {
	if _, err := cp.c.submit(ctx, CounterpartyModule, FnSetTimeLockDuration, bcs.EncodeU64(duration)); err != nil {
		return counterpartyError(bridge.CallError, err)
	}
	return nil
}

func (cp *CounterpartyClient) GetTimeLockDuration(ctx context.Context) (uint64, error) {
	return cp.c.timeLockDuration(ctx, CounterpartyModule, counterpartyError)
}
