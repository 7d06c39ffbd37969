package models

import (
	"encoding/json"
	"fmt"
)

// RejectionReason explains why settlement refused a commitment.
type RejectionReason int

const (
	RejectionInvalidBlockID RejectionReason = iota
	RejectionInvalidCommitment
	RejectionInvalidHeight
	RejectionContractError
)

func (r RejectionReason) String() string {
	switch r {
	case RejectionInvalidBlockID:
		return "InvalidBlockId"
	case RejectionInvalidCommitment:
		return "InvalidCommitment"
	case RejectionInvalidHeight:
		return "InvalidHeight"
	case RejectionContractError:
		return "ContractError"
	default:
		return fmt.Sprintf("RejectionReason(%d)", int(r))
	}
}

func (r RejectionReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// BlockCommitmentEvent is either Accepted(commitment) or Rejected{height, reason}.
type BlockCommitmentEvent struct {
	accepted   bool
	commitment BlockCommitment
	height     uint64
	reason     RejectionReason
}

func AcceptedCommitment(c BlockCommitment) BlockCommitmentEvent {
	return BlockCommitmentEvent{accepted: true, commitment: c, height: c.Height}
}

func RejectedCommitment(height uint64, reason RejectionReason) BlockCommitmentEvent {
	return BlockCommitmentEvent{height: height, reason: reason}
}

func (e BlockCommitmentEvent) Accepted() (BlockCommitment, bool) {
	return e.commitment, e.accepted
}

func (e BlockCommitmentEvent) Rejected() (uint64, RejectionReason, bool) {
	return e.height, e.reason, !e.accepted
}

func (e BlockCommitmentEvent) Height() uint64 {
	return e.height
}

func (e BlockCommitmentEvent) String() string {
	if e.accepted {
		return fmt.Sprintf("Accepted(%s)", e.commitment)
	}
	return fmt.Sprintf("Rejected{height: %d, reason: %s}", e.height, e.reason)
}

type commitmentEventJSON struct {
	Kind       string           `json:"kind"`
	Height     uint64           `json:"height"`
	Commitment *BlockCommitment `json:"commitment,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

func (e BlockCommitmentEvent) MarshalJSON() ([]byte, error) {
	if e.accepted {
		c := e.commitment
		return json.Marshal(commitmentEventJSON{Kind: "accepted", Height: e.height, Commitment: &c})
	}
	return json.Marshal(commitmentEventJSON{Kind: "rejected", Height: e.height, Reason: e.reason.String()})
}
