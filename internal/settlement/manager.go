package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/movementlabsxyz/suzuka/internal/models"
)

const queueSize = 1024

// CommitmentEventStream yields one event per posted commitment, in posting order.
type CommitmentEventStream <-chan models.BlockCommitmentEvent

// Manager posts commitments in the order they are handed over and reports each outcome.
type Manager struct {
	client  Client
	queue   chan models.BlockCommitment
	events  chan models.BlockCommitmentEvent
	metrics *metrics
}

func NewManager(client Client, reg prometheus.Registerer) (*Manager, CommitmentEventStream, error) {
	m, err := newMetrics(reg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to register settlement metrics: %w", err)
	}
	events := make(chan models.BlockCommitmentEvent, queueSize)
	return &Manager{
		client:  client,
		queue:   make(chan models.BlockCommitment, queueSize),
		events:  events,
		metrics: m,
	}, events, nil
}

// PostBlockCommitment enqueues a commitment. It only blocks while the queue is full.
func (m *Manager) PostBlockCommitment(ctx context.Context, commitment models.BlockCommitment) error {
	select {
	case m.queue <- commitment:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run posts queued commitments until ctx is done, then closes the event stream.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.events)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case commitment := <-m.queue:
			event, err := m.settle(ctx, commitment)
			if err != nil {
				return err
			}
			select {
			case m.events <- event:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (m *Manager) settle(ctx context.Context, commitment models.BlockCommitment) (models.BlockCommitmentEvent, error) {
	err := m.client.PostBlockCommitment(ctx, commitment)
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		m.metrics.rejected.WithLabelValues(rejected.Reason.String()).Inc()
		return models.RejectedCommitment(rejected.Height, rejected.Reason), nil
	}
	if err != nil {
		return models.BlockCommitmentEvent{}, fmt.Errorf("failed to post commitment at height %d: %w", commitment.Height, err)
	}

	recorded, err := m.client.GetCommitmentAtHeight(ctx, commitment.Height)
	if err != nil {
		return models.BlockCommitmentEvent{}, fmt.Errorf("failed to read back commitment at height %d: %w", commitment.Height, err)
	}
	switch {
	case recorded == nil:
		m.metrics.rejected.WithLabelValues(models.RejectionInvalidHeight.String()).Inc()
		return models.RejectedCommitment(commitment.Height, models.RejectionInvalidHeight), nil
	case recorded.BlockID != commitment.BlockID:
		m.metrics.rejected.WithLabelValues(models.RejectionInvalidBlockID.String()).Inc()
		return models.RejectedCommitment(commitment.Height, models.RejectionInvalidBlockID), nil
	case recorded.Commitment != commitment.Commitment:
		m.metrics.rejected.WithLabelValues(models.RejectionInvalidCommitment.String()).Inc()
		return models.RejectedCommitment(commitment.Height, models.RejectionInvalidCommitment), nil
	}
	m.metrics.accepted.Inc()
	return models.AcceptedCommitment(commitment), nil
}

// EventRecorder persists commitment events.
type EventRecorder interface {
	WriteCommitmentEvent(ctx context.Context, event models.BlockCommitmentEvent) error
}

// ReadCommitmentEvents logs and records every event until the stream closes or ctx is done.
// Rejections are logged and do not stop the loop.
func ReadCommitmentEvents(ctx context.Context, stream CommitmentEventStream, recorder EventRecorder) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-stream:
			if !ok {
				return nil
			}
			if commitment, accepted := event.Accepted(); accepted {
				slog.Info("Commitment accepted", "height", commitment.Height, "commitment", commitment.Commitment)
			} else {
				height, reason, _ := event.Rejected()
				slog.Warn("Commitment rejected", "height", height, "reason", reason)
			}
			if recorder == nil {
				continue
			}
			if err := recorder.WriteCommitmentEvent(ctx, event); err != nil {
				return fmt.Errorf("failed to record commitment event at height %d: %w", event.Height(), err)
			}
		}
	}
}
