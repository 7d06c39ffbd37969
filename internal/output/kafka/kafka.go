// Package kafka publishes executed blocks and commitment events to Kafka topics.
package kafka

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/movementlabsxyz/suzuka/internal/models"
	"github.com/movementlabsxyz/suzuka/internal/output"
)

const (
	DefaultBlocksTopic      = "suzuka.executed-blocks"
	DefaultCommitmentsTopic = "suzuka.commitment-events"
)

type Config struct {
	Brokers          []string
	BlocksTopic      string
	CommitmentsTopic string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaOutputHandler keys every message by block height so a height always lands on the same partition.
type KafkaOutputHandler struct {
	writer           messageWriter
	blocksTopic      string
	commitmentsTopic string

	mu     sync.Mutex
	latest *models.BlockCommitment
}

var _ output.OutputHandler = (*KafkaOutputHandler)(nil)

func NewKafkaOutputHandler(cfg Config) (*KafkaOutputHandler, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
	return newHandler(w, cfg), nil
}

func newHandler(w messageWriter, cfg Config) *KafkaOutputHandler {
	h := &KafkaOutputHandler{
		writer:           w,
		blocksTopic:      cfg.BlocksTopic,
		commitmentsTopic: cfg.CommitmentsTopic,
	}
	if h.blocksTopic == "" {
		h.blocksTopic = DefaultBlocksTopic
	}
	if h.commitmentsTopic == "" {
		h.commitmentsTopic = DefaultCommitmentsTopic
	}
	return h
}

func heightKey(height uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, height)
}

func (h *KafkaOutputHandler) publish(ctx context.Context, topic string, height uint64, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message for height %d: %w", height, err)
	}
	if err := h.writer.WriteMessages(ctx, kafkago.Message{
		Topic: topic,
		Key:   heightKey(height),
		Value: data,
	}); err != nil {
		return fmt.Errorf("failed to publish to %s at height %d: %w", topic, height, err)
	}
	return nil
}

func (h *KafkaOutputHandler) WriteExecutedBlock(ctx context.Context, block *models.ExecutedBlock) error {
	return h.publish(ctx, h.blocksTopic, block.Height, block)
}

func (h *KafkaOutputHandler) WriteCommitmentEvent(ctx context.Context, event models.BlockCommitmentEvent) error {
	if err := h.publish(ctx, h.commitmentsTopic, event.Height(), event); err != nil {
		return err
	}
	if c, ok := event.Accepted(); ok {
		h.mu.Lock()
		if h.latest == nil || c.Height > h.latest.Height {
			h.latest = &c
		}
		h.mu.Unlock()
	}
	return nil
}

// GetLatestCommitment only knows about commitments published by this process.
func (h *KafkaOutputHandler) GetLatestCommitment(_ context.Context) (*models.BlockCommitment, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return nil, nil
	}
	latest := *h.latest
	return &latest, nil
}

func (h *KafkaOutputHandler) Close() error {
	return h.writer.Close()
}
