package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/movementlabsxyz/suzuka/internal/quorum"
	"github.com/movementlabsxyz/suzuka/internal/utils"
)

const (
	DefaultPollInterval = time.Second
	DefaultQuorumTTL    = 5 * time.Minute
	defaultPollRetries  = 3
)

var ErrQuorumLost = errors.New("too few event sources left to reach quorum")

// EventSource reads one side's contract events from a single chain endpoint.
type EventSource interface {
	Events(ctx context.Context, side Side, start uint64) ([]Event, error)
}

type NamedSource struct {
	Name   string
	Source EventSource
}

type MonitorConfig struct {
	Side         Side
	Threshold    int
	TTL          time.Duration
	PollInterval time.Duration
	// MaxRetries bounds consecutive failed polls before a source is dropped.
	MaxRetries uint
}

// Monitor polls every endpoint for contract events and forwards those that enough endpoints agree
// on.
type Monitor struct {
	cfg     MonitorConfig
	sources []NamedSource
	metrics *quorum.Metrics

	mu   sync.Mutex
	seen map[EventKey]Event
}

func NewMonitor(cfg MonitorConfig, sources []NamedSource, metrics *quorum.Metrics) *Monitor {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 1
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultQuorumTTL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultPollRetries
	}
	return &Monitor{
		cfg:     cfg,
		sources: sources,
		metrics: metrics,
		seen:    make(map[EventKey]Event),
	}
}

// Run sends agreed events to out until ctx is done. It fails with ErrQuorumLost once too many
// sources have been dropped.
func (m *Monitor) Run(ctx context.Context, out chan<- Event) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	sources := make([]quorum.Source[EventKey], 0, len(m.sources))
	for _, src := range m.sources {
		ch := make(chan EventKey)
		sources = append(sources, quorum.Source[EventKey]{ID: src.Name, Events: ch})
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(ch)
			m.poll(ctx, src, ch)
		}()
	}

	opts := []quorum.Option{}
	if m.metrics != nil {
		opts = append(opts, quorum.WithMetrics(m.metrics))
	}
	stream := quorum.New(sources, m.cfg.Threshold, m.cfg.TTL, opts...)
	for {
		key, ok := stream.Next(ctx)
		if !ok {
			if ctx.Err() != nil {
				return nil
			}
			return ErrQuorumLost
		}
		ev := m.take(key)
		slog.Info("Bridge event confirmed", "kind", ev.Kind, "id", ev.Details.ID.String())
		select {
		case out <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Monitor) remember(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[ev.Key()]; !ok {
		m.seen[ev.Key()] = ev
	}
}

func (m *Monitor) take(key EventKey) Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := m.seen[key]
	delete(m.seen, key)
	return ev
}

// poll feeds one source's events into ch until ctx is done or the endpoint keeps failing.
func (m *Monitor) poll(ctx context.Context, src NamedSource, ch chan<- EventKey) {
	var next uint64
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		events, err := utils.WithRetry(ctx, m.cfg.MaxRetries, "poll bridge events", func(ctx context.Context) ([]Event, error) {
			return src.Source.Events(ctx, m.cfg.Side, next)
		})
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("Dropping bridge event source", "source", src.Name, "error", err)
			}
			return
		}
		for _, ev := range events {
			next = max(next, ev.Sequence+1)
			m.remember(ev)
			select {
			case ch <- ev.Key():
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Relay completes transfers on the initiator chain once the counterparty reveals the secret.
// Failures are logged; the initiator chain stays authoritative.
func Relay(ctx context.Context, events <-chan Event, initiator Initiator) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Kind != EventCounterpartyCompleted {
				continue
			}
			done := ev.CompletedDetails()
			if err := initiator.CompleteBridgeTransfer(ctx, done.ID, done.Secret); err != nil {
				slog.Warn("Failed to complete bridge transfer on initiator", "id", done.ID.String(), "error", err)
				continue
			}
			slog.Info("Completed bridge transfer on initiator", "id", done.ID.String())
		}
	}
}
