// Package node wires the transaction pipe, the DA writer, the DA reader, the executor and the
// settlement manager into a partial full node.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/movementlabsxyz/suzuka/internal/codec"
	"github.com/movementlabsxyz/suzuka/internal/da"
	"github.com/movementlabsxyz/suzuka/internal/executor"
	"github.com/movementlabsxyz/suzuka/internal/mempool"
	"github.com/movementlabsxyz/suzuka/internal/models"
	"github.com/movementlabsxyz/suzuka/internal/output"
	"github.com/movementlabsxyz/suzuka/internal/pipe"
	"github.com/movementlabsxyz/suzuka/internal/settlement"
	"github.com/movementlabsxyz/suzuka/internal/utils"
)

const (
	DefaultBatchTimeout = 100 * time.Millisecond
	DefaultMaxRetries   = 3

	requestBuffer = 1024
)

type Config struct {
	MaxInFlight int64
	// BatchTimeout bounds both a whole DA batch and each receive within it.
	BatchTimeout time.Duration
	GCInterval   time.Duration
	MaxRetries   uint
	Mempool      mempool.Config
	Codec        *codec.Codec
}

func DefaultConfig() Config {
	return Config{
		MaxInFlight:  pipe.DefaultMaxInFlight,
		BatchTimeout: DefaultBatchTimeout,
		GCInterval:   pipe.DefaultGCInterval,
		MaxRetries:   DefaultMaxRetries,
		Mempool:      mempool.DefaultConfig(),
		Codec:        codec.New(codec.FormatBinary),
	}
}

// Components are the collaborators a node is assembled from.
type Components struct {
	Executor   executor.Executor
	DA         da.LightNodeClient
	Settlement settlement.Client
	// Output records executed blocks and commitment events; defaults to an output.LogHandler.
	Output     output.OutputHandler
	Registerer prometheus.Registerer
	Clock      *utils.Clock
}

// Service is an auxiliary task supervised together with the node, such as the API server.
type Service interface {
	Run(ctx context.Context) error
}

type PartialNode struct {
	cfg      Config
	executor executor.Executor

	transactions chan *models.SignedTransaction
	requests     chan mempool.ClientRequest
	core         *mempool.CoreMempool
	pipe         *pipe.Pipe
	inFlight     *atomic.Int64

	// daMu serialises batch writes and stream opening on the light node connection
	daMu sync.RWMutex
	da   da.LightNodeClient

	settlement       *settlement.Manager
	commitmentEvents settlement.CommitmentEventStream
	output           output.OutputHandler

	metrics *metrics
}

func New(cfg Config, c Components) (*PartialNode, error) {
	if c.Executor == nil || c.DA == nil || c.Settlement == nil {
		return nil, errors.New("executor, DA client and settlement client are required")
	}
	def := DefaultConfig()
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = def.MaxInFlight
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = def.BatchTimeout
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = def.GCInterval
	}
	if cfg.Mempool.Capacity <= 0 {
		cfg.Mempool = def.Mempool
	}
	if cfg.Codec == nil {
		cfg.Codec = def.Codec
	}
	if c.Output == nil {
		c.Output = output.NewLogHandler()
	}
	if c.Clock == nil {
		c.Clock = &utils.Clock{}
	}

	m, err := newMetrics(c.Registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register node metrics: %w", err)
	}
	manager, events, err := settlement.NewManager(c.Settlement, c.Registerer)
	if err != nil {
		return nil, err
	}

	requests := make(chan mempool.ClientRequest, requestBuffer)
	inFlight := &atomic.Int64{}
	p, err := pipe.New(pipe.Config{MaxInFlight: cfg.MaxInFlight, GCInterval: cfg.GCInterval}, requests, inFlight, c.Clock, c.Registerer)
	if err != nil {
		return nil, err
	}

	return &PartialNode{
		cfg:              cfg,
		executor:         c.Executor,
		transactions:     make(chan *models.SignedTransaction, cfg.MaxInFlight),
		requests:         requests,
		core:             mempool.New(cfg.Mempool, c.Clock),
		pipe:             p,
		inFlight:         inFlight,
		da:               c.DA,
		settlement:       manager,
		commitmentEvents: events,
		output:           c.Output,
		metrics:          m,
	}, nil
}

// MempoolClient returns a client that submits to this node's transaction pipe.
func (n *PartialNode) MempoolClient() *mempool.Client {
	return mempool.NewClient(n.requests)
}

// InFlight is the number of admitted transactions not yet written to DA.
func (n *PartialNode) InFlight() int64 {
	return n.inFlight.Load()
}

// BlockHeadHeight reports the executor head.
func (n *PartialNode) BlockHeadHeight(ctx context.Context) (uint64, error) {
	return n.executor.BlockHeadHeight(ctx)
}

// RunExecutor runs the DA writer and the DA reader. The first failure cancels the other.
func (n *PartialNode) RunExecutor(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.WriteTransactionsToDA(ctx) })
	g.Go(func() error { return n.ReadBlocksFromDA(ctx) })
	return g.Wait()
}

// Run supervises every task of the node plus the given services until ctx is done or one fails.
func (n *PartialNode) Run(ctx context.Context, services ...Service) error {
	latest, err := n.output.GetLatestCommitment(ctx)
	if err != nil {
		return fmt.Errorf("failed to read latest recorded commitment: %w", err)
	}
	if latest != nil {
		slog.Info("Found recorded commitment", "height", latest.Height, "commitment", latest.Commitment)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.pipe.Run(ctx, n.core, n.transactions)
	})
	g.Go(func() error {
		return n.RunExecutor(ctx)
	})
	g.Go(func() error {
		return n.settlement.Run(ctx)
	})
	g.Go(func() error {
		return settlement.ReadCommitmentEvents(ctx, n.commitmentEvents, n.output)
	})
	for _, s := range services {
		g.Go(func() error { return s.Run(ctx) })
	}

	slog.Info("Node started", "max_in_flight", n.cfg.MaxInFlight, "codec", n.cfg.Codec.Format())
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		slog.Info("Node stopped")
		return nil
	}
	if err != nil {
		slog.Error("Node task failed", "error", err)
	}
	return err
}
