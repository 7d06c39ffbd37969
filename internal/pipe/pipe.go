// Package pipe drains mempool client requests, admits transactions into the core mempool and
// forwards accepted ones to the DA writer.
package pipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/movementlabsxyz/suzuka/internal/mempool"
	"github.com/movementlabsxyz/suzuka/internal/models"
	"github.com/movementlabsxyz/suzuka/internal/utils"
)

const (
	DefaultMaxInFlight = 4096
	DefaultGCInterval  = 60 * time.Second
)

var ErrInputClosed = errors.New("mempool request channel closed")

// InternalError is a pipe failure that is not caused by the caller.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("transaction pipe: %s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

type Config struct {
	MaxInFlight int64
	GCInterval  time.Duration
}

// Pipe owns the receiving side of the mempool request channel.
type Pipe struct {
	cfg      Config
	requests <-chan mempool.ClientRequest
	inFlight *atomic.Int64
	clock    *utils.Clock
	metrics  *metrics
}

// New builds a pipe. inFlight is shared with the DA writer, which releases it after each batch.
func New(cfg Config, requests <-chan mempool.ClientRequest, inFlight *atomic.Int64, clock *utils.Clock, reg prometheus.Registerer) (*Pipe, error) {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = DefaultGCInterval
	}
	if clock == nil {
		clock = &utils.Clock{}
	}
	m, err := newMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register pipe metrics: %w", err)
	}
	return &Pipe{
		cfg:      cfg,
		requests: requests,
		inFlight: inFlight,
		clock:    clock,
		metrics:  m,
	}, nil
}

// Run ticks until the context is cancelled or the request channel closes.
func (p *Pipe) Run(ctx context.Context, core *mempool.CoreMempool, out chan<- *models.SignedTransaction) error {
	lastGC := p.clock.Time()
	for {
		if err := p.Tick(ctx, core, out, &lastGC); err != nil {
			return err
		}
	}
}

// Tick consumes at most one request. It returns early when the GC interval elapses with no
// request so that an idle mempool is still collected.
func (p *Pipe) Tick(ctx context.Context, core *mempool.CoreMempool, out chan<- *models.SignedTransaction, lastGC *time.Time) error {
	idle := time.NewTimer(p.cfg.GCInterval)
	defer idle.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case req, ok := <-p.requests:
		if !ok {
			return ErrInputClosed
		}
		if err := p.handle(ctx, core, out, req); err != nil {
			return err
		}
	case <-idle.C:
	}

	if p.clock.Since(*lastGC) >= p.cfg.GCInterval {
		evicted := core.GC()
		p.metrics.gcEvictions.Add(float64(evicted))
		*lastGC = p.clock.Time()
	}
	return nil
}

func (p *Pipe) handle(ctx context.Context, core *mempool.CoreMempool, out chan<- *models.SignedTransaction, req mempool.ClientRequest) error {
	switch req := req.(type) {
	case mempool.SubmitTransaction:
		status, err := p.submit(ctx, core, out, req.Tx)
		if err != nil {
			return err
		}
		p.metrics.submissions.WithLabelValues(status.Code.String()).Inc()
		select {
		case req.Reply <- mempool.SubmitResponse{Status: status}:
		default:
			slog.Debug("Submitter dropped reply", "hash", req.Tx.Hash(), "status", status.Code)
		}
	case mempool.GetTransactionByHash:
		select {
		case req.Reply <- core.GetByHash(req.Hash):
		default:
		}
	default:
		return &InternalError{Op: "handle request", Err: fmt.Errorf("unknown request type %T", req)}
	}
	return nil
}

func (p *Pipe) submit(ctx context.Context, core *mempool.CoreMempool, out chan<- *models.SignedTransaction, tx *models.SignedTransaction) (mempool.Status, error) {
	inFlight := p.inFlight.Load()
	if inFlight >= p.cfg.MaxInFlight {
		return mempool.NewStatus(mempool.MempoolIsFull).WithMessage("%d transactions in flight", inFlight), nil
	}

	status := core.AddTxn(tx, 0, tx.SequenceNumber, mempool.NonQualified, true)
	if status.Code != mempool.Accepted {
		slog.Warn("Mempool rejected transaction", "sender", tx.Sender, "sequence_number", tx.SequenceNumber, "status", status)
		return status, nil
	}

	// counted before the send: the writer may Release as soon as it receives
	p.metrics.inFlight.Set(float64(p.inFlight.Add(1)))
	select {
	case out <- tx:
	case <-ctx.Done():
		p.Release(1)
		return status, ctx.Err()
	}
	slog.Debug("Forwarded transaction to DA writer", "sender", tx.Sender, "sequence_number", tx.SequenceNumber)
	return status, nil
}

// Release marks n transactions as no longer in flight.
func (p *Pipe) Release(n int) {
	p.metrics.inFlight.Set(float64(p.inFlight.Add(-int64(n))))
}
