// Package loadgen signs transactions and submits them to a node's API.
package loadgen

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/movementlabsxyz/suzuka/internal/api"
	"github.com/movementlabsxyz/suzuka/internal/codec"
	"github.com/movementlabsxyz/suzuka/internal/mempool"
	"github.com/movementlabsxyz/suzuka/internal/models"
	"github.com/movementlabsxyz/suzuka/internal/utils"
)

const (
	DefaultURL            = "http://127.0.0.1:30731"
	DefaultMaxConcurrency = 16
	DefaultMaxRetries     = 3
	DefaultExpiration     = 10 * time.Minute
)

type Config struct {
	URL            string
	Count          uint64
	MaxConcurrency int
	MaxRetries     uint
	Codec          *codec.Codec
	ChainID        uint8
	// Expiration is added to the current time to form each transaction's expiry.
	Expiration time.Duration
	Progress   bool
}

// Result counts submissions by admission status.
type Result struct {
	Accepted uint64
	Rejected map[mempool.StatusCode]uint64
}

type Generator struct {
	cfg  Config
	rest *resty.Client
}

func New(cfg Config) *Generator {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.New(codec.FormatBinary)
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = DefaultExpiration
	}
	return &Generator{
		cfg:  cfg,
		rest: resty.New().SetBaseURL(cfg.URL),
	}
}

// NewTransaction signs a transaction from a fresh account so every submission is independent.
func NewTransaction(chainID uint8, expiration time.Time, payload []byte) (*models.SignedTransaction, error) {
	pub, key, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	tx := &models.SignedTransaction{
		Sender:                  models.AccountAddressFromPublicKey(pub),
		Payload:                 payload,
		MaxGasAmount:            1_000,
		GasUnitPrice:            100,
		ExpirationTimestampSecs: uint64(expiration.Unix()),
		ChainID:                 chainID,
	}
	tx.Sign(key)
	return tx, nil
}

// Run submits cfg.Count transactions, at most cfg.MaxConcurrency at a time.
func (g *Generator) Run(ctx context.Context) (Result, error) {
	slog.Info("Submitting transactions", "count", g.cfg.Count, "url", g.cfg.URL, "codec", g.cfg.Codec.Format())
	var bar *progressbar.ProgressBar
	if g.cfg.Progress && g.cfg.Count > 1 {
		bar = progressbar.NewOptions64(
			int64(g.cfg.Count),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetDescription("Submitting transactions..."),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
		if err := bar.RenderBlank(); err != nil {
			return Result{}, fmt.Errorf("failed to render progress bar: %w", err)
		}
	}

	counts := make([]atomic.Uint64, mempool.UnknownStatus+1)
	if err := g.submitAll(ctx, bar, counts); err != nil {
		return Result{}, fmt.Errorf("failed to submit transactions: %w", err)
	}

	if bar != nil {
		if err := bar.Finish(); err != nil {
			return Result{}, fmt.Errorf("failed to finish progress bar: %w", err)
		}
	}

	res := Result{Accepted: counts[mempool.Accepted].Load(), Rejected: map[mempool.StatusCode]uint64{}}
	for code := mempool.MempoolIsFull; code <= mempool.UnknownStatus; code++ {
		if n := counts[code].Load(); n > 0 {
			res.Rejected[code] = n
		}
	}
	return res, nil
}

func (g *Generator) submitAll(ctx context.Context, bar *progressbar.ProgressBar, counts []atomic.Uint64) error {
	eg, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, g.cfg.MaxConcurrency)

	for i := uint64(0); i < g.cfg.Count; i++ {
		if ctx.Err() != nil {
			slog.Info("Submission cancelled")
			break
		}
		sem <- struct{}{}

		eg.Go(func() error {
			defer func() { <-sem }()

			tx, err := NewTransaction(g.cfg.ChainID, time.Now().Add(g.cfg.Expiration), []byte(fmt.Sprintf("load-%d", i)))
			if err != nil {
				return err
			}
			resp, err := g.Submit(ctx, tx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Error("Failed to submit transaction", "index", i, "error", err, "retries", g.cfg.MaxRetries)
				}
				return err
			}
			counts[min(resp.Status, mempool.UnknownStatus)].Add(1)

			if bar != nil {
				if err := bar.Add(1); err != nil {
					slog.Warn("Failed to update progress bar", "error", err)
				}
			}
			return nil
		})
	}

	return eg.Wait()
}

// Submit posts one transaction, retrying transport failures. Admission rejections are returned in
// the response, not as errors.
func (g *Generator) Submit(ctx context.Context, tx *models.SignedTransaction) (*api.SubmitResponse, error) {
	body, err := g.cfg.Codec.EncodeTransaction(tx)
	if err != nil {
		return nil, err
	}
	contentType := "application/octet-stream"
	if g.cfg.Codec.Format() == codec.FormatJSON {
		contentType = "application/json"
	}

	return utils.WithRetry(ctx, g.cfg.MaxRetries, "submit transaction", func(ctx context.Context) (*api.SubmitResponse, error) {
		var out api.SubmitResponse
		resp, err := g.rest.R().
			SetContext(ctx).
			SetHeader("Content-Type", contentType).
			SetBody(body).
			SetResult(&out).
			SetError(&out).
			Post("/v1/transactions")
		if err != nil {
			return nil, err
		}
		// admission outcomes carry the transaction hash; other failures only an error message
		switch resp.StatusCode() {
		case http.StatusAccepted:
			return &out, nil
		case http.StatusBadRequest, http.StatusServiceUnavailable:
			if !out.Hash.IsZero() {
				return &out, nil
			}
		}
		return nil, fmt.Errorf("unexpected response %s: %s", resp.Status(), resp.String())
	})
}
