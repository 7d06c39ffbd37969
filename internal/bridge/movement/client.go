// Package movement implements the bridge contracts against a Move chain's REST API.
package movement

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/movementlabsxyz/suzuka/internal/bridge"
	"github.com/movementlabsxyz/suzuka/internal/models"
)

const (
	DefaultTimeout        = 10 * time.Second
	DefaultConfirmTimeout = 30 * time.Second
	DefaultPollInterval   = 100 * time.Millisecond

	eventPageSize = 100
)

var (
	errNotFound   = errors.New("not found")
	errViewFailed = errors.New("view function failed")
)

type Config struct {
	URL            string
	ModuleAddress  string
	Signer         string
	Timeout        time.Duration
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// Client talks to one REST endpoint. It serves both bridge sides through Initiator and
// Counterparty.
type Client struct {
	cfg           Config
	rest          *resty.Client
	moduleAddress string
	signer        models.AccountAddress
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.ModuleAddress == "" {
		cfg.ModuleAddress = DefaultModuleAddress
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	moduleAddress, err := models.ParseAccountAddress(cfg.ModuleAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid module address: %w", err)
	}
	signer, err := models.ParseAccountAddress(cfg.Signer)
	if err != nil {
		return nil, fmt.Errorf("invalid signer address: %w", err)
	}

	rest := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		cfg:           cfg,
		rest:          rest,
		moduleAddress: moduleAddress.String(),
		signer:        signer,
	}, nil
}

func (c *Client) URL() string {
	return c.cfg.URL
}

func (c *Client) Signer() bridge.Address {
	return bridge.Address(c.signer[:])
}

func (c *Client) Initiator() *InitiatorClient {
	return &InitiatorClient{c: c}
}

func (c *Client) Counterparty() *CounterpartyClient {
	return &CounterpartyClient{c: c}
}

// BlockHeight returns the chain's current block height from the ledger info.
func (c *Client) BlockHeight(ctx context.Context) (uint64, error) {
	var info LedgerInfo
	resp, err := c.rest.R().SetContext(ctx).SetResult(&info).Get("/v1")
	if err != nil {
		return 0, fmt.Errorf("failed to get ledger info: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("failed to get ledger info: %s", resp.Status())
	}
	height, err := strconv.ParseUint(info.BlockHeight, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid block height %q: %w", info.BlockHeight, err)
	}
	return height, nil
}

// Events returns the events emitted by one side's module, starting at sequence number start.
func (c *Client) Events(ctx context.Context, side bridge.Side, start uint64) ([]bridge.Event, error) {
	var records []EventRecord
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("module", c.moduleAddress+"::"+ModuleFor(side)).
		SetQueryParams(map[string]string{
			"start": strconv.FormatUint(start, 10),
			"limit": strconv.Itoa(eventPageSize),
		}).
		SetResult(&records).
		Get("/v1/events/{module}")
	if err != nil {
		return nil, fmt.Errorf("failed to get %s events: %w", side, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to get %s events: %s", side, resp.Status())
	}

	events := make([]bridge.Event, 0, len(records))
	for _, rec := range records {
		ev, ok, err := decodeEvent(rec)
		if err != nil {
			return nil, err
		}
		if !ok {
			slog.Debug("Skipping unknown event", "type", rec.Type)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func decodeEvent(rec EventRecord) (bridge.Event, bool, error) {
	kind, ok := EventKindOf(rec.Type)
	if !ok {
		return bridge.Event{}, false, nil
	}
	seq, err := strconv.ParseUint(rec.SequenceNumber, 10, 64)
	if err != nil {
		return bridge.Event{}, false, fmt.Errorf("invalid event sequence number %q: %w", rec.SequenceNumber, err)
	}
	ev := bridge.Event{Sequence: seq, Kind: kind}
	if ev.Details.ID, err = bridge.ParseBridgeTransferID(rec.Data.BridgeTransferID); err != nil {
		return bridge.Event{}, false, err
	}
	d := rec.Data
	if d.Initiator != "" {
		if ev.Details.Initiator, err = bridge.ParseAddress(d.Initiator); err != nil {
			return bridge.Event{}, false, err
		}
	}
	if d.Recipient != "" {
		if ev.Details.Recipient, err = bridge.ParseAddress(d.Recipient); err != nil {
			return bridge.Event{}, false, err
		}
	}
	if d.HashLock != "" {
		if ev.Details.HashLock, err = bridge.ParseHashLock(d.HashLock); err != nil {
			return bridge.Event{}, false, err
		}
	}
	if d.Amount != "" {
		v, err := strconv.ParseUint(d.Amount, 10, 64)
		if err != nil {
			return bridge.Event{}, false, fmt.Errorf("invalid event amount %q: %w", d.Amount, err)
		}
		ev.Details.Amount = bridge.Moveth(v)
	}
	if d.TimeLock != "" {
		v, err := strconv.ParseUint(d.TimeLock, 10, 64)
		if err != nil {
			return bridge.Event{}, false, fmt.Errorf("invalid event time lock %q: %w", d.TimeLock, err)
		}
		ev.Details.TimeLock = bridge.TimeLock(v)
	}
	if d.PreImage != "" {
		if ev.Secret, err = bridge.ParsePreImage(d.PreImage); err != nil {
			return bridge.Event{}, false, err
		}
	}
	return ev, true, nil
}

func hexArgs(args [][]byte) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = "0x" + hex.EncodeToString(a)
	}
	return out
}

func apiError(resp *resty.Response) error {
	if e, ok := resp.Error().(*ErrorResponse); ok && e.Message != "" {
		return fmt.Errorf("%s: %s (%s)", resp.Status(), e.Message, e.ErrorCode)
	}
	return fmt.Errorf("%s: %s", resp.Status(), resp.String())
}

// submit sends an entry function call and waits until the chain has executed it.
func (c *Client) submit(ctx context.Context, module, fn string, args ...[]byte) (*Transaction, error) {
	req := EntryFunctionRequest{
		Sender:        c.signer.String(),
		Function:      FunctionID(c.moduleAddress, module, fn),
		TypeArguments: []string{},
		Arguments:     hexArgs(args),
	}
	var pending PendingTransaction
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&pending).
		SetError(&ErrorResponse{}).
		Post("/v1/transactions/entry")
	if err != nil {
		return nil, fmt.Errorf("failed to submit %s: %w", req.Function, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to submit %s: %w", req.Function, apiError(resp))
	}
	slog.Debug("Submitted entry function", "function", req.Function, "hash", pending.Hash)

	tx, err := c.waitForTransaction(ctx, pending.Hash)
	if err != nil {
		return nil, err
	}
	if !tx.Success {
		return tx, fmt.Errorf("transaction %s failed: %s", tx.Hash, tx.VMStatus)
	}
	return tx, nil
}

func (c *Client) waitForTransaction(ctx context.Context, hash string) (*Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		var tx Transaction
		resp, err := c.rest.R().
			SetContext(ctx).
			SetPathParam("hash", hash).
			SetResult(&tx).
			SetError(&ErrorResponse{}).
			Get("/v1/transactions/by_hash/{hash}")
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, fmt.Errorf("transaction %s not confirmed: %w", hash, ctx.Err())
			}
			return nil, fmt.Errorf("failed to get transaction %s: %w", hash, err)
		case resp.StatusCode() == http.StatusNotFound:
		case resp.IsError():
			return nil, fmt.Errorf("failed to get transaction %s: %w", hash, apiError(resp))
		case tx.Type != TypePendingTransaction:
			return &tx, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("transaction %s not confirmed: %w", hash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// view calls a view function. A missing resource yields errNotFound, a rejected call
// errViewFailed.
func (c *Client) view(ctx context.Context, module, fn string, args ...string) ([]json.RawMessage, error) {
	req := ViewRequest{
		Function:      FunctionID(c.moduleAddress, module, fn),
		TypeArguments: []string{},
		Arguments:     args,
	}
	if req.Arguments == nil {
		req.Arguments = []string{}
	}
	var values []json.RawMessage
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&values).
		SetError(&ErrorResponse{}).
		Post("/v1/view")
	if err != nil {
		return nil, fmt.Errorf("failed to call view %s: %w", req.Function, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %s: %w", errViewFailed, req.Function, apiError(resp))
	}
	return values, nil
}

// valueString accepts a JSON string or a bare JSON number.
func valueString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("expected string or number, got %s", raw)
	}
	return n.String(), nil
}

func valueU64(raw json.RawMessage) (uint64, error) {
	s, err := valueString(raw)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(s, 10, 64)
}

func viewErrorKind(err error) bridge.ErrorKind {
	if errors.Is(err, errViewFailed) {
		return bridge.FunctionViewError
	}
	return bridge.CallError
}

type errorFunc func(bridge.ErrorKind, error) error

func (c *Client) transferDetails(ctx context.Context, module string, id bridge.BridgeTransferID, fail errorFunc) (*bridge.BridgeTransferDetails, error) {
	values, err := c.view(ctx, module, FnBridgeTransfers, id.String())
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fail(viewErrorKind(err), err)
	}
	if len(values) != DetailsLength {
		return nil, fail(bridge.InvalidResponseLength, fmt.Errorf("got %d values, want %d", len(values), DetailsLength))
	}

	strs := make([]string, 5)
	for i := range strs {
		if strs[i], err = valueString(values[i]); err != nil {
			return nil, fail(bridge.SerializationError, fmt.Errorf("value %d: %w", i, err))
		}
	}
	details := &bridge.BridgeTransferDetails{ID: id}
	if details.Initiator, err = bridge.ParseAddress(strs[0]); err != nil {
		return nil, fail(bridge.SerializationError, err)
	}
	if details.Recipient, err = bridge.ParseAddress(strs[1]); err != nil {
		return nil, fail(bridge.SerializationError, err)
	}
	amount, err := strconv.ParseUint(strs[2], 10, 64)
	if err != nil {
		return nil, fail(bridge.SerializationError, fmt.Errorf("invalid amount: %w", err))
	}
	details.Amount = bridge.Moveth(amount)
	if details.HashLock, err = bridge.ParseHashLock(strs[3]); err != nil {
		return nil, fail(bridge.SerializationError, err)
	}
	timeLock, err := strconv.ParseUint(strs[4], 10, 64)
	if err != nil {
		return nil, fail(bridge.SerializationError, fmt.Errorf("invalid time lock: %w", err))
	}
	details.TimeLock = bridge.TimeLock(timeLock)
	state, err := valueU64(values[5])
	if err != nil {
		return nil, fail(bridge.SerializationError, fmt.Errorf("invalid state: %w", err))
	}
	if details.State, err = bridge.TransferStateFromUint(state); err != nil {
		return nil, fail(bridge.SerializationError, err)
	}
	return details, nil
}

func (c *Client) timeLockDuration(ctx context.Context, module string, fail errorFunc) (uint64, error) {
	values, err := c.view(ctx, module, FnGetTimeLockDuration)
	if err != nil {
		return 0, fail(viewErrorKind(err), err)
	}
	if len(values) != 1 {
		return 0, fail(bridge.InvalidResponseLength, fmt.Errorf("got %d values, want 1", len(values)))
	}
	d, err := valueU64(values[0])
	if err != nil {
		return 0, fail(bridge.SerializationError, err)
	}
	return d, nil
}
