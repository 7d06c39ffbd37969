// Package simchain simulates a Move chain that hosts both bridge modules behind the REST
// endpoints the movement adapter calls. Contract state is authoritative and kept in memory.
package simchain

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/sha3"

	"github.com/movementlabsxyz/suzuka/internal/bridge"
	"github.com/movementlabsxyz/suzuka/internal/bridge/movement"
	"github.com/movementlabsxyz/suzuka/internal/models"
)

const (
	DefaultChainID          = 4
	DefaultTimeLockDuration = 100
	DefaultAdmin            = "0x1"

	defaultEventLimit = 100
	shutdownTimeout   = 5 * time.Second
)

type Config struct {
	ModuleAddress                string
	Admin                        string
	ChainID                      uint8
	InitiatorTimeLockDuration    uint64
	CounterpartyTimeLockDuration uint64
	// BlockTime advances the ledger height on its own while Run is active. Zero leaves the height
	// to Advance.
	BlockTime time.Duration
}

type Server struct {
	cfg    Config
	router *chi.Mux

	mu      sync.Mutex
	chain   *chain
	version uint64
	txs     map[string]*movement.Transaction
}

func New(cfg Config) (*Server, error) {
	if cfg.ModuleAddress == "" {
		cfg.ModuleAddress = movement.DefaultModuleAddress
	}
	if cfg.Admin == "" {
		cfg.Admin = DefaultAdmin
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = DefaultChainID
	}
	if cfg.InitiatorTimeLockDuration == 0 {
		cfg.InitiatorTimeLockDuration = DefaultTimeLockDuration
	}
	if cfg.CounterpartyTimeLockDuration == 0 {
		cfg.CounterpartyTimeLockDuration = DefaultTimeLockDuration
	}
	moduleAddress, err := models.ParseAccountAddress(cfg.ModuleAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid module address: %w", err)
	}
	admin, err := models.ParseAccountAddress(cfg.Admin)
	if err != nil {
		return nil, fmt.Errorf("invalid admin address: %w", err)
	}

	s := &Server{
		cfg: cfg,
		chain: &chain{
			moduleAddress: moduleAddress.String(),
			admin:         admin,
			initiator:     newContract(movement.InitiatorModule, cfg.InitiatorTimeLockDuration, bridge.StateInitialized),
			counterparty:  newContract(movement.CounterpartyModule, cfg.CounterpartyTimeLockDuration, bridge.StateLocked),
		},
		txs: make(map[string]*movement.Transaction),
	}

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Get("/", s.handleLedgerInfo)
		r.Post("/transactions/entry", s.handleSubmit)
		r.Get("/transactions/by_hash/{hash}", s.handleGetTransaction)
		r.Post("/view", s.handleView)
		r.Get("/events/{module}", s.handleEvents)
		r.Post("/testing/advance", s.handleAdvance)
	})
	s.router = r
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Height() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain.height
}

// Advance moves the ledger height forward by n blocks and returns the new height.
func (s *Server) Advance(n uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chain.height += n
	return s.chain.height
}

// Run produces blocks every BlockTime until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.BlockTime <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(s.cfg.BlockTime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Advance(1)
		}
	}
}

// Serve serves the REST API on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Simulated bridge chain listening", "address", lis.Addr().String())
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("simulated chain server failed: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down simulated chain server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, movement.ErrorResponse{Message: err.Error(), ErrorCode: code})
}

func (s *Server) ledgerInfo() movement.LedgerInfo {
	return movement.LedgerInfo{
		ChainID:       s.cfg.ChainID,
		BlockHeight:   strconv.FormatUint(s.chain.height, 10),
		LedgerVersion: strconv.FormatUint(s.version, 10),
	}
}

func (s *Server) handleLedgerInfo(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	info := s.ledgerInfo()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	n := uint64(1)
	if q := r.URL.Query().Get("blocks"); q != "" {
		v, err := strconv.ParseUint(q, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, movement.ErrorCodeInvalidInput, err)
			return
		}
		n = v
	}
	s.mu.Lock()
	s.chain.height += n
	info := s.ledgerInfo()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) resolveModule(address, module string) (*contract, error) {
	addr, err := models.ParseAccountAddress(address)
	if err != nil {
		return nil, err
	}
	if addr.String() != s.chain.moduleAddress {
		return nil, fmt.Errorf("no modules published at %s", address)
	}
	ct, ok := s.chain.contract(module)
	if !ok {
		return nil, fmt.Errorf("unknown module %s", module)
	}
	return ct, nil
}

func transactionHash(req movement.EntryFunctionRequest, version uint64) string {
	d := sha3.New256()
	d.Write([]byte(req.Sender))
	d.Write([]byte(req.Function))
	for _, a := range req.Arguments {
		d.Write([]byte(a))
	}
	d.Write(binary.BigEndian.AppendUint64(nil, version))
	return "0x" + hex.EncodeToString(d.Sum(nil))
}

// handleSubmit executes the entry function immediately. Malformed requests are rejected with
// 400; aborted calls are committed as failed transactions.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req movement.EntryFunctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, movement.ErrorCodeInvalidInput, err)
		return
	}
	sender, err := models.ParseAccountAddress(req.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, movement.ErrorCodeInvalidInput, err)
		return
	}
	address, module, fn, err := movement.SplitFunctionID(req.Function)
	if err != nil {
		writeError(w, http.StatusBadRequest, movement.ErrorCodeInvalidInput, err)
		return
	}
	args := make([][]byte, len(req.Arguments))
	for i, a := range req.Arguments {
		if args[i], err = hex.DecodeString(strings.TrimPrefix(a, "0x")); err != nil {
			writeError(w, http.StatusBadRequest, movement.ErrorCodeInvalidInput, fmt.Errorf("argument %d: %w", i, err))
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.resolveModule(address, module); err != nil {
		writeError(w, http.StatusBadRequest, movement.ErrorCodeInvalidInput, err)
		return
	}

	s.version++
	tx := &movement.Transaction{
		Type:     movement.TypeUserTransaction,
		Hash:     transactionHash(req, s.version),
		Version:  strconv.FormatUint(s.version, 10),
		Success:  true,
		VMStatus: successVMStatus,
	}
	events, err := s.chain.execute(module, call{sender: sender, fn: fn, args: args})
	if err != nil {
		tx.Success = false
		tx.VMStatus = err.Error()
		slog.Debug("Entry function aborted", "function", req.Function, "status", tx.VMStatus)
	}
	tx.Events = events
	s.txs[tx.Hash] = tx
	writeJSON(w, http.StatusAccepted, movement.PendingTransaction{Hash: tx.Hash})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	s.mu.Lock()
	tx, ok := s.txs[hash]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, movement.ErrorCodeNotFound, fmt.Errorf("transaction %s not found", hash))
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	var req movement.ViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, movement.ErrorCodeInvalidInput, err)
		return
	}
	address, module, fn, err := movement.SplitFunctionID(req.Function)
	if err != nil {
		writeError(w, http.StatusBadRequest, movement.ErrorCodeInvalidInput, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ct, err := s.resolveModule(address, module)
	if err != nil {
		writeError(w, http.StatusBadRequest, movement.ErrorCodeInvalidInput, err)
		return
	}

	switch fn {
	case movement.FnGetTimeLockDuration:
		writeJSON(w, http.StatusOK, []any{strconv.FormatUint(ct.duration, 10)})
	case movement.FnBridgeTransfers:
		if len(req.Arguments) != 1 {
			writeError(w, http.StatusBadRequest, movement.ErrorCodeInvalidInput, fmt.Errorf("%s takes 1 argument", fn))
			return
		}
		id, err := bridge.ParseBridgeTransferID(req.Arguments[0])
		if err != nil {
			writeError(w, http.StatusBadRequest, movement.ErrorCodeInvalidInput, err)
			return
		}
		t, ok := ct.transfers[id]
		if !ok {
			writeError(w, http.StatusNotFound, movement.ErrorCodeNotFound, fmt.Errorf("bridge transfer %s not found", id))
			return
		}
		writeJSON(w, http.StatusOK, viewValues(t))
	default:
		writeError(w, http.StatusBadRequest, movement.ErrorCodeVMError, fmt.Errorf("%s is not a view function", req.Function))
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	address, module, ok := strings.Cut(chi.URLParam(r, "module"), "::")
	if !ok {
		writeError(w, http.StatusBadRequest, movement.ErrorCodeInvalidInput, errors.New("expected <address>::<module>"))
		return
	}
	start, limit := uint64(0), uint64(defaultEventLimit)
	var err error
	if q := r.URL.Query().Get("start"); q != "" {
		if start, err = strconv.ParseUint(q, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, movement.ErrorCodeInvalidInput, err)
			return
		}
	}
	if q := r.URL.Query().Get("limit"); q != "" {
		if limit, err = strconv.ParseUint(q, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, movement.ErrorCodeInvalidInput, err)
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ct, err := s.resolveModule(address, module)
	if err != nil {
		writeError(w, http.StatusNotFound, movement.ErrorCodeNotFound, err)
		return
	}
	events := []movement.EventRecord{}
	if start < uint64(len(ct.events)) {
		end := min(start+limit, uint64(len(ct.events)))
		events = append(events, ct.events[start:end]...)
	}
	writeJSON(w, http.StatusOK, events)
}
