// Package api exposes the node's transaction ingress over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/movementlabsxyz/suzuka/internal/codec"
	"github.com/movementlabsxyz/suzuka/internal/mempool"
	"github.com/movementlabsxyz/suzuka/internal/models"
)

const (
	DefaultListen          = "0.0.0.0:30731"
	DefaultShutdownTimeout = 5 * time.Second

	maxBodySize = 1 << 20
)

type Submitter interface {
	SubmitTransaction(ctx context.Context, tx *models.SignedTransaction) (mempool.Status, error)
	GetTransactionByHash(ctx context.Context, hash models.HashValue) (*models.SignedTransaction, error)
}

type HeadHeighter interface {
	BlockHeadHeight(ctx context.Context) (uint64, error)
}

type Config struct {
	Listen          string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

type Server struct {
	cfg       Config
	submitter Submitter
	head      HeadHeighter
	handler   http.Handler
}

type SubmitResponse struct {
	Hash    models.HashValue   `json:"hash"`
	Status  mempool.StatusCode `json:"status"`
	Message string             `json:"message,omitempty"`
}

type HealthResponse struct {
	Status     string `json:"status"`
	HeadHeight uint64 `json:"head_height"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func New(cfg Config, submitter Submitter, head HeadHeighter, gatherer prometheus.Gatherer) *Server {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	s := &Server{cfg: cfg, submitter: submitter, head: head}

	router := mux.NewRouter()
	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/transactions", s.submitTransaction).Methods(http.MethodPost)
	v1.HandleFunc("/transactions/{hash}", s.getTransaction).Methods(http.MethodGet)
	v1.HandleFunc("/health", s.health).Methods(http.MethodGet)
	if gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.handler = cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}).Handler(router)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, lis)
}

func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API listening", "address", lis.Addr().String())
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down API server: %w", err)
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

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusCode(code mempool.StatusCode) int {
	switch code {
	case mempool.Accepted:
		return http.StatusAccepted
	case mempool.MempoolIsFull:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// submitTransaction accepts a transaction in any codec format, JSON included.
func (s *Server) submitTransaction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	tx, err := codec.DecodeTransaction(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := tx.Verify(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	status, err := s.submitter.SubmitTransaction(r.Context(), tx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, statusCode(status.Code), SubmitResponse{
		Hash:    tx.Hash(),
		Status:  status.Code,
		Message: status.Message,
	})
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	hash, err := models.ParseHashValue(mux.Vars(r)["hash"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tx, err := s.submitter.GetTransactionByHash(r.Context(), hash)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if tx == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("transaction %s not found", hash))
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.head == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}
	height, err := s.head.BlockHeadHeight(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", HeadHeight: height})
}
