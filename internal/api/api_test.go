package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	http_helper "github.com/gruntwork-io/terratest/modules/http-helper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movementlabsxyz/suzuka/internal/codec"
	"github.com/movementlabsxyz/suzuka/internal/mempool"
	"github.com/movementlabsxyz/suzuka/internal/models"
)

type fakeSubmitter struct {
	mu     sync.Mutex
	status mempool.Status
	err    error
	txs    map[models.HashValue]*models.SignedTransaction
}

func (f *fakeSubmitter) SubmitTransaction(_ context.Context, tx *models.SignedTransaction) (mempool.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return mempool.Status{}, f.err
	}
	if f.status.Code == mempool.Accepted {
		f.txs[tx.Hash()] = tx
	}
	return f.status, nil
}

func (f *fakeSubmitter) GetTransactionByHash(_ context.Context, hash models.HashValue) (*models.SignedTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txs[hash], nil
}

type fixedHead uint64

func (h fixedHead) BlockHeadHeight(context.Context) (uint64, error) {
	return uint64(h), nil
}

func signedTransaction(t *testing.T) *models.SignedTransaction {
	t.Helper()
	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	tx := &models.SignedTransaction{
		Sender:         models.AccountAddressFromPublicKey(key.Public().(ed25519.PublicKey)),
		SequenceNumber: 1,
		Payload:        []byte("hello"),
		MaxGasAmount:   100,
		GasUnitPrice:   1,
		ChainID:        27,
	}
	tx.Sign(key)
	return tx
}

func encode(t *testing.T, format codec.Format, tx *models.SignedTransaction) []byte {
	t.Helper()
	data, err := codec.New(format).EncodeTransaction(tx)
	require.NoError(t, err)
	return data
}

func TestSubmitTransaction(t *testing.T) {
	tampered := signedTransaction(t)
	tampered.Payload = []byte("changed")

	tests := []struct {
		name       string
		status     mempool.Status
		err        error
		body       func(t *testing.T) []byte
		wantStatus int
		wantCode   string
	}{
		{
			name:       "accepted binary",
			status:     mempool.NewStatus(mempool.Accepted),
			body:       func(t *testing.T) []byte { return encode(t, codec.FormatBinary, signedTransaction(t)) },
			wantStatus: http.StatusAccepted,
			wantCode:   "Accepted",
		},
		{
			name:       "accepted json",
			status:     mempool.NewStatus(mempool.Accepted),
			body:       func(t *testing.T) []byte { return encode(t, codec.FormatJSON, signedTransaction(t)) },
			wantStatus: http.StatusAccepted,
			wantCode:   "Accepted",
		},
		{
			name:       "mempool full",
			status:     mempool.NewStatus(mempool.MempoolIsFull),
			body:       func(t *testing.T) []byte { return encode(t, codec.FormatZstd, signedTransaction(t)) },
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "MempoolIsFull",
		},
		{
			name:       "rejected",
			status:     mempool.NewStatus(mempool.SequenceNumberTooOld),
			body:       func(t *testing.T) []byte { return encode(t, codec.FormatBinary, signedTransaction(t)) },
			wantStatus: http.StatusBadRequest,
			wantCode:   "SequenceNumberTooOld",
		},
		{
			name:       "garbage",
			body:       func(*testing.T) []byte { return []byte{0x09, 0x01} },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad signature",
			status:     mempool.NewStatus(mempool.Accepted),
			body:       func(t *testing.T) []byte { return encode(t, codec.FormatBinary, tampered) },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "pipe unavailable",
			err:        context.DeadlineExceeded,
			body:       func(t *testing.T) []byte { return encode(t, codec.FormatBinary, signedTransaction(t)) },
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			submitter := &fakeSubmitter{status: tt.status, err: tt.err, txs: map[models.HashValue]*models.SignedTransaction{}}
			s := New(Config{}, submitter, nil, nil)

			req := httptest.NewRequest(http.MethodPost, "/v1/transactions", bytes.NewReader(tt.body(t)))
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantCode == "" {
				return
			}
			var resp map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp["status"])
			assert.Len(t, resp["hash"], 64)
		})
	}
}

func TestGetTransaction(t *testing.T) {
	tx := signedTransaction(t)
	submitter := &fakeSubmitter{txs: map[models.HashValue]*models.SignedTransaction{tx.Hash(): tx}}
	s := New(Config{}, submitter, nil, nil)

	tests := []struct {
		path string
		want int
	}{
		{"/v1/transactions/" + tx.Hash().String(), http.StatusOK},
		{"/v1/transactions/" + models.Sha3([]byte("missing")).String(), http.StatusNotFound},
		{"/v1/transactions/not-hex", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		assert.Equal(t, tt.want, rec.Code, tt.path)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/transactions/"+tx.Hash().String(), nil))
	var got models.SignedTransaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, tx.Hash(), got.Hash())
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "suzuka_test_total", Help: "test"}))
	s := New(Config{}, &fakeSubmitter{}, fixedHead(42), reg)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	http_helper.HttpGetWithRetryWithCustomValidation(t, srv.URL+"/v1/health", nil, 3, 100*time.Millisecond,
		func(status int, body string) bool {
			return status == http.StatusOK && strings.Contains(body, `"head_height":42`)
		})
	http_helper.HttpGetWithRetryWithCustomValidation(t, srv.URL+"/metrics", nil, 3, 100*time.Millisecond,
		func(status int, body string) bool {
			return status == http.StatusOK && strings.Contains(body, "suzuka_test_total")
		})
}

func TestCORS(t *testing.T) {
	s := New(Config{AllowedOrigins: []string{"https://wallet.example"}}, &fakeSubmitter{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("Origin", "https://wallet.example")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "https://wallet.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := New(Config{}, &fakeSubmitter{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	http_helper.HttpGetWithRetryWithCustomValidation(t, "http://"+lis.Addr().String()+"/v1/health", nil, 10, 50*time.Millisecond,
		func(status int, _ string) bool { return status == http.StatusOK })

	cancel()
	err = <-done
	assert.True(t, errors.Is(err, context.Canceled), err)
}
