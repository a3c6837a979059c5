package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/angelmondragon/payrecon-backend/internal/ledger"
	"github.com/angelmondragon/payrecon-backend/internal/payments"
	"github.com/angelmondragon/payrecon-backend/internal/reconciliation"
	"github.com/angelmondragon/payrecon-backend/pkg/db"
	"github.com/angelmondragon/payrecon-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type routerHarness struct {
	conn    *gorm.DB
	router  http.Handler
	queue   reconciliation.Queue
	matcher *reconciliation.StaticMatcher
}

func newRouterHarness(t *testing.T) *routerHarness {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// a second pooled connection would see its own empty in-memory database
	sqlDB.SetMaxOpenConns(1)

	statements := []string{`
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  idempotency_key TEXT NOT NULL UNIQUE,
  account_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  status TEXT NOT NULL DEFAULT 'pending',
  description TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS recon_jobs (
  id TEXT PRIMARY KEY,
  payment_id TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'pending',
  attempts INTEGER NOT NULL DEFAULT 0,
  lease_holder TEXT,
  lease_expires_at DATETIME,
  next_attempt_at DATETIME,
  last_error TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS reconciliation_results (
  id TEXT PRIMARY KEY,
  payment_id TEXT NOT NULL,
  recon_job_id TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL,
  matched INTEGER NOT NULL,
  discrepancy_amount NUMERIC,
  notes TEXT,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS ledger_entries (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  payment_id TEXT NOT NULL,
  entry_type TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  balance_after NUMERIC NOT NULL,
  created_at DATETIME
);`}
	for _, stmt := range statements {
		require.NoError(t, conn.Exec(stmt).Error)
	}

	client := db.NewFromGorm(conn)
	logg := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})

	queue, err := reconciliation.NewQueue(reconciliation.QueueParams{
		DB:          conn,
		MaxAttempts: 3,
		BackoffBase: 2 * time.Second,
		BackoffCap:  5 * time.Minute,
		Now:         time.Now,
	})
	require.NoError(t, err)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{Repo: ledger.NewRepository(conn)})
	require.NoError(t, err)

	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Tx:     client,
		Repo:   payments.NewRepository(conn),
		Jobs:   queue,
		Recon:  queue,
		Logger: logg,
	})
	require.NoError(t, err)

	matcher := &reconciliation.StaticMatcher{Records: map[string]decimal.Decimal{}}
	router := NewRouter(nil, logg, client, paymentsSvc, ledgerSvc)

	return &routerHarness{conn: conn, router: router, queue: queue, matcher: matcher}
}

func (h *routerHarness) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	return resp
}

// runWorker processes exactly one claimable job synchronously.
func (h *routerHarness) runWorker(t *testing.T) {
	t.Helper()

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{Repo: ledger.NewRepository(h.conn)})
	require.NoError(t, err)

	worker, err := reconciliation.NewWorker(reconciliation.WorkerParams{
		ID:                "router-test-worker",
		Queue:             h.queue,
		Payments:          payments.NewRepository(h.conn),
		Ledger:            ledgerSvc,
		Matcher:           h.matcher,
		Tx:                db.NewFromGorm(h.conn),
		Logger:            logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard}),
		PollInterval:      10 * time.Millisecond,
		LeaseDuration:     30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, worker.ProcessOne(context.Background()))
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	return envelope.Data
}

func TestHealthLive(t *testing.T) {
	h := newRouterHarness(t)

	resp := h.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ok", decodeData(t, resp)["status"])
}

func TestHealthReady(t *testing.T) {
	h := newRouterHarness(t)

	resp := h.do(t, http.MethodGet, "/health/ready", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ready", decodeData(t, resp)["status"])
}

func TestCreatePaymentRequiresIdempotencyKey(t *testing.T) {
	h := newRouterHarness(t)

	resp := h.do(t, http.MethodPost, "/payments", map[string]any{
		"accountId": "acct-1",
		"amount":    "250.00",
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Equal(t, "VALIDATION_ERROR", envelope.Error.Code)
}

func TestCreatePaymentRejectsUnknownFields(t *testing.T) {
	h := newRouterHarness(t)

	resp := h.do(t, http.MethodPost, "/payments", map[string]any{
		"accountId": "acct-1",
		"amount":    "250.00",
		"bogus":     true,
	}, map[string]string{"Idempotency-Key": "key-unknown-fields"})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestPaymentLifecycle(t *testing.T) {
	h := newRouterHarness(t)
	headers := map[string]string{"Idempotency-Key": "key-lifecycle-1"}
	body := map[string]any{
		"accountId":   "acct-lifecycle",
		"amount":      "250.00",
		"description": "invoice 42",
	}

	created := h.do(t, http.MethodPost, "/payments", body, headers)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	createdData := decodeData(t, created)
	paymentID, ok := createdData["id"].(string)
	require.True(t, ok)
	assert.Equal(t, "pending", createdData["status"])
	assert.Equal(t, "USD", createdData["currency"])

	// replaying the same key returns the stored payment with a 200
	replayed := h.do(t, http.MethodPost, "/payments", body, headers)
	require.Equal(t, http.StatusOK, replayed.Code)
	assert.Equal(t, paymentID, decodeData(t, replayed)["id"])

	// before reconciliation runs the detail view shows a null result
	detail := h.do(t, http.MethodGet, "/payments/"+paymentID, nil, nil)
	require.Equal(t, http.StatusOK, detail.Code)
	detailData := decodeData(t, detail)
	assert.Nil(t, detailData["reconciliation"])

	h.runWorker(t)

	detail = h.do(t, http.MethodGet, "/payments/"+paymentID, nil, nil)
	require.Equal(t, http.StatusOK, detail.Code)
	detailData = decodeData(t, detail)
	payment, ok := detailData["payment"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "reconciled", payment["status"])
	require.NotNil(t, detailData["reconciliation"])

	balance := h.do(t, http.MethodGet, "/accounts/acct-lifecycle/balance", nil, nil)
	require.Equal(t, http.StatusOK, balance.Code)
	balanceData := decodeData(t, balance)
	assert.Equal(t, "250.00", balanceData["balance"])
	assert.Equal(t, "USD", balanceData["currency"])
	assert.Equal(t, "acct-lifecycle", balanceData["accountId"])
}

func TestAccountBalanceDefaultsToZero(t *testing.T) {
	h := newRouterHarness(t)

	resp := h.do(t, http.MethodGet, "/accounts/acct-empty/balance", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "0.00", decodeData(t, resp)["balance"])
}

func TestGetPaymentNotFound(t *testing.T) {
	h := newRouterHarness(t)

	resp := h.do(t, http.MethodGet, "/payments/7e0805e6-2d2c-4365-9d3d-a0493ef35e95", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestListPaymentsPaginates(t *testing.T) {
	h := newRouterHarness(t)

	for i := 0; i < 3; i++ {
		resp := h.do(t, http.MethodPost, "/payments", map[string]any{
			"accountId": "acct-list",
			"amount":    "10.00",
		}, map[string]string{"Idempotency-Key": fmt.Sprintf("key-list-%d", i)})
		require.Equal(t, http.StatusCreated, resp.Code)
		time.Sleep(2 * time.Millisecond)
	}

	first := h.do(t, http.MethodGet, "/payments?accountId=acct-list&limit=2", nil, nil)
	require.Equal(t, http.StatusOK, first.Code)
	firstData := decodeData(t, first)
	entries, ok := firstData["payments"].([]any)
	require.True(t, ok)
	assert.Len(t, entries, 2)
	cursor, ok := firstData["nextCursor"].(string)
	require.True(t, ok)
	require.NotEmpty(t, cursor)

	second := h.do(t, http.MethodGet, "/payments?accountId=acct-list&limit=2&cursor="+url.QueryEscape(cursor), nil, nil)
	require.Equal(t, http.StatusOK, second.Code)
	secondData := decodeData(t, second)
	entries, ok = secondData["payments"].([]any)
	require.True(t, ok)
	assert.Len(t, entries, 1)
	assert.Empty(t, secondData["nextCursor"])
}

func TestListPaymentsRejectsBadLimit(t *testing.T) {
	h := newRouterHarness(t)

	for _, limit := range []string{"abc", "-1", "0"} {
		resp := h.do(t, http.MethodGet, "/payments?limit="+limit, nil, nil)
		require.Equal(t, http.StatusBadRequest, resp.Code, "limit=%s", limit)

		var envelope struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
		assert.Equal(t, "VALIDATION_ERROR", envelope.Error.Code)
	}
}
