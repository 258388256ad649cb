package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fintrack/internal/binder"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/normalizer"
	"fintrack/internal/store/memory"
)

func newTestServer(t *testing.T) (*Server, *ledger.Service) {
	t.Helper()
	st := memory.New()
	svc := ledger.NewService(st, nil)
	srv := NewServer(":0", svc, normalizer.New(st), binder.New(st, svc), func() []int {
		return []int{2025}
	})
	t.Cleanup(func() { srv.caches.Stop() })
	return srv, svc
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s returned %d", path, rec.Code)
		}
	}
}

func TestCreateTransaction(t *testing.T) {
	srv, svc := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"type":           "expense",
		"amount":         50.0,
		"category":       "Food",
		"description":    "groceries",
		"payment_method": "cash",
		"year":           2025,
		"month":          6,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	out := decodeEnvelope(t, rec)
	if out["success"] != true {
		t.Fatalf("expected success envelope: %v", out)
	}
	data := out["data"].(map[string]any)
	if data["amount"].(float64) != 5000 {
		t.Fatalf("amount = %v, want 5000 cents", data["amount"])
	}
	if data["payment_method"] != "cash" {
		t.Fatalf("payment_method = %v", data["payment_method"])
	}

	recMonth, err := svc.GetMonth(context.Background(), core.MonthKey{Year: 2025, Month: 6})
	if err != nil {
		t.Fatal(err)
	}
	if recMonth.Totals.Expenses.Cents != 5000 {
		t.Fatalf("expenses = %d, want 5000", recMonth.Totals.Expenses.Cents)
	}
}

func TestCreateTransactionMissingFields(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"type":   "expense",
		"amount": 50.0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
	out := decodeEnvelope(t, rec)
	if out["error"] != "Missing required fields" {
		t.Fatalf("error = %v", out["error"])
	}
}

func TestCreateTransactionUnknownKeys(t *testing.T) {
	srv, _ := newTestServer(t)

	base := map[string]any{
		"type":           "expense",
		"amount":         50.0,
		"category":       "Food",
		"description":    "x",
		"payment_method": "cash",
		"year":           2025,
		"month":          6,
	}

	bad := func(field string, value any) map[string]any {
		m := make(map[string]any, len(base))
		for k, v := range base {
			m[k] = v
		}
		m[field] = value
		return m
	}

	cases := []struct {
		name string
		body map[string]any
	}{
		{"unknown category", bad("category", "Groceries")},
		{"unknown payment method", bad("payment_method", "monzo")},
		{"bad type", bad("type", "transfer")},
		{"over-long description", bad("description", strings.Repeat("x", 201))},
	}
	for _, tc := range cases {
		rec := doJSON(t, srv, http.MethodPost, "/api/transactions", tc.body)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: status %d, want 422 (%s)", tc.name, rec.Code, rec.Body.String())
		}
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", bad("amount", -5))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("negative amount: status %d, want 422", rec.Code)
	}
}

func TestGetMonth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/months/2025/6", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var month core.LedgerRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &month); err != nil {
		t.Fatal(err)
	}
	if len(month.Balances) != len(core.PaymentMethods) {
		t.Fatalf("absent month must read as defaults: %+v", month)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/months/2025/13", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("month 13: status %d, want 400", rec.Code)
	}
}

func TestGetMonthCacheInvalidatedByMutation(t *testing.T) {
	srv, _ := newTestServer(t)

	// Prime the cache with the empty month.
	doJSON(t, srv, http.MethodGet, "/api/months/2025/6", nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"type":           "expense",
		"amount":         10.0,
		"category":       "Food",
		"description":    "x",
		"payment_method": "cash",
		"year":           2025,
		"month":          6,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %s", rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/months/2025/6", nil)
	var month core.LedgerRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &month); err != nil {
		t.Fatal(err)
	}
	if month.Totals.Expenses.Cents != 1000 {
		t.Fatalf("stale cache served after mutation: %+v", month.Totals)
	}
}

func TestDeleteTransaction(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"type":           "expense",
		"amount":         25.0,
		"category":       "Transport",
		"description":    "bus",
		"payment_method": "n26",
		"year":           2025,
		"month":          6,
	})
	out := decodeEnvelope(t, rec)
	id := out["data"].(map[string]any)["id"].(string)

	rec = doJSON(t, srv, http.MethodDelete, "/api/months/2025/6/transactions/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/months/2025/6/transactions/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status %d, want 404", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/months/2025/6", nil)
	var month core.LedgerRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &month); err != nil {
		t.Fatal(err)
	}
	if month.Totals.Expenses.Cents != 0 || month.Balances[core.MethodN26].Cents != 0 {
		t.Fatalf("aggregates not restored: %+v", month)
	}
}

func TestUpdateBalanceEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPut, "/api/months/2025/6/balances/n26", map[string]any{"value": -123.45})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/months/2025/6", nil)
	var month core.LedgerRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &month); err != nil {
		t.Fatal(err)
	}
	if month.Balances[core.MethodN26].Cents != -12345 {
		t.Fatalf("n26 = %d, want -12345", month.Balances[core.MethodN26].Cents)
	}

	rec = doJSON(t, srv, http.MethodPut, "/api/months/2025/6/balances/monzo", map[string]any{"value": 1})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown method: status %d, want 422", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPut, "/api/months/2025/6/balances/n26", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing value: status %d, want 400", rec.Code)
	}
}

func TestUpdateTotalEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPut, "/api/months/2025/6/totals/expenses", map[string]any{"value": 99.99})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPut, "/api/months/2025/6/totals/profit", map[string]any{"value": 1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown kind: status %d, want 400", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/months/2025/6", nil)
	var month core.LedgerRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &month); err != nil {
		t.Fatal(err)
	}
	if month.Totals.Expenses.Cents != 9999 || month.Totals.Net.Cents != -9999 {
		t.Fatalf("totals = %+v", month.Totals)
	}
}

func TestUpdateNetWorthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPut, "/api/months/2025/6/networth/house", map[string]any{"value": 250000})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/months/2025/6", nil)
	var month core.LedgerRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &month); err != nil {
		t.Fatal(err)
	}
	if month.NetWorth["house"].Cents != 25000000 {
		t.Fatalf("house = %d, want 25000000", month.NetWorth["house"].Cents)
	}
}

func TestSetupMonthsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/admin/setup-months", map[string]any{
		"from_year": 2025,
		"to_year":   2025,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	out := decodeEnvelope(t, rec)
	created := out["data"].(map[string]any)["created"].(float64)
	if created != 12 {
		t.Fatalf("created = %v, want 12", created)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/admin/setup-months", map[string]any{
		"from_year": 2026,
		"to_year":   2024,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("inverted range: status %d, want 400", rec.Code)
	}
}

func TestMigrateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/admin/migrate-payment-methods", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	var out migrateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if !out.Success {
		t.Fatal("expected success")
	}
	if len(out.Logs) == 0 || !strings.Contains(out.Logs[len(out.Logs)-1], "completed") {
		t.Fatalf("logs = %v", out.Logs)
	}
}

func TestMonthEventsStream(t *testing.T) {
	srv, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/months/2025/6/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	srv.Handler.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "data: ") {
		t.Fatalf("expected an initial event, got %q", body)
	}
	var month core.LedgerRecord
	payload := strings.TrimPrefix(strings.Split(body, "\n\n")[0], "data: ")
	if err := json.Unmarshal([]byte(payload), &month); err != nil {
		t.Fatalf("initial event is not a ledger record: %v", err)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/months/2025/6", nil)
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing X-Content-Type-Options header")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("missing X-Frame-Options header")
	}
}
