package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

type createTransactionRequest struct {
	Type          string       `json:"type"`
	Amount        *json.Number `json:"amount"`
	Category      string       `json:"category"`
	Description   string       `json:"description"`
	PaymentMethod string       `json:"payment_method"`
	Year          int          `json:"year"`
	Month         int          `json:"month"`
	Timestamp     int64        `json:"timestamp"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Type == "" || req.Amount == nil || req.Category == "" ||
		req.Description == "" || req.PaymentMethod == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	cents, err := core.ParseAmountToCents(*req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid amount")
		return
	}

	now := time.Now()
	key := core.MonthKey{Year: req.Year, Month: req.Month}
	if req.Year == 0 && req.Month == 0 {
		key = core.MonthKeyOf(now)
	}
	if err := key.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	txn, err := s.svc.AddTransaction(r.Context(), key, ledger.NewTransaction{
		Type:          req.Type,
		Amount:        core.Money{Cents: cents},
		Category:      req.Category,
		Description:   req.Description,
		PaymentMethod: req.PaymentMethod,
		Timestamp:     req.Timestamp,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "Add transaction failed", "month", key.String(), "error", err)
		writeError(w, statusForError(err), err.Error())
		return
	}

	s.invalidateMonth(key)
	writeSuccess(w, http.StatusCreated, "Transaction added successfully", txn)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	key, err := monthKeyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")

	txn, found, err := s.svc.GetTransaction(r.Context(), key, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Transaction not found")
		return
	}

	if err := s.svc.DeleteTransaction(r.Context(), key, txn); err != nil {
		slog.ErrorContext(r.Context(), "Delete transaction failed", "month", key.String(), "id", id, "error", err)
		writeError(w, statusForError(err), err.Error())
		return
	}

	s.invalidateMonth(key)
	writeSuccess(w, http.StatusOK, "Transaction deleted successfully", nil)
}

func (s *Server) handleGetMonth(w http.ResponseWriter, r *http.Request) {
	key, err := monthKeyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cacheKey := s.cacheKey(key)
	if rec, found := s.monthCache.Get(cacheKey); found {
		slog.DebugContext(r.Context(), "Month cache hit", "month", key.String())
		writeJSON(w, http.StatusOK, rec)
		return
	}

	rec, err := s.svc.GetMonth(r.Context(), key)
	if err != nil {
		slog.ErrorContext(r.Context(), "Get month failed", "month", key.String(), "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.monthCache.Set(cacheKey, rec)
	writeJSON(w, http.StatusOK, rec)
}

// handleMonthEvents streams ledger snapshots for one month as
// server-sent events. The first event is the current state; every store
// change under the month pushes a fresh snapshot.
func (s *Server) handleMonthEvents(w http.ResponseWriter, r *http.Request) {
	key, err := monthKeyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fl, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	sub, err := s.binder.Bind(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fl.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case rec := <-sub.C:
			payload, err := json.Marshal(rec)
			if err != nil {
				slog.ErrorContext(r.Context(), "Snapshot encode failed", "month", key.String(), "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			fl.Flush()
		}
	}
}

type updateValueRequest struct {
	Value *json.Number `json:"value"`
}

// parseValueBody reads the {"value": n} body shared by the inline-edit
// endpoints. Values are signed: balances can legitimately go negative.
func parseValueBody(w http.ResponseWriter, r *http.Request) (core.Money, bool) {
	var req updateValueRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return core.Money{}, false
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "Missing value")
		return core.Money{}, false
	}
	cents, err := core.ParseSignedDecimalToCents(req.Value.String())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid value")
		return core.Money{}, false
	}
	return core.Money{Cents: cents}, true
}

func (s *Server) handleUpdateBalance(w http.ResponseWriter, r *http.Request) {
	key, err := monthKeyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	value, ok := parseValueBody(w, r)
	if !ok {
		return
	}

	method := chi.URLParam(r, "method")
	if err := s.svc.UpdateBalance(r.Context(), key, method, value); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	s.invalidateMonth(key)
	writeSuccess(w, http.StatusOK, "Balance updated", nil)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	key, err := monthKeyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	value, ok := parseValueBody(w, r)
	if !ok {
		return
	}

	category := chi.URLParam(r, "category")
	if err := s.svc.UpdateCategoryTotal(r.Context(), key, category, value); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	s.invalidateMonth(key)
	writeSuccess(w, http.StatusOK, "Category total updated", nil)
}

func (s *Server) handleUpdateTotal(w http.ResponseWriter, r *http.Request) {
	key, err := monthKeyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	value, ok := parseValueBody(w, r)
	if !ok {
		return
	}

	kind := ledger.TotalKind(chi.URLParam(r, "kind"))
	if kind != ledger.TotalExpenses && kind != ledger.TotalRevenue {
		writeError(w, http.StatusBadRequest, "Unknown total kind")
		return
	}
	if err := s.svc.UpdateMonthlyTotal(r.Context(), key, kind, value); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	s.invalidateMonth(key)
	writeSuccess(w, http.StatusOK, "Monthly total updated", nil)
}

func (s *Server) handleUpdateNetWorth(w http.ResponseWriter, r *http.Request) {
	key, err := monthKeyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	value, ok := parseValueBody(w, r)
	if !ok {
		return
	}

	entry := chi.URLParam(r, "entry")
	if err := s.svc.UpdateNetWorthEntry(r.Context(), key, entry, value); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	s.invalidateMonth(key)
	writeSuccess(w, http.StatusOK, "Net worth entry updated", nil)
}

type migrateResponse struct {
	Success bool     `json:"success"`
	Logs    []string `json:"logs"`
}

func (s *Server) handleMigratePaymentMethods(w http.ResponseWriter, r *http.Request) {
	logs, err := s.norm.Run(r.Context(), s.normalizeYears())
	if err != nil {
		slog.ErrorContext(r.Context(), "Payment method migration failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, migrateResponse{Success: true, Logs: logs})
}

type setupMonthsRequest struct {
	FromYear int `json:"from_year"`
	ToYear   int `json:"to_year"`
}

func (s *Server) handleSetupMonths(w http.ResponseWriter, r *http.Request) {
	var req setupMonthsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FromYear < 1970 || req.ToYear > 2100 || req.FromYear > req.ToYear {
		writeError(w, http.StatusBadRequest, "Invalid year range")
		return
	}

	created, err := s.svc.EnsureMonths(r.Context(), req.FromYear, req.ToYear)
	if err != nil {
		slog.ErrorContext(r.Context(), "Setup months failed", "from", req.FromYear, "to", req.ToYear, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeSuccess(w, http.StatusOK, fmt.Sprintf("Initialized %d months", created), map[string]int{"created": created})
}
