package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/core"
)

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Response encode failed", "error", err)
	}
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, successResponse{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

// statusForError maps domain validation failures to client errors.
// Semantic rejections (unknown enum keys, bad amounts) are 422; malformed
// addressing is 400; anything else is a server fault.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrUnknownCategory),
		errors.Is(err, core.ErrUnknownPaymentMethod),
		errors.Is(err, core.ErrInvalidType),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrDescriptionTooLong):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrInvalidYear), errors.Is(err, core.ErrInvalidMonth):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// monthKeyParam reads {year}/{month} route parameters.
func monthKeyParam(r *http.Request) (core.MonthKey, error) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return core.MonthKey{}, core.ErrInvalidYear
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		return core.MonthKey{}, core.ErrInvalidMonth
	}
	key := core.MonthKey{Year: year, Month: month}
	if err := key.Validate(); err != nil {
		return core.MonthKey{}, err
	}
	return key, nil
}

// decodeBody parses a JSON request body into dest, keeping numbers exact
// so amounts never round-trip through float64.
func decodeBody(r *http.Request, dest any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(dest)
}
