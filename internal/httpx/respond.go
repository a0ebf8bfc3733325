package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/safar/go-fulfillment/internal/courier"
	"github.com/safar/go-fulfillment/internal/fulfillment"
)

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// statusFor maps fulfillment failures onto HTTP status codes.
func statusFor(err error) int {
	var (
		invalid *fulfillment.InvalidItemError
		oos     *fulfillment.OutOfStockError
		remote  *courier.RemoteError
	)
	_, isValidation := validationFields(err)

	switch {
	case isValidation, errors.As(err, &invalid), errors.Is(err, fulfillment.ErrInvalidPincode):
		return http.StatusBadRequest
	case errors.As(err, &oos), errors.Is(err, fulfillment.ErrFulfillmentInProgress):
		return http.StatusConflict
	case errors.As(err, &remote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed", "path", r.URL.Path, "status", status, "error", err)

	body := errorBody{Error: err.Error()}
	if fields, ok := validationFields(err); ok {
		body = errorBody{Error: "validation failed", Fields: fields}
	}
	writeJSON(w, status, body)
}

// intQuery reads a positive integer query parameter, falling back to def.
func intQuery(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}
