package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/voyagen/iptvcatalog/internal/catalog"
	"github.com/voyagen/iptvcatalog/internal/service"
	"github.com/voyagen/iptvcatalog/internal/store"
)

// APIError is the standard error envelope for all error responses.
type APIError struct {
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSyncInProgress), errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrInvalidFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrAllEndpointsFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// notFound rewords store.ErrNotFound for a named resource.
func notFound(err error, resource string, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s %d not found", resource, id)
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func writeErr(w http.ResponseWriter, r *http.Request, status int, err error) {
	log := zerolog.Ctx(r.Context())
	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, APIError{
		Status:    status,
		Error:     http.StatusText(status),
		Detail:    err.Error(),
		RequestID: requestID(r.Context()),
	})
}
