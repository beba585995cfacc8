package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfsuite/internal/gateway"
	"github.com/local/pdfsuite/internal/jobs"
	"github.com/local/pdfsuite/internal/pdf"
	"github.com/local/pdfsuite/internal/storage"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps an error to an HTTP status and a short kind label.
func statusFor(err error) (int, string) {
	var pe *pdf.Error
	if errors.As(err, &pe) {
		switch pe.Kind {
		case pdf.KindValidation, pdf.KindMinimumInput:
			return http.StatusBadRequest, pe.Kind.String()
		case pdf.KindParse:
			return http.StatusUnprocessableEntity, pe.Kind.String()
		case pdf.KindCapability:
			return http.StatusForbidden, pe.Kind.String()
		case pdf.KindIO:
			return http.StatusBadGateway, pe.Kind.String()
		}
	}

	var maxErr *http.MaxBytesError
	var httpErr *gateway.HTTPError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, jobs.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, jobs.ErrNotReady), errors.Is(err, jobs.ErrFinished):
		return http.StatusConflict, "conflict"
	case errors.Is(err, jobs.ErrTooManyJobs), gateway.IsRateLimited(err):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, jobs.ErrClosed), errors.Is(err, gateway.ErrNotConfigured), gateway.IsBreakerOpen(err):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, gateway.ErrInvalidTask):
		return http.StatusBadRequest, "validation"
	case errors.As(err, &httpErr):
		return http.StatusBadGateway, "upstream"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	ev := log.Warn()
	if status >= 500 {
		ev = log.Error()
	}
	ev.Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("request failed")

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Kind: kind})
}
