// internal/handlers/respond.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ammerola/stockflow/internal/core/domain"
)

const maxJSONBody = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps a domain error kind to an HTTP status
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondDomainError writes err with the status of its kind. Client errors
// carry the domain message; server errors log the cause and return failure.
func respondDomainError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error, failure string) {
	status := statusFor(err)
	if status < http.StatusInternalServerError {
		logger.DebugContext(ctx, "request rejected",
			slog.Int("status", status),
			slog.String("error", err.Error()))
		respondError(w, status, err.Error())
		return
	}

	logger.ErrorContext(ctx, failure,
		slog.Int("status", status),
		slog.String("error", err.Error()))
	if status == http.StatusBadGateway {
		respondError(w, status, "Upstream service unavailable")
		return
	}
	respondError(w, status, failure)
}

// decodeJSON reads a JSON body into dest. On failure it returns the status
// to respond with: 413 for a body over maxJSONBody, 400 otherwise.
func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) (int, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return http.StatusBadRequest, domain.NewValidationError("request body is required")
		}
		return http.StatusBadRequest, domain.NewValidationError("invalid request body: %v", err)
	}
	return http.StatusOK, nil
}

// pathID parses a positive int64 path value
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("%s must be a positive integer", name)
	}
	return id, nil
}

// queryID parses an optional positive int64 query parameter; absent is 0
func queryID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("%s must be a positive integer", name)
	}
	return id, nil
}
