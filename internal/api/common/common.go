// Package common provides shared HTTP utility functions for API handlers.
package common

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jmgilman/go/errors"
)

const maxBodyBytes = 1 << 20

// WriteJSONResponse writes a JSON response with the given data
func WriteJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// WriteErrorResponse writes an error response with an explicit code and message
func WriteErrorResponse(w http.ResponseWriter, code errors.ErrorCode, message string) {
	WriteJSONResponse(w, errors.ToJSON(errors.New(code, message)), StatusFromCode(code))
}

// WriteError writes err as a structured error body. The status follows the
// error code; errors without a known code become 500 responses whose message
// does not expose the cause.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errors.ToJSON(err)
	status := StatusFromCode(errors.GetCode(err))
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		resp = &errors.ErrorResponse{
			Code:           string(errors.CodeInternal),
			Message:        "internal server error",
			Classification: resp.Classification,
		}
	}
	WriteJSONResponse(w, resp, status)
}

// StatusFromCode maps an error code to an HTTP status
func StatusFromCode(code errors.ErrorCode) int {
	switch code {
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeAlreadyExists, errors.CodeConflict:
		return http.StatusConflict
	case errors.CodeUnauthorized:
		return http.StatusUnauthorized
	case errors.CodeForbidden:
		return http.StatusForbidden
	case errors.CodeInvalidInput:
		return http.StatusBadRequest
	case errors.CodeNotImplemented:
		return http.StatusNotImplemented
	case errors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON decodes the request body into v, rejecting unknown fields.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "invalid request body")
	}
	return nil
}

// QueryInt parses an optional non-negative integer query parameter.
func QueryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(errors.CodeInvalidInput, fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return n, nil
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New(errors.CodeInvalidInput, fmt.Sprintf("%s must be a boolean", name))
	}
	return b, nil
}
