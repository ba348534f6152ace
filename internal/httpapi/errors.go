package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"analysisd/internal/analysis"
	"analysisd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// admissionStatus maps admission errors to HTTP status codes.
func admissionStatus(err error) int {
	var he HTTPError
	switch {
	case analysis.IsEmptyInput(err):
		return http.StatusBadRequest
	case analysis.IsBusy(err):
		return http.StatusTooManyRequests
	case analysis.IsBackendNotReady(err), analysis.IsBackendInitializing(err), analysis.IsClosed(err):
		return http.StatusServiceUnavailable
	case errors.As(err, &he):
		return he.StatusCode()
	default:
		return http.StatusInternalServerError
	}
}
