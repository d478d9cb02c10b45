package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/akawula/QualityMatic/sonarqube/client"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
func decodeAndValidate(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	return validate.Struct(dst)
}

// writeUpstreamError maps a SonarQube failure to a response status.
// The upstream body is logged, never returned to the caller.
func writeUpstreamError(w http.ResponseWriter, l *slog.Logger, msg string, err error) {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, context.Canceled):
		l.Info(msg, "error", err)
		writeJSONError(w, "Request cancelled", http.StatusServiceUnavailable)
	case errors.As(err, &apiErr):
		l.Warn(msg, "error", err, "upstream_status", apiErr.StatusCode)
		writeJSONError(w, fmt.Sprintf("SonarQube request failed with status %d", apiErr.StatusCode), http.StatusBadGateway)
	default:
		l.Error(msg, "error", err)
		writeJSONError(w, "SonarQube unreachable", http.StatusBadGateway)
	}
}
