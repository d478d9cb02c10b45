package handlers

import (
	"log/slog"
	"net/http"

	"github.com/akawula/QualityMatic/sonarqube/aggregator"
)

// MeasuresRequest bounds one body at 10000 keys; the client still batches them under the API cap.
type MeasuresRequest struct {
	ProjectKeys []string `json:"project_keys" validate:"required,min=1,max=10000,dive,required"`
	MetricKeys  []string `json:"metric_keys" validate:"omitempty,dive,required"`
}

type AggregateRequest struct {
	ProjectKeys []string `json:"project_keys" validate:"required,min=1,max=10000,dive,required"`
}

// MeasuresHandler returns the measures index for the requested projects.
// Projects SonarQube does not know are absent from the response.
func MeasuresHandler(c SonarClient, l *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MeasuresRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}

		index, err := c.FetchMeasures(r.Context(), req.ProjectKeys, req.MetricKeys)
		if err != nil {
			writeUpstreamError(w, l, "Failed to fetch measures", err)
			return
		}
		writeJSON(w, http.StatusOK, index)
	}
}

// AggregateHandler averages the rating metrics of the requested projects.
func AggregateHandler(c SonarClient, l *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AggregateRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}

		result, err := aggregator.Aggregate(r.Context(), c, req.ProjectKeys)
		if err != nil {
			writeUpstreamError(w, l, "Failed to aggregate measures", err)
			return
		}
		l.Debug("Aggregated measures", "requested", result.Requested(), "with_measures", result.WithMeasures())
		writeJSON(w, http.StatusOK, result)
	}
}
