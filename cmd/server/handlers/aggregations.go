package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/akawula/QualityMatic/store"
)

// AggregationStore reads stored sync runs.
type AggregationStore interface {
	LatestAggregation(ctx context.Context) (*store.AggregationRecord, error)
}

// LatestAggregationHandler returns the aggregation of the most recent sync run.
func LatestAggregationHandler(db AggregationStore, l *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := db.LatestAggregation(r.Context())
		if err != nil {
			if errors.Is(err, store.ErrNoAggregation) {
				writeJSONError(w, "No sync run recorded yet", http.StatusNotFound)
				return
			}
			l.Error("Failed to read latest aggregation", "error", err)
			writeJSONError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, record)
	}
}
