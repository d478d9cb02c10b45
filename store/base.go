package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/akawula/QualityMatic/sonarqube/aggregator"
	"github.com/akawula/QualityMatic/sonarqube/client"
)

// ErrNoAggregation is returned by LatestAggregation before the first sync run.
var ErrNoAggregation = errors.New("no aggregation recorded")

// AggregationRecord is one stored aggregation.
type AggregationRecord struct {
	RunID             uuid.UUID                    `json:"runId"`
	ProjectsRequested int                          `json:"projectsRequested"`
	Result            aggregator.AggregationResult `json:"result"`
	RecordedAt        time.Time                    `json:"recordedAt"`
}

// Store keeps the history of sync runs. It is never read back to skip API calls.
type Store interface {
	Close()
	SaveSonarQubeProjects(ctx context.Context, projects []client.Project) error
	SaveSonarQubeMeasures(ctx context.Context, runID uuid.UUID, index client.ProjectMeasuresIndex, recordedAt time.Time) error
	SaveAggregation(ctx context.Context, runID uuid.UUID, requested int, result aggregator.AggregationResult, recordedAt time.Time) error
	LatestAggregation(ctx context.Context) (*AggregationRecord, error)
}
