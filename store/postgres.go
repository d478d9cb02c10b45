package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akawula/QualityMatic/sonarqube/aggregator"
	"github.com/akawula/QualityMatic/sonarqube/client"
)

const (
	upsertProjectSQL = `INSERT INTO sonarqube_projects (project_key, name, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (project_key) DO UPDATE SET name = EXCLUDED.name, updated_at = now()`

	insertMeasureSQL = `INSERT INTO sonarqube_measures (run_id, project_key, metric_key, value, recorded_at)
VALUES ($1, $2, $3, $4, $5)`

	insertAggregationSQL = `INSERT INTO sonarqube_aggregations (run_id, projects_requested, projects_with_measures, result, recorded_at)
VALUES ($1, $2, $3, $4, $5)`

	latestAggregationSQL = `SELECT run_id, projects_requested, result, recorded_at FROM sonarqube_aggregations
ORDER BY recorded_at DESC LIMIT 1`
)

// DBPool is the part of pgxpool.Pool the store uses.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

type Postgres struct {
	connPool DBPool
	Logger   *slog.Logger
}

// NewPostgres connects to the database described by dsn and checks the connection.
func NewPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return newPostgres(pool, logger), nil
}

func newPostgres(pool DBPool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Postgres{connPool: pool, Logger: logger}
}

// Close closes the database connection pool.
func (p *Postgres) Close() {
	p.connPool.Close()
}

// SaveSonarQubeProjects upserts project metadata in one transaction, ordered by key.
func (p *Postgres) SaveSonarQubeProjects(ctx context.Context, projects []client.Project) (err error) {
	sorted := append([]client.Project(nil), projects...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	tx, err := p.connPool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback tx: %w", rollbackErr))
			}
		}
	}()

	for _, project := range sorted {
		if _, err := tx.Exec(ctx, upsertProjectSQL, project.Key, project.Name); err != nil {
			p.Logger.Error("Failed to save project", "project_key", project.Key, "error", err)
			return fmt.Errorf("upsert sonarqube_projects %s: %w", project.Key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	p.Logger.Debug("Saved projects", "count", len(sorted))
	return nil
}

// SaveSonarQubeMeasures stores every measure of index under runID in one transaction.
func (p *Postgres) SaveSonarQubeMeasures(ctx context.Context, runID uuid.UUID, index client.ProjectMeasuresIndex, recordedAt time.Time) (err error) {
	keys := make([]string, 0, len(index))
	for key := range index {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	tx, err := p.connPool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback tx: %w", rollbackErr))
			}
		}
	}()

	rows := 0
	for _, key := range keys {
		measures := index[key]
		metrics := make([]string, 0, len(measures))
		for metric := range measures {
			metrics = append(metrics, metric)
		}
		sort.Strings(metrics)

		for _, metric := range metrics {
			if _, err := tx.Exec(ctx, insertMeasureSQL, runID.String(), key, metric, measures[metric], recordedAt); err != nil {
				p.Logger.Error("Failed to save measure", "project_key", key, "metric", metric, "error", err)
				return fmt.Errorf("insert sonarqube_measures %s/%s: %w", key, metric, err)
			}
			rows++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	p.Logger.Debug("Saved measures", "run_id", runID, "projects", len(keys), "rows", rows)
	return nil
}

// SaveAggregation stores an aggregation result as JSON next to its counts. requested is passed
// separately because an aggregation with no resolved project is an empty map.
func (p *Postgres) SaveAggregation(ctx context.Context, runID uuid.UUID, requested int, result aggregator.AggregationResult, recordedAt time.Time) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal aggregation: %w", err)
	}

	_, err = p.connPool.Exec(ctx, insertAggregationSQL, runID.String(), requested, result.WithMeasures(), string(payload), recordedAt)
	if err != nil {
		return fmt.Errorf("insert sonarqube_aggregations: %w", err)
	}
	return nil
}

// LatestAggregation returns the most recently recorded aggregation.
func (p *Postgres) LatestAggregation(ctx context.Context) (*AggregationRecord, error) {
	var (
		runID      string
		requested  int
		raw        []byte
		recordedAt time.Time
	)
	err := p.connPool.QueryRow(ctx, latestAggregationSQL).Scan(&runID, &requested, &raw, &recordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoAggregation
	}
	if err != nil {
		return nil, fmt.Errorf("select sonarqube_aggregations: %w", err)
	}

	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", runID, err)
	}
	result := make(aggregator.AggregationResult)
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshal aggregation: %w", err)
	}

	return &AggregationRecord{RunID: id, ProjectsRequested: requested, Result: result, RecordedAt: recordedAt}, nil
}
