package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akawula/QualityMatic/conf"
	"github.com/akawula/QualityMatic/internal/logging"
	"github.com/akawula/QualityMatic/slack"
	"github.com/akawula/QualityMatic/sonarqube/aggregator"
	"github.com/akawula/QualityMatic/sonarqube/client"
	"github.com/akawula/QualityMatic/store"
)

// SonarClient is the part of the SonarQube client the sync job uses.
type SonarClient interface {
	GetAllProjects(ctx context.Context) ([]client.Project, error)
	FetchMeasures(ctx context.Context, projectKeys []string, metricKeys []string) (client.ProjectMeasuresIndex, error)
}

// Notifier posts the run summary.
type Notifier interface {
	SendAggregation(ctx context.Context, runID, sonarURL string, result aggregator.AggregationResult, index client.ProjectMeasuresIndex) error
}

// --- Application Struct ---

// App holds the application's dependencies.
type App struct {
	log         *slog.Logger
	db          store.Store
	sonarClient SonarClient
	notifier    Notifier
	sonarURL    string
	metricKeys  []string
	chunkSize   int
	now         func() time.Time
	newRunID    func() uuid.UUID
}

// NewApp creates a new App instance with dependencies. notifier may be nil.
func NewApp(l *slog.Logger, db store.Store, sonarClient SonarClient, notifier Notifier, sonarURL string, metricKeys []string, chunkSize int) *App {
	if chunkSize < 1 {
		chunkSize = client.MaxBatchSize
	}
	return &App{
		log:         l,
		db:          db,
		sonarClient: sonarClient,
		notifier:    notifier,
		sonarURL:    sonarURL,
		metricKeys:  metricKeys,
		chunkSize:   chunkSize,
		now:         time.Now,
		newRunID:    uuid.New,
	}
}

// ProgressTracker tracks progress of project processing
type ProgressTracker struct {
	total     int
	processed int
	failed    int
	mu        sync.Mutex
	log       *slog.Logger
	startTime time.Time
}

func NewProgressTracker(total int, log *slog.Logger) *ProgressTracker {
	return &ProgressTracker{
		total:     total,
		log:       log,
		startTime: time.Now(),
	}
}

// Add records n processed projects, failed of which returned no measures.
func (pt *ProgressTracker) Add(n, failed int) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	before := pt.processed
	pt.processed += n
	pt.failed += failed

	// Log progress every 10% or every 50 projects
	logInterval := pt.total / 10
	if logInterval < 50 {
		logInterval = 50
	}

	if pt.processed/logInterval != before/logInterval || pt.processed == pt.total {
		elapsed := time.Since(pt.startTime)
		percentage := float64(pt.processed) / float64(pt.total) * 100

		pt.log.Info("Progress update",
			"processed", pt.processed,
			"total", pt.total,
			"percentage", fmt.Sprintf("%.1f%%", percentage),
			"failed", pt.failed,
			"elapsed", elapsed.Round(time.Second).String(),
		)
	}
}

func (pt *ProgressTracker) GetStats() (processed, failed, total int, elapsed time.Duration) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.processed, pt.failed, pt.total, time.Since(pt.startTime)
}

// Run lists every project, fetches their measures chunk by chunk, and stores projects,
// measures and the aggregation under one run ID.
func (a *App) Run(ctx context.Context) error {
	runID := a.newRunID()
	recordedAt := a.now()
	l := a.log.With("run_id", runID.String())

	l.Info("Starting SonarQube metrics collection...")

	projects, err := a.sonarClient.GetAllProjects(ctx)
	if err != nil {
		l.Error("Failed to fetch projects", "error", err)
		return err
	}
	l.Info("Projects fetched", "count", len(projects))

	if len(projects) == 0 {
		l.Warn("No projects found")
		return nil
	}

	if err := a.db.SaveSonarQubeProjects(ctx, projects); err != nil {
		l.Error("Failed to save project metadata", "error", err)
		return err
	}

	keys := make([]string, 0, len(projects))
	for _, p := range projects {
		keys = append(keys, p.Key)
	}
	chunks, err := client.Partition(keys, a.chunkSize)
	if err != nil {
		return err
	}

	tracker := NewProgressTracker(len(keys), l)
	index := make(client.ProjectMeasuresIndex, len(keys))
	for _, chunk := range chunks {
		chunkIndex, err := a.sonarClient.FetchMeasures(ctx, chunk, a.metricKeys)
		if err != nil {
			l.Error("Failed to fetch measures", "chunk_size", len(chunk), "error", err)
			return err
		}
		for key, measures := range chunkIndex {
			index[key] = measures
		}
		tracker.Add(len(chunk), len(chunk)-len(chunkIndex))
	}

	if err := a.db.SaveSonarQubeMeasures(ctx, runID, index, recordedAt); err != nil {
		l.Error("Failed to save measures", "error", err)
		return err
	}

	result := aggregator.Summarize(len(keys), index, aggregator.RatingMetrics)
	if err := a.db.SaveAggregation(ctx, runID, len(keys), result, recordedAt); err != nil {
		l.Error("Failed to save aggregation", "error", err)
		return err
	}

	processed, failed, total, elapsed := tracker.GetStats()
	l.Info("SonarQube metrics collection complete",
		"total_projects", total,
		"processed", processed,
		"without_measures", failed,
		"success_rate", fmt.Sprintf("%.1f%%", float64(processed-failed)/float64(total)*100),
		"aggregation", result,
		"total_duration", elapsed.Round(time.Second).String(),
	)

	if a.notifier != nil {
		if err := a.notifier.SendAggregation(ctx, runID.String(), a.sonarURL, result, index); err != nil {
			l.Warn("Failed to send Slack notification", "error", err)
		}
	}

	return nil
}

// --- Main Entry Point ---

func main() {
	l := logging.New()
	ctx := context.Background()

	cfg, err := conf.Load()
	if err != nil {
		l.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Sonar.Token == "" {
		l.Error("SONAR_TOKEN environment variable is required")
		os.Exit(1)
	}
	if err := cfg.ValidatePostgres(); err != nil {
		l.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// --- Run Database Migrations ---
	l.Info("Running database migrations...")
	if err := store.RunMigrations(cfg.Postgres.URL(), "file://migrations", l); err != nil {
		l.Error("Failed to apply migrations", "error", err)
		os.Exit(1)
	}

	// --- Initialize Dependencies ---
	db, err := store.NewPostgres(ctx, cfg.Postgres.DSN(), l)
	if err != nil {
		l.Error("Unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	clientCfg := cfg.ClientConfig()
	clientCfg.Logger = l
	sonarClient, err := client.NewClientWithConfig(clientCfg)
	if err != nil {
		l.Error("Failed to create SonarQube client", "error", err)
		os.Exit(1)
	}

	var notifier Notifier
	if cfg.Slack.Enabled() {
		notifier = slack.NewNotifier(cfg.Slack.Token, cfg.Slack.Channel)
	}

	l.Info("SonarQube configuration",
		"url", cfg.Sonar.URL,
		"metrics", client.DefaultMetricKeys,
		"batch_size", sonarClient.BatchSize(),
		"max_concurrency", cfg.Sonar.MaxConcurrency,
		"slack", cfg.Slack.Enabled(),
	)

	// --- Create and Run App ---
	// Each chunk spans several measures batches.
	app := NewApp(l, db, sonarClient, notifier, cfg.Sonar.URL, client.DefaultMetricKeys, sonarClient.BatchSize()*cfg.Sonar.MaxConcurrency*5)

	if err := app.Run(ctx); err != nil {
		l.Error("SonarQube metrics collection failed", "error", err)
		os.Exit(1)
	}
	l.Info("SonarQube metrics collection completed successfully.")
}
