package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/akawula/QualityMatic/conf"
	"github.com/akawula/QualityMatic/internal/logging"
	"github.com/akawula/QualityMatic/slack"
	"github.com/akawula/QualityMatic/sonarqube/aggregator"
	"github.com/akawula/QualityMatic/sonarqube/client"
	"github.com/akawula/QualityMatic/store"
)

// AggregationReader reads the latest stored sync run.
type AggregationReader interface {
	LatestAggregation(ctx context.Context) (*store.AggregationRecord, error)
}

// Notifier posts an aggregation.
type Notifier interface {
	SendAggregation(ctx context.Context, runID, sonarURL string, result aggregator.AggregationResult, index client.ProjectMeasuresIndex) error
}

// resend posts the latest stored aggregation again. Per-project detail is not stored
// with the aggregation, so only the summary blocks are sent.
func resend(ctx context.Context, l *slog.Logger, db AggregationReader, n Notifier, sonarURL string) error {
	record, err := db.LatestAggregation(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNoAggregation) {
			l.Warn("Nothing to send, no sync run recorded yet")
			return nil
		}
		return err
	}

	l.Info("Sending latest aggregation", "run_id", record.RunID.String(), "recorded_at", record.RecordedAt)
	return n.SendAggregation(ctx, record.RunID.String(), sonarURL, record.Result, nil)
}

func main() {
	l := logging.New()
	ctx := context.Background()

	cfg, err := conf.Load()
	if err != nil {
		l.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if !cfg.Slack.Enabled() {
		l.Error("SLACK_TOKEN and SLACK_CHANNEL environment variables are required")
		os.Exit(1)
	}
	if err := cfg.ValidatePostgres(); err != nil {
		l.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	db, err := store.NewPostgres(ctx, cfg.Postgres.DSN(), l)
	if err != nil {
		l.Error("Unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := resend(ctx, l, db, slack.NewNotifier(cfg.Slack.Token, cfg.Slack.Channel), cfg.Sonar.URL); err != nil {
		l.Error("Failed to send Slack notification", "error", err)
		os.Exit(1)
	}
}
