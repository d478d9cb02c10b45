package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akawula/QualityMatic/cmd/server/auth"
	"github.com/akawula/QualityMatic/cmd/server/handlers"
	"github.com/akawula/QualityMatic/conf"
	"github.com/akawula/QualityMatic/internal/logging"
	"github.com/akawula/QualityMatic/sonarqube/client"
	"github.com/akawula/QualityMatic/store"
)

// newRouter wires the public health and metrics routes and the token-protected SonarQube routes.
func newRouter(l *slog.Logger, authn *auth.Authenticator, sonar handlers.SonarClient, db handlers.AggregationStore) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(l))
	r.Use(middleware.Recoverer)

	r.Get("/livez", handlers.LivezHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(authn.Middleware)
		r.Get("/projects", handlers.ProjectsHandler(sonar, l))
		r.Post("/measures", handlers.MeasuresHandler(sonar, l))
		r.Post("/measures/aggregate", handlers.AggregateHandler(sonar, l))
		r.Get("/aggregations/latest", handlers.LatestAggregationHandler(db, l))
	})
	return r
}

func requestLogger(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			l.Debug("Request served",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func main() {
	logger := logging.New()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := conf.Load()
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidatePostgres(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// --- Database Connection Initialization ---
	db, err := store.NewPostgres(ctx, cfg.Postgres.DSN(), logger)
	if err != nil {
		logger.Error("Unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	clientCfg := cfg.ClientConfig()
	clientCfg.Logger = logger
	sonarClient, err := client.NewClientWithConfig(clientCfg)
	if err != nil {
		logger.Error("Failed to create SonarQube client", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(logger, auth.New(cfg.Server.JWTSecret), sonarClient, db),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("Server exited properly")
}
