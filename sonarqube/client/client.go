package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxBatchSize is the number of project keys /api/measures/search accepts per call.
	MaxBatchSize = 100

	// MaxPageSize is the largest page SonarQube serves on search endpoints.
	MaxPageSize = 500
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the SonarQube/SonarCloud instance, e.g. https://sonarcloud.io
	BaseURL string

	// Token is sent as the basic-auth username with an empty password
	Token string

	// BatchSize is the number of project keys per measures request, clamped to [1, MaxBatchSize]
	BatchSize int

	// PageSize for listing endpoints, clamped to [1, MaxPageSize]
	PageSize int

	// MaxConcurrency is the number of measure batches in flight; 1 keeps it sequential
	MaxConcurrency int

	// MaxRetries applies to network errors on GET requests only, HTTP statuses are never retried
	MaxRetries     int
	InitialBackoff time.Duration

	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// DefaultConfig returns a configuration with the API limits as defaults.
func DefaultConfig(baseURL, token string) Config {
	return Config{
		BaseURL:        baseURL,
		Token:          token,
		BatchSize:      MaxBatchSize,
		PageSize:       MaxPageSize,
		MaxConcurrency: 1,
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		Timeout:        30 * time.Second,
	}
}

// SonarQubeClient implements the Client interface
type SonarQubeClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	config     Config
	logger     *slog.Logger
}

var _ Client = (*SonarQubeClient)(nil)

// NewClient creates a new SonarQube client with DefaultConfig.
// It panics on an empty or unparsable baseURL; use NewClientWithConfig to handle the error.
func NewClient(baseURL, token string) *SonarQubeClient {
	c, err := NewClientWithConfig(DefaultConfig(baseURL, token))
	if err != nil {
		panic("sonarqube: " + err.Error())
	}
	return c
}

// NewClientWithConfig creates a client from cfg, filling unset values from DefaultConfig.
func NewClientWithConfig(cfg Config) (*SonarQubeClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.PageSize <= 0 || cfg.PageSize > MaxPageSize {
		cfg.PageSize = MaxPageSize
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &SonarQubeClient{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: httpClient,
		config:     cfg,
		logger:     logger,
	}, nil
}

// BatchSize returns the effective number of project keys per measures request.
func (c *SonarQubeClient) BatchSize() int {
	return c.config.BatchSize
}

// doRequest performs an HTTP request with authentication. GET params go to the query string,
// anything else is sent as a form body. Only GETs are retried after a network error.
func (c *SonarQubeClient) doRequest(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	start := time.Now()
	defer func() {
		sonarRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			sonarRetriesTotal.WithLabelValues(endpoint).Inc()
			c.logger.Debug("Retrying request", "endpoint", endpoint, "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := c.newRequest(ctx, method, endpoint, params)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			sonarRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			if ctx.Err() != nil {
				return nil, fmt.Errorf("failed to execute request: %w", ctx.Err())
			}
			if method != http.MethodGet {
				// The server may have applied a write before the connection dropped.
				return nil, fmt.Errorf("failed to execute request: %w", err)
			}
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		sonarRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			c.logger.Debug("SonarQube rejected request", "method", method, "endpoint", endpoint, "status", resp.StatusCode)
			return nil, &APIError{
				Method:     method,
				Endpoint:   endpoint,
				StatusCode: resp.StatusCode,
				Body:       string(body),
			}
		}

		return body, nil
	}

	return nil, fmt.Errorf("failed to execute request after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *SonarQubeClient) newRequest(ctx context.Context, method, endpoint string, params url.Values) (*http.Request, error) {
	target := c.baseURL + endpoint
	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			target += "?" + params.Encode()
		}
	} else if params != nil {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")

	// SonarQube uses token as username with empty password
	req.SetBasicAuth(c.token, "")
	return req, nil
}

// getJSON issues a GET and decodes the body into out.
func (c *SonarQubeClient) getJSON(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	body, err := c.doRequest(ctx, http.MethodGet, endpoint, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", endpoint, err)
	}
	return nil
}

// GetAllProjects fetches all projects from SonarQube
func (c *SonarQubeClient) GetAllProjects(ctx context.Context) ([]Project, error) {
	projects, err := ListAll(ctx, c.config.PageSize, func(ctx context.Context, pageIndex, pageSize int) (Page[Project], error) {
		params := url.Values{}
		params.Set("qualifiers", "TRK")
		params.Set("ps", strconv.Itoa(pageSize))
		params.Set("p", strconv.Itoa(pageIndex))

		var response ComponentsResponse
		if err := c.getJSON(ctx, "/api/components/search", params, &response); err != nil {
			return Page[Project]{}, err
		}

		items := make([]Project, 0, len(response.Components))
		for _, comp := range response.Components {
			items = append(items, Project{Key: comp.Key, Name: comp.Name})
		}
		return Page[Project]{Items: items, Paging: response.Paging}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch projects: %w", err)
	}

	c.logger.Debug("Projects listed", "count", len(projects))
	return projects, nil
}

// GetProjectMetrics fetches metrics for a specific project
func (c *SonarQubeClient) GetProjectMetrics(ctx context.Context, projectKey string, metricKeys []string) (*ProjectMetrics, error) {
	if len(metricKeys) == 0 {
		metricKeys = DefaultMetricKeys
	}
	params := url.Values{}
	params.Set("component", projectKey)
	params.Set("metricKeys", strings.Join(metricKeys, ","))

	var response struct {
		Component struct {
			Key      string `json:"key"`
			Name     string `json:"name"`
			Measures []struct {
				Metric string `json:"metric"`
				Value  string `json:"value"`
			} `json:"measures"`
		} `json:"component"`
	}

	if err := c.getJSON(ctx, "/api/measures/component", params, &response); err != nil {
		return nil, fmt.Errorf("failed to fetch metrics for project %s: %w", projectKey, err)
	}

	metrics := make(map[string]Metric)
	for _, m := range response.Component.Measures {
		value, err := strconv.ParseFloat(m.Value, 64)
		if err != nil {
			continue
		}
		metrics[m.Metric] = Metric{
			Key:   m.Metric,
			Value: value,
		}
	}

	return &ProjectMetrics{
		ProjectKey:  response.Component.Key,
		ProjectName: response.Component.Name,
		Metrics:     metrics,
	}, nil
}

// GetAllProjectsMeasures lists every project and fetches their measures in batches.
func (c *SonarQubeClient) GetAllProjectsMeasures(ctx context.Context, metricKeys []string) ([]Project, ProjectMeasuresIndex, error) {
	projects, err := c.GetAllProjects(ctx)
	if err != nil {
		return nil, nil, err
	}

	keys := make([]string, 0, len(projects))
	for _, p := range projects {
		keys = append(keys, p.Key)
	}

	index, err := c.FetchMeasures(ctx, keys, metricKeys)
	if err != nil {
		return nil, nil, err
	}
	return projects, index, nil
}

// errIsContext reports whether err came from a cancelled or expired context.
func errIsContext(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
