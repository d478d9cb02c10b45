package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// FetchMeasures fetches measures for projectKeys in batches of at most BatchSize keys and merges
// them into one index. Keys SonarQube does not return are left out of the index; a failing
// batch fails the whole call and nothing is returned.
func (c *SonarQubeClient) FetchMeasures(ctx context.Context, projectKeys []string, metricKeys []string) (ProjectMeasuresIndex, error) {
	if len(metricKeys) == 0 {
		metricKeys = DefaultMetricKeys
	}

	keys := uniqueKeys(projectKeys)
	batches, err := Partition(keys, c.config.BatchSize)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Fetching measures",
		"projects", len(keys),
		"batches", len(batches),
		"metrics", metricKeys,
	)

	// One slot per batch, merged only after every batch has finished.
	results := make([]ProjectMeasuresIndex, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.MaxConcurrency)
	for i, batch := range batches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			index, err := c.fetchMeasuresBatch(gctx, batch, metricKeys)
			if err != nil {
				outcome := "error"
				if errIsContext(err) {
					outcome = "cancelled"
				}
				measureBatchesTotal.WithLabelValues(outcome).Inc()
				return fmt.Errorf("measures batch %d/%d: %w", i+1, len(batches), err)
			}
			measureBatchesTotal.WithLabelValues("ok").Inc()
			results[i] = index
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(ProjectMeasuresIndex, len(keys))
	for _, index := range results {
		for key, measures := range index {
			merged[key] = measures
		}
	}

	if missing := len(keys) - len(merged); missing > 0 {
		measureProjectsMissing.Add(float64(missing))
		c.logger.Debug("Projects without measures", "missing", missing, "requested", len(keys))
	}

	return merged, nil
}

// fetchMeasuresBatch issues one /api/measures/search call for a batch of project keys.
func (c *SonarQubeClient) fetchMeasuresBatch(ctx context.Context, batch []string, metricKeys []string) (ProjectMeasuresIndex, error) {
	params := url.Values{}
	params.Set("projectKeys", strings.Join(batch, ","))
	params.Set("metricKeys", strings.Join(metricKeys, ","))

	var response MeasuresSearchResponse
	if err := c.getJSON(ctx, "/api/measures/search", params, &response); err != nil {
		return nil, err
	}

	index := make(ProjectMeasuresIndex)
	for _, m := range response.Measures {
		if m.Component == "" {
			continue
		}
		value, err := strconv.ParseFloat(m.Value, 64)
		if err != nil {
			// Level and status metrics carry non-numeric values.
			continue
		}
		set, ok := index[m.Component]
		if !ok {
			set = make(MeasureSet)
			index[m.Component] = set
		}
		set[m.Metric] = value
	}
	return index, nil
}

// uniqueKeys drops repeated keys, keeping the first occurrence order.
func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
