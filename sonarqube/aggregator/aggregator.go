package aggregator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/akawula/QualityMatic/sonarqube/client"
)

const (
	// KeyProjectsRequested counts the identifiers the caller asked for, duplicates included.
	KeyProjectsRequested = "projects_count_request"
	// KeyProjectsWithMeasures counts the projects SonarQube returned measures for.
	KeyProjectsWithMeasures = "projects_count_with_measures"
)

// RatingMetrics are averaged by Aggregate.
var RatingMetrics = []string{"reliability_rating", "sqale_rating", "security_rating"}

// MeasuresFetcher is the part of the SonarQube client Aggregate needs.
type MeasuresFetcher interface {
	FetchMeasures(ctx context.Context, projectKeys []string, metricKeys []string) (client.ProjectMeasuresIndex, error)
}

// AggregationResult holds the two project counts and one rounded average per rating metric.
// It is empty when no requested project returned measures.
type AggregationResult map[string]int

// Requested returns projects_count_request.
func (r AggregationResult) Requested() int {
	return r[KeyProjectsRequested]
}

// WithMeasures returns projects_count_with_measures.
func (r AggregationResult) WithMeasures() int {
	return r[KeyProjectsWithMeasures]
}

// Rating returns the rounded average for metric, if any project reported it.
func (r AggregationResult) Rating(metric string) (int, bool) {
	v, ok := r[metric]
	return v, ok
}

// Aggregate fetches measures for keys and averages RatingMetrics across the projects that
// returned data. Missing projects only lower projects_count_with_measures.
func Aggregate(ctx context.Context, fetcher MeasuresFetcher, keys []string) (AggregationResult, error) {
	index, err := fetcher.FetchMeasures(ctx, keys, client.DefaultMetricKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate measures: %w", err)
	}
	return Summarize(len(keys), index, RatingMetrics), nil
}

// Summarize builds an AggregationResult from an already fetched index.
func Summarize(requested int, index client.ProjectMeasuresIndex, metrics []string) AggregationResult {
	result := make(AggregationResult)
	if len(index) == 0 {
		return result
	}

	result[KeyProjectsRequested] = requested
	result[KeyProjectsWithMeasures] = len(index)

	for _, metric := range metrics {
		sum, count := 0.0, 0
		for _, measures := range index {
			if v, ok := measures[metric]; ok {
				sum += v
				count++
			}
		}
		if count == 0 {
			continue
		}
		result[metric] = RoundHalfUp(sum / float64(count))
	}
	return result
}

// RoundHalfUp rounds to the nearest integer, ties away from zero (2.5 -> 3).
func RoundHalfUp(v float64) int {
	return int(math.Round(v))
}

// AggregatedMetrics represents aggregated metrics across all projects
type AggregatedMetrics struct {
	TotalProjects      int                `json:"totalProjects"`
	MetricAggregations map[string]float64 `json:"metricAggregations"`
	MetricCounts       map[string]int     `json:"metricCounts"`
	ProjectBreakdown   []ProjectSummary   `json:"projectBreakdown"`
}

// MetricThreshold defines good/bad thresholds for a metric
type MetricThreshold struct {
	Good      float64
	Excellent float64
	Poor      float64
}

// MetricThresholds defines quality thresholds for various metrics
var MetricThresholds = map[string]MetricThreshold{
	// Average bugs per project
	"bugs": {
		Excellent: 0,
		Good:      5,
		Poor:      20,
	},
	// Average vulnerabilities per project
	"vulnerabilities": {
		Excellent: 0,
		Good:      2,
		Poor:      10,
	},
	// Coverage percentage (average)
	"coverage": {
		Excellent: 80,
		Good:      60,
		Poor:      40,
	},
	// Ratings go from 1 (A) to 5 (E)
	"reliability_rating": {
		Excellent: 1,
		Good:      2,
		Poor:      4,
	},
	"security_rating": {
		Excellent: 1,
		Good:      2,
		Poor:      4,
	},
	"sqale_rating": {
		Excellent: 1,
		Good:      2,
		Poor:      4,
	},
	// Technical debt in minutes (average)
	"sqale_index": {
		Excellent: 60,
		Good:      480,
		Poor:      2400,
	},
}

// GetMetricStatus returns the quality status of a metric value
func GetMetricStatus(metric string, value float64) string {
	threshold, exists := MetricThresholds[metric]
	if !exists {
		return "unknown"
	}

	// For coverage, higher is better
	if metric == "coverage" {
		if value >= threshold.Excellent {
			return "excellent"
		} else if value >= threshold.Good {
			return "good"
		} else if value >= threshold.Poor {
			return "fair"
		}
		return "poor"
	}

	// For other metrics, lower is better
	if value <= threshold.Excellent {
		return "excellent"
	} else if value <= threshold.Good {
		return "good"
	} else if value <= threshold.Poor {
		return "fair"
	}
	return "poor"
}

// RatingLetter maps a numeric rating to SonarQube's letter grade.
func RatingLetter(rating int) string {
	if rating < 1 || rating > 5 {
		return "?"
	}
	return string(rune('A' + rating - 1))
}

// ProjectSummary represents a summary of a single project's metrics
type ProjectSummary struct {
	ProjectKey  string             `json:"projectKey"`
	ProjectName string             `json:"projectName"`
	Metrics     map[string]float64 `json:"metrics"`
}

// AggregateMetrics totals every metric in index. Project names are taken from projects when
// known; the breakdown is sorted by project key.
func AggregateMetrics(projects []client.Project, index client.ProjectMeasuresIndex) *AggregatedMetrics {
	names := make(map[string]string, len(projects))
	for _, p := range projects {
		names[p.Key] = p.Name
	}

	aggregated := &AggregatedMetrics{
		TotalProjects:      len(index),
		MetricAggregations: make(map[string]float64),
		MetricCounts:       make(map[string]int),
		ProjectBreakdown:   make([]ProjectSummary, 0, len(index)),
	}

	for key, measures := range index {
		summary := ProjectSummary{
			ProjectKey:  key,
			ProjectName: names[key],
			Metrics:     make(map[string]float64, len(measures)),
		}

		for metricKey, value := range measures {
			summary.Metrics[metricKey] = value
			aggregated.MetricAggregations[metricKey] += value
			aggregated.MetricCounts[metricKey]++
		}

		aggregated.ProjectBreakdown = append(aggregated.ProjectBreakdown, summary)
	}

	sort.Slice(aggregated.ProjectBreakdown, func(i, j int) bool {
		return aggregated.ProjectBreakdown[i].ProjectKey < aggregated.ProjectBreakdown[j].ProjectKey
	})

	return aggregated
}

// CalculateAverages calculates average values for metrics. Each metric is divided by the
// number of projects that reported it.
func (a *AggregatedMetrics) CalculateAverages() map[string]float64 {
	averages := make(map[string]float64)
	for metric, total := range a.MetricAggregations {
		count := a.MetricCounts[metric]
		if count == 0 {
			continue
		}
		averages[metric] = total / float64(count)
	}

	return averages
}

var metricDescriptions = map[string]string{
	"bugs":                           "Total Bugs",
	"vulnerabilities":                "Total Vulnerabilities",
	"coverage":                       "Coverage (Total)",
	"sqale_index":                    "Technical Debt (minutes)",
	"reliability_rating":             "Reliability Rating (Total)",
	"security_rating":                "Security Rating (Total)",
	"sqale_rating":                   "Maintainability Rating (Total)",
	"reliability_remediation_effort": "Reliability Remediation (minutes)",
	"security_remediation_effort":    "Security Remediation (minutes)",
}

func describe(metric string) string {
	if d, ok := metricDescriptions[metric]; ok {
		return d
	}
	return metric
}

// FormatSummary returns a human-readable summary of the aggregated metrics
func (a *AggregatedMetrics) FormatSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total Projects: %d\n\n", a.TotalProjects)
	b.WriteString("Aggregated Metrics (Total across all projects):\n")
	b.WriteString("================================================\n")

	metrics := make([]string, 0, len(a.MetricAggregations))
	for metric := range a.MetricAggregations {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)

	for _, metric := range metrics {
		fmt.Fprintf(&b, "  %-35s: %.2f\n", describe(metric), a.MetricAggregations[metric])
	}

	averages := a.CalculateAverages()
	if len(averages) > 0 {
		b.WriteString("\nAverage Metrics (per project reporting it):\n")
		b.WriteString("============================================\n")

		for _, metric := range metrics {
			avg, exists := averages[metric]
			if !exists {
				continue
			}
			if _, known := MetricThresholds[metric]; !known {
				continue
			}
			status := GetMetricStatus(metric, avg)
			fmt.Fprintf(&b, "  %-35s: %7.2f  %s %s\n", describe(metric), avg, getStatusSymbol(status), status)
		}
	}

	return b.String()
}

var ratingLabels = map[string]string{
	"reliability_rating": "Reliability",
	"sqale_rating":       "Maintainability",
	"security_rating":    "Security",
}

// FormatResult renders an AggregationResult as text.
func FormatResult(r AggregationResult) string {
	if len(r) == 0 {
		return "No requested project returned measures.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Projects requested:     %d\n", r.Requested())
	fmt.Fprintf(&b, "Projects with measures: %d\n", r.WithMeasures())
	for _, metric := range RatingMetrics {
		rating, ok := r.Rating(metric)
		if !ok {
			fmt.Fprintf(&b, "  %-16s: n/a\n", ratingLabels[metric])
			continue
		}
		fmt.Fprintf(&b, "  %-16s: %d (%s)\n", ratingLabels[metric], rating, RatingLetter(rating))
	}
	return b.String()
}

// getStatusSymbol returns a visual symbol for the status
func getStatusSymbol(status string) string {
	switch status {
	case "excellent":
		return "✓✓"
	case "good":
		return "✓ "
	case "fair":
		return "⚠ "
	case "poor":
		return "✗ "
	default:
		return "? "
	}
}
