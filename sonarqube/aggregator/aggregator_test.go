package aggregator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/akawula/QualityMatic/internal/testutil"
	"github.com/akawula/QualityMatic/sonarqube/client"
)

type stubFetcher struct {
	index client.ProjectMeasuresIndex
	err   error
	keys  []string
}

func (s *stubFetcher) FetchMeasures(ctx context.Context, projectKeys []string, metricKeys []string) (client.ProjectMeasuresIndex, error) {
	s.keys = projectKeys
	return s.index, s.err
}

func ratedProject(key, reliability, sqale, security string) testutil.FakeProject {
	measures := map[string]string{"bugs": "1"}
	if reliability != "" {
		measures["reliability_rating"] = reliability
	}
	if sqale != "" {
		measures["sqale_rating"] = sqale
	}
	if security != "" {
		measures["security_rating"] = security
	}
	return testutil.FakeProject{Key: key, Name: key, Measures: measures}
}

func TestAggregate_AgainstFakeServer(t *testing.T) {
	fake := testutil.NewFakeSonarQube(
		ratedProject("a", "1.0", "2.0", "1.0"),
		ratedProject("b", "3.0", "2.0", "1.0"),
		ratedProject("c", "2.0", "", ""),
	)
	defer fake.Close()
	c := client.NewClient(fake.URL(), "")

	testCases := []struct {
		name     string
		keys     []string
		expected AggregationResult
	}{
		{
			name: "Two projects averaged",
			keys: []string{"a", "b"},
			expected: AggregationResult{
				"projects_count_request":       2,
				"projects_count_with_measures": 2,
				"reliability_rating":           2,
				"sqale_rating":                 2,
				"security_rating":              1,
			},
		},
		{
			name: "Missing project is not averaged",
			keys: []string{"a", "ghost"},
			expected: AggregationResult{
				"projects_count_request":       2,
				"projects_count_with_measures": 1,
				"reliability_rating":           1,
				"sqale_rating":                 2,
				"security_rating":              1,
			},
		},
		{
			name:     "Nothing resolves",
			keys:     []string{"ghost-1", "ghost-2"},
			expected: AggregationResult{},
		},
		{
			name: "Half rounds up",
			keys: []string{"b", "c"},
			expected: AggregationResult{
				"projects_count_request":       2,
				"projects_count_with_measures": 2,
				"reliability_rating":           3,
				"sqale_rating":                 2,
				"security_rating":              1,
			},
		},
		{
			name: "Duplicates counted as requested",
			keys: []string{"a", "a", "b"},
			expected: AggregationResult{
				"projects_count_request":       3,
				"projects_count_with_measures": 2,
				"reliability_rating":           2,
				"sqale_rating":                 2,
				"security_rating":              1,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := Aggregate(context.Background(), c, tc.keys)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if !reflect.DeepEqual(result, tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, result)
			}
		})
	}
}

func TestAggregate_ManyProjects(t *testing.T) {
	projects := make([]testutil.FakeProject, 0, 150)
	keys := make([]string, 0, 230)
	for i := 0; i < 150; i++ {
		key := fmt.Sprintf("svc-%03d", i)
		projects = append(projects, ratedProject(key, "2.0", "3.0", "1.0"))
		keys = append(keys, key)
	}
	for i := 0; i < 80; i++ {
		keys = append(keys, fmt.Sprintf("unknown-%03d", i))
	}

	fake := testutil.NewFakeSonarQube(projects...)
	defer fake.Close()

	result, err := Aggregate(context.Background(), client.NewClient(fake.URL(), ""), keys)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.Requested() != 230 {
		t.Errorf("Expected 230 requested, got %d", result.Requested())
	}
	if result.WithMeasures() != 150 {
		t.Errorf("Expected 150 with measures, got %d", result.WithMeasures())
	}
	if got := fake.RequestCount("/api/measures/search"); got != 3 {
		t.Errorf("Expected 3 batches, got %d", got)
	}
	if fake.MaxProjectKeysSeen > client.MaxBatchSize {
		t.Errorf("Batch exceeded cap: %d", fake.MaxProjectKeysSeen)
	}
}

func TestAggregate_FetchError(t *testing.T) {
	fetchErr := errors.New("boom")
	result, err := Aggregate(context.Background(), &stubFetcher{err: fetchErr}, []string{"a"})
	if !errors.Is(err, fetchErr) {
		t.Errorf("Expected wrapped fetch error, got %v", err)
	}
	if result != nil {
		t.Errorf("Expected nil result on error, got %v", result)
	}
}

func TestAggregate_PassesKeysThrough(t *testing.T) {
	stub := &stubFetcher{index: client.ProjectMeasuresIndex{}}
	keys := []string{"x", "y", "x"}
	if _, err := Aggregate(context.Background(), stub, keys); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !reflect.DeepEqual(stub.keys, keys) {
		t.Errorf("Expected keys %v to reach the fetcher, got %v", keys, stub.keys)
	}
}

func TestSummarize_MetricMissingEverywhereIsOmitted(t *testing.T) {
	index := client.ProjectMeasuresIndex{
		"a": {"bugs": 3},
		"b": {"reliability_rating": 2},
	}
	result := Summarize(2, index, RatingMetrics)

	if result.WithMeasures() != 2 {
		t.Errorf("Expected 2 projects with measures, got %d", result.WithMeasures())
	}
	if v, ok := result.Rating("reliability_rating"); !ok || v != 2 {
		t.Errorf("Expected reliability_rating 2 from the single contributor, got %v (%v)", v, ok)
	}
	if _, ok := result.Rating("sqale_rating"); ok {
		t.Errorf("sqale_rating has no contributors and must be omitted")
	}
}

func TestRoundHalfUp(t *testing.T) {
	testCases := []struct {
		in       float64
		expected int
	}{
		{in: 2.5, expected: 3},
		{in: 1.5, expected: 2},
		{in: 2.4999, expected: 2},
		{in: 3.5, expected: 4},
		{in: 1, expected: 1},
		{in: 4.6667, expected: 5},
	}
	for _, tc := range testCases {
		if got := RoundHalfUp(tc.in); got != tc.expected {
			t.Errorf("RoundHalfUp(%v) = %d, expected %d", tc.in, got, tc.expected)
		}
	}
}

func TestAggregateMetrics(t *testing.T) {
	projects := []client.Project{{Key: "b", Name: "Beta"}, {Key: "a", Name: "Alpha"}}
	index := client.ProjectMeasuresIndex{
		"a": {"bugs": 4, "coverage": 80},
		"b": {"bugs": 2},
	}

	aggregated := AggregateMetrics(projects, index)
	if aggregated.TotalProjects != 2 {
		t.Errorf("Expected 2 projects, got %d", aggregated.TotalProjects)
	}
	if aggregated.MetricAggregations["bugs"] != 6 {
		t.Errorf("Expected 6 bugs total, got %v", aggregated.MetricAggregations["bugs"])
	}
	if aggregated.ProjectBreakdown[0].ProjectKey != "a" || aggregated.ProjectBreakdown[0].ProjectName != "Alpha" {
		t.Errorf("Expected breakdown sorted by key with names, got %+v", aggregated.ProjectBreakdown)
	}

	averages := aggregated.CalculateAverages()
	if averages["bugs"] != 3 {
		t.Errorf("Expected average bugs 3, got %v", averages["bugs"])
	}
	if averages["coverage"] != 80 {
		t.Errorf("Coverage must average over reporting projects only, got %v", averages["coverage"])
	}
}

func TestGetMetricStatus(t *testing.T) {
	testCases := []struct {
		metric   string
		value    float64
		expected string
	}{
		{metric: "coverage", value: 85, expected: "excellent"},
		{metric: "coverage", value: 65, expected: "good"},
		{metric: "coverage", value: 45, expected: "fair"},
		{metric: "coverage", value: 10, expected: "poor"},
		{metric: "bugs", value: 0, expected: "excellent"},
		{metric: "bugs", value: 25, expected: "poor"},
		{metric: "reliability_rating", value: 1, expected: "excellent"},
		{metric: "reliability_rating", value: 3, expected: "fair"},
		{metric: "ncloc", value: 1000, expected: "unknown"},
	}
	for _, tc := range testCases {
		if got := GetMetricStatus(tc.metric, tc.value); got != tc.expected {
			t.Errorf("GetMetricStatus(%s, %v) = %s, expected %s", tc.metric, tc.value, got, tc.expected)
		}
	}
}

func TestFormatSummaryAndResult(t *testing.T) {
	aggregated := AggregateMetrics(nil, client.ProjectMeasuresIndex{"a": {"bugs": 2, "ncloc": 100}})
	summary := aggregated.FormatSummary()
	if !strings.Contains(summary, "Total Projects: 1") || !strings.Contains(summary, "Total Bugs") {
		t.Errorf("Unexpected summary:\n%s", summary)
	}
	if strings.Count(summary, "ncloc") != 1 {
		t.Errorf("Metrics without thresholds must not be listed under averages:\n%s", summary)
	}

	text := FormatResult(AggregationResult{
		KeyProjectsRequested:    3,
		KeyProjectsWithMeasures: 2,
		"reliability_rating":    2,
	})
	if !strings.Contains(text, "Projects requested:     3") || !strings.Contains(text, "2 (B)") || !strings.Contains(text, "n/a") {
		t.Errorf("Unexpected result text:\n%s", text)
	}
	if FormatResult(AggregationResult{}) != "No requested project returned measures.\n" {
		t.Errorf("Unexpected text for empty result")
	}
}

func TestRatingLetter(t *testing.T) {
	if RatingLetter(1) != "A" || RatingLetter(5) != "E" || RatingLetter(0) != "?" {
		t.Errorf("Unexpected rating letters")
	}
}
