package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/akawula/QualityMatic/internal/testutil"
)

// fakeProjects builds n projects; every third one carries no rating measures.
func fakeProjects(n int) []testutil.FakeProject {
	projects := make([]testutil.FakeProject, n)
	for i := range projects {
		measures := map[string]string{
			"bugs":     fmt.Sprintf("%d", i%7),
			"coverage": fmt.Sprintf("%d.5", i%90),
		}
		if i%3 != 0 {
			measures["reliability_rating"] = fmt.Sprintf("%d.0", 1+i%5)
			measures["sqale_rating"] = fmt.Sprintf("%d.0", 1+i%4)
			measures["security_rating"] = "1.0"
		}
		projects[i] = testutil.FakeProject{
			Key:      fmt.Sprintf("project-%03d", i),
			Name:     fmt.Sprintf("Project %d", i),
			Measures: measures,
		}
	}
	return projects
}

func newTestClient(t *testing.T, baseURL string, batchSize, concurrency int) *SonarQubeClient {
	t.Helper()
	cfg := DefaultConfig(baseURL, "")
	cfg.BatchSize = batchSize
	cfg.MaxConcurrency = concurrency
	cfg.MaxRetries = 0
	c, err := NewClientWithConfig(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

func TestFetchMeasures_MissingProjectsAreAbsent(t *testing.T) {
	fake := testutil.NewFakeSonarQube(fakeProjects(5)...)
	defer fake.Close()
	c := newTestClient(t, fake.URL(), 100, 1)

	index, err := c.FetchMeasures(context.Background(), []string{"project-001", "does-not-exist", "project-004"}, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(index) != 2 {
		t.Fatalf("Expected 2 projects in index, got %d: %v", len(index), index)
	}
	if _, ok := index["does-not-exist"]; ok {
		t.Errorf("Missing project must not appear in the index")
	}
	if got := index["project-001"]["reliability_rating"]; got != 2 {
		t.Errorf("Expected reliability_rating 2 for project-001, got %v", got)
	}
	if fake.RequestCount("/api/measures/search") != 1 {
		t.Errorf("Expected a single measures request, got %d", fake.RequestCount("/api/measures/search"))
	}
}

func TestFetchMeasures_BatchesStayUnderCap(t *testing.T) {
	fake := testutil.NewFakeSonarQube(fakeProjects(250)...)
	defer fake.Close()
	c := newTestClient(t, fake.URL(), 500, 1) // clamped to MaxBatchSize

	keys := make([]string, 0, 260)
	for i := 0; i < 250; i++ {
		keys = append(keys, fmt.Sprintf("project-%03d", i))
	}
	for i := 0; i < 10; i++ {
		keys = append(keys, fmt.Sprintf("ghost-%d", i))
	}

	index, err := c.FetchMeasures(context.Background(), keys, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(index) != 250 {
		t.Errorf("Expected 250 projects with measures, got %d", len(index))
	}
	if fake.MaxProjectKeysSeen > MaxBatchSize {
		t.Errorf("A request named %d projects, cap is %d", fake.MaxProjectKeysSeen, MaxBatchSize)
	}
	if !reflect.DeepEqual(fake.MeasuresSearchKeyCounts, []int{100, 100, 60}) {
		t.Errorf("Unexpected batch sizes: %v", fake.MeasuresSearchKeyCounts)
	}
}

func TestFetchMeasures_IndependentOfBatchSize(t *testing.T) {
	fake := testutil.NewFakeSonarQube(fakeProjects(230)...)
	defer fake.Close()

	keys := []string{"ghost-a"}
	for i := 229; i >= 0; i-- {
		keys = append(keys, fmt.Sprintf("project-%03d", i))
	}
	keys = append(keys, "ghost-b")

	reference, err := newTestClient(t, fake.URL(), 100, 1).FetchMeasures(context.Background(), keys, nil)
	if err != nil {
		t.Fatalf("Reference fetch failed: %v", err)
	}

	testCases := []struct {
		batchSize   int
		concurrency int
	}{
		{batchSize: 1, concurrency: 8},
		{batchSize: 7, concurrency: 1},
		{batchSize: 33, concurrency: 3},
		{batchSize: 99, concurrency: 2},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("batch=%d/concurrency=%d", tc.batchSize, tc.concurrency), func(t *testing.T) {
			index, err := newTestClient(t, fake.URL(), tc.batchSize, tc.concurrency).FetchMeasures(context.Background(), keys, nil)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if !reflect.DeepEqual(index, reference) {
				t.Errorf("Index differs from batch size 100 result (%d vs %d projects)", len(index), len(reference))
			}
		})
	}
}

func TestFetchMeasures_DuplicateKeysRequestedOnce(t *testing.T) {
	fake := testutil.NewFakeSonarQube(fakeProjects(3)...)
	defer fake.Close()
	c := newTestClient(t, fake.URL(), 100, 1)

	index, err := c.FetchMeasures(context.Background(), []string{"project-001", "project-001", "project-002"}, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(index) != 2 {
		t.Errorf("Expected 2 projects, got %d", len(index))
	}
	if !reflect.DeepEqual(fake.MeasuresSearchKeyCounts, []int{2}) {
		t.Errorf("Expected one request naming 2 keys, got %v", fake.MeasuresSearchKeyCounts)
	}
}

func TestFetchMeasures_EmptyInput(t *testing.T) {
	fake := testutil.NewFakeSonarQube(fakeProjects(3)...)
	defer fake.Close()
	c := newTestClient(t, fake.URL(), 100, 1)

	index, err := c.FetchMeasures(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if index == nil || len(index) != 0 {
		t.Errorf("Expected empty non-nil index, got %v", index)
	}
	if fake.RequestCount("/api/measures/search") != 0 {
		t.Errorf("Expected no requests for empty input")
	}
}

func TestFetchMeasures_CustomMetricsAndNonNumericValues(t *testing.T) {
	fake := testutil.NewFakeSonarQube(
		testutil.FakeProject{Key: "gate-only", Measures: map[string]string{"alert_status": "OK"}},
		testutil.FakeProject{Key: "mixed", Measures: map[string]string{"alert_status": "ERROR", "ncloc": "1200", "bugs": "3"}},
	)
	defer fake.Close()
	c := newTestClient(t, fake.URL(), 100, 1)

	index, err := c.FetchMeasures(context.Background(), []string{"gate-only", "mixed"}, []string{"alert_status", "ncloc"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	expected := ProjectMeasuresIndex{"mixed": MeasureSet{"ncloc": 1200}}
	if !reflect.DeepEqual(index, expected) {
		t.Errorf("Expected %v, got %v", expected, index)
	}
}

func TestFetchMeasures_BatchFailureDiscardsEverything(t *testing.T) {
	fake := testutil.NewFakeSonarQube(fakeProjects(150)...)
	defer fake.Close()
	fake.FailPath("/api/measures/search", http.StatusInternalServerError)
	c := newTestClient(t, fake.URL(), 100, 1)

	keys := make([]string, 150)
	for i := range keys {
		keys[i] = fmt.Sprintf("project-%03d", i)
	}

	index, err := c.FetchMeasures(context.Background(), keys, nil)
	if err == nil {
		t.Fatalf("Expected error, got nil")
	}
	if index != nil {
		t.Errorf("Expected nil index on failure, got %d entries", len(index))
	}
	if !IsAPIError(err) {
		t.Errorf("Expected an APIError in the chain, got %v", err)
	}
}

func TestFetchMeasures_SecondBatchFailure(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 2 {
			w.Write([]byte(`{"measures": [`)) // truncated body
			return
		}
		w.Write([]byte(`{"measures": [{"component": "a", "metric": "bugs", "value": "1"}]}`))
	}))
	defer server.Close()
	c := newTestClient(t, server.URL, 1, 1)

	index, err := c.FetchMeasures(context.Background(), []string{"a", "b", "c"}, nil)
	if err == nil {
		t.Fatalf("Expected error for malformed second batch")
	}
	if index != nil {
		t.Errorf("Expected nil index, got %v", index)
	}
	if IsAPIError(err) {
		t.Errorf("Malformed body must not be reported as an HTTP rejection: %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected fetching to stop after the failing batch, got %d calls", calls)
	}
}

func TestFetchMeasures_UnauthorizedToken(t *testing.T) {
	fake := testutil.NewFakeSonarQube(fakeProjects(2)...)
	defer fake.Close()
	fake.Token = "secret"

	cfg := DefaultConfig(fake.URL(), "wrong")
	cfg.MaxRetries = 0
	c, err := NewClientWithConfig(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	_, err = c.FetchMeasures(context.Background(), []string{"project-000"}, nil)
	if err == nil {
		t.Fatalf("Expected error for wrong token")
	}
	if !IsAPIError(err) {
		t.Errorf("Expected APIError, got %v", err)
	}

	c = NewClient(fake.URL(), "secret")
	index, err := c.FetchMeasures(context.Background(), []string{"project-000"}, nil)
	if err != nil {
		t.Fatalf("Expected no error with the right token, got %v", err)
	}
	if len(index) != 1 {
		t.Errorf("Expected 1 project, got %d", len(index))
	}
}
