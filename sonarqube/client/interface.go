package client

import "context"

// Client is an interface for interacting with the SonarQube API
type Client interface {
	// GetAllProjects fetches all projects from SonarQube
	GetAllProjects(ctx context.Context) ([]Project, error)

	// GetProjectMetrics fetches metrics for a specific project
	GetProjectMetrics(ctx context.Context, projectKey string, metricKeys []string) (*ProjectMetrics, error)

	// FetchMeasures fetches measures for many projects, batching the keys under the API cap
	FetchMeasures(ctx context.Context, projectKeys []string, metricKeys []string) (ProjectMeasuresIndex, error)

	// SearchHotspots fetches every security hotspot of a project
	SearchHotspots(ctx context.Context, projectKey string) (*HotspotsResult, error)
}

// DefaultMetricKeys is the metric subset requested when the caller does not pick one.
var DefaultMetricKeys = []string{
	"bugs",
	"coverage",
	"sqale_rating",
	"security_rating",
	"reliability_rating",
	"reliability_remediation_effort",
	"security_remediation_effort",
	"vulnerabilities",
	"sqale_index",
}

// MeasureSet maps a metric key to its numeric value for one project.
type MeasureSet map[string]float64

// ProjectMeasuresIndex maps a project key to the measures SonarQube returned for it.
// Projects that do not exist or are not visible to the token are absent.
type ProjectMeasuresIndex map[string]MeasureSet

// Project represents a SonarQube project
type Project struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// ProjectMetrics represents metrics for a project
type ProjectMetrics struct {
	ProjectKey  string            `json:"projectKey"`
	ProjectName string            `json:"projectName"`
	Metrics     map[string]Metric `json:"metrics"`
}

// Metric represents a single metric value
type Metric struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// ComponentsResponse represents the response from /api/components/search
type ComponentsResponse struct {
	Paging     Paging      `json:"paging"`
	Components []Component `json:"components"`
}

// Component represents a component in the search response
type Component struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	LongName string `json:"longName,omitempty"`
}

// Paging represents pagination information
type Paging struct {
	PageIndex int `json:"pageIndex"`
	PageSize  int `json:"pageSize"`
	Total     int `json:"total"`
}

// MeasuresSearchResponse represents the response from /api/measures/search
type MeasuresSearchResponse struct {
	Measures []Measure `json:"measures"`
}

// Measure represents a single measure in the response
type Measure struct {
	Component string `json:"component"`
	Metric    string `json:"metric"`
	Value     string `json:"value"`
}

// HotspotsResponse represents one page of /api/hotspots/search
type HotspotsResponse struct {
	Paging     Paging      `json:"paging"`
	Hotspots   []Hotspot   `json:"hotspots"`
	Components []Component `json:"components"`
}

// Hotspot is a security hotspot raised on a project component.
type Hotspot struct {
	Key                      string `json:"key"`
	Component                string `json:"component"`
	Project                  string `json:"project"`
	SecurityCategory         string `json:"securityCategory"`
	VulnerabilityProbability string `json:"vulnerabilityProbability"`
	Status                   string `json:"status"`
	Line                     int    `json:"line"`
	Message                  string `json:"message"`
	RuleKey                  string `json:"ruleKey"`
}

// HotspotsResult holds all hotspots of a project and the components they point at.
type HotspotsResult struct {
	Hotspots   []Hotspot   `json:"hotspots"`
	Components []Component `json:"components"`
}
