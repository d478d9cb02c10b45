package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/akawula/QualityMatic/sonarqube/client"
)

// SonarClient is the part of the SonarQube client the handlers use.
type SonarClient interface {
	GetAllProjects(ctx context.Context) ([]client.Project, error)
	FetchMeasures(ctx context.Context, projectKeys []string, metricKeys []string) (client.ProjectMeasuresIndex, error)
}

type ProjectsResponse struct {
	Count    int              `json:"count"`
	Projects []client.Project `json:"projects"`
}

// ProjectsHandler lists every project visible to the server's token.
func ProjectsHandler(c SonarClient, l *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := c.GetAllProjects(r.Context())
		if err != nil {
			writeUpstreamError(w, l, "Failed to list projects", err)
			return
		}
		if projects == nil {
			projects = []client.Project{}
		}
		writeJSON(w, http.StatusOK, ProjectsResponse{Count: len(projects), Projects: projects})
	}
}
