package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// SearchHotspots fetches all security hotspots of a project together with the components
// they reference. Components repeated across pages are kept once.
func (c *SonarQubeClient) SearchHotspots(ctx context.Context, projectKey string) (*HotspotsResult, error) {
	var components []Component
	seen := make(map[string]struct{})

	hotspots, err := ListAll(ctx, c.config.PageSize, func(ctx context.Context, pageIndex, pageSize int) (Page[Hotspot], error) {
		params := url.Values{}
		params.Set("project", projectKey)
		params.Set("ps", strconv.Itoa(pageSize))
		params.Set("p", strconv.Itoa(pageIndex))

		var response HotspotsResponse
		if err := c.getJSON(ctx, "/api/hotspots/search", params, &response); err != nil {
			return Page[Hotspot]{}, err
		}

		for _, comp := range response.Components {
			if _, ok := seen[comp.Key]; ok {
				continue
			}
			seen[comp.Key] = struct{}{}
			components = append(components, comp)
		}

		c.logger.Debug("Fetched hotspots page", "project_key", projectKey, "page", pageIndex, "hotspots", len(response.Hotspots))
		return Page[Hotspot]{Items: response.Hotspots, Paging: response.Paging}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch hotspots for project %s: %w", projectKey, err)
	}

	return &HotspotsResult{Hotspots: hotspots, Components: components}, nil
}
