// Package hotspots turns SonarQube security hotspots into a flat vulnerability report.
package hotspots

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/akawula/QualityMatic/sonarqube/client"
)

const (
	defaultSeverity = "N/A"
	defaultStatus   = "UNKNOWN"
	defaultCategory = "UNCATEGORIZED"
)

// Vulnerability is one report row.
type Vulnerability struct {
	Rule        string `json:"rule" yaml:"rule"`
	Severity    string `json:"severity" yaml:"severity"`
	Component   string `json:"component" yaml:"component"`
	Line        int    `json:"line" yaml:"line"`
	Description string `json:"description" yaml:"description"`
	Status      string `json:"status" yaml:"status"`
	Category    string `json:"category" yaml:"category"`
}

// Report is the processed hotspot listing of one project.
type Report struct {
	ProjectKey      string          `json:"projectKey" yaml:"projectKey"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities" yaml:"vulnerabilities"`
	SeverityCounts  map[string]int  `json:"severityCounts" yaml:"severityCounts"`
	StatusCounts    map[string]int  `json:"statusCounts" yaml:"statusCounts"`
	CategoryCounts  map[string]int  `json:"categoryCounts" yaml:"categoryCounts"`
}

// Count is a label with its number of hotspots.
type Count struct {
	Label string
	Count int
}

// BuildReport resolves component long names and tallies hotspots by severity, status and category.
func BuildReport(projectKey string, result *client.HotspotsResult) *Report {
	report := &Report{
		ProjectKey:      projectKey,
		Vulnerabilities: []Vulnerability{},
		SeverityCounts:  make(map[string]int),
		StatusCounts:    make(map[string]int),
		CategoryCounts:  make(map[string]int),
	}
	if result == nil {
		return report
	}

	components := make(map[string]client.Component, len(result.Components))
	for _, c := range result.Components {
		components[c.Key] = c
	}

	for _, h := range result.Hotspots {
		severity := orDefault(h.VulnerabilityProbability, defaultSeverity)
		status := orDefault(h.Status, defaultStatus)
		category := orDefault(h.SecurityCategory, defaultCategory)

		component := h.Component
		if c, ok := components[h.Component]; ok && c.LongName != "" {
			component = c.LongName
		}

		report.Vulnerabilities = append(report.Vulnerabilities, Vulnerability{
			Rule:        h.RuleKey,
			Severity:    severity,
			Component:   component,
			Line:        h.Line,
			Description: h.Message,
			Status:      status,
			Category:    category,
		})

		report.SeverityCounts[severity]++
		report.StatusCounts[status]++
		report.CategoryCounts[category]++
	}

	return report
}

// Sorted orders counts by descending count, then label.
func Sorted(counts map[string]int) []Count {
	out := make([]Count, 0, len(counts))
	for label, n := range counts {
		out = append(out, Count{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// WriteText renders the report as aligned tables.
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Security hotspots for %s: %d\n\n", r.ProjectKey, len(r.Vulnerabilities))
	fmt.Fprintln(tw, "Rule\tSeverity\tComponent\tLine\tStatus\tCategory\tDescription")
	for _, v := range r.Vulnerabilities {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n", v.Rule, v.Severity, v.Component, v.Line, v.Status, v.Category, v.Description)
	}

	for _, section := range []struct {
		title  string
		counts map[string]int
	}{
		{"Severity", r.SeverityCounts},
		{"Status", r.StatusCounts},
		{"Category", r.CategoryCounts},
	} {
		fmt.Fprintf(tw, "\n%s\tCount\n", section.title)
		for _, c := range Sorted(section.counts) {
			fmt.Fprintf(tw, "%s\t%d\n", c.Label, c.Count)
		}
	}

	return tw.Flush()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
