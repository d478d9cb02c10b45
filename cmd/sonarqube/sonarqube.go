package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/akawula/QualityMatic/internal/logging"
	"github.com/akawula/QualityMatic/sonarqube/aggregator"
	"github.com/akawula/QualityMatic/sonarqube/client"
	"github.com/akawula/QualityMatic/sonarqube/hotspots"
)

type options struct {
	url         string
	token       string
	format      string
	batchSize   int
	concurrency int
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "sonarqube",
		Short:         "Query and aggregate SonarQube measures across projects",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.url, "url", getEnvOrDefault("SONAR_URL", "https://sonarcloud.io"), "SonarQube/SonarCloud URL")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("SONAR_TOKEN"), "SonarQube/SonarCloud authentication token")
	cmd.PersistentFlags().StringVar(&opts.format, "format", "summary", "Output format: summary, detailed, json, yaml or xlsx (hotspots only)")
	cmd.PersistentFlags().IntVar(&opts.batchSize, "batch-size", client.MaxBatchSize, "Project keys per measures request (max 100)")
	cmd.PersistentFlags().IntVar(&opts.concurrency, "concurrency", 1, "Measure batches in flight")

	cmd.AddCommand(newProjectsCmd(opts))
	cmd.AddCommand(newMeasuresCmd(opts))
	cmd.AddCommand(newAggregateCmd(opts))
	cmd.AddCommand(newSummaryCmd(opts))
	cmd.AddCommand(newHotspotsCmd(opts))
	cmd.AddCommand(newProjectCmd(opts))
	cmd.AddCommand(newGroupCmd(opts))
	cmd.AddCommand(newUserCmd(opts))
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (o *options) client() (*client.SonarQubeClient, error) {
	if o.token == "" {
		return nil, fmt.Errorf("SONAR_TOKEN environment variable or --token flag is required")
	}
	switch o.format {
	case "summary", "json", "yaml", "detailed", "xlsx":
	default:
		return nil, fmt.Errorf("unknown format %q", o.format)
	}

	cfg := client.DefaultConfig(o.url, o.token)
	cfg.BatchSize = o.batchSize
	cfg.MaxConcurrency = o.concurrency
	cfg.Logger = logging.NewWithWriter(os.Stderr)
	return client.NewClientWithConfig(cfg)
}

func newProjectsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List all projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			projects, err := c.GetAllProjects(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list projects: %w", err)
			}

			return write(cmd.OutOrStdout(), opts.format, projects, func(w io.Writer) {
				fmt.Fprintf(w, "Found %d projects:\n\n", len(projects))
				for i, project := range projects {
					fmt.Fprintf(w, "%3d. %-50s (key: %s)\n", i+1, project.Name, project.Key)
				}
			})
		},
	}
}

func newMeasuresCmd(opts *options) *cobra.Command {
	var metricsFlag string

	cmd := &cobra.Command{
		Use:   "measures <project-key>...",
		Short: "Fetch measures for the given projects in batches",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			index, err := c.FetchMeasures(cmd.Context(), args, parseMetrics(metricsFlag))
			if err != nil {
				return fmt.Errorf("failed to fetch measures: %w", err)
			}

			return write(cmd.OutOrStdout(), opts.format, index, func(w io.Writer) {
				aggregated := aggregator.AggregateMetrics(nil, index)
				fmt.Fprintf(w, "Requested %d projects, %d returned measures.\n\n", len(args), len(index))
				outputBreakdown(w, aggregated)
			})
		},
	}
	cmd.Flags().StringVar(&metricsFlag, "metrics", strings.Join(client.DefaultMetricKeys, ","), "Comma-separated list of metrics to fetch")
	return cmd
}

func newAggregateCmd(opts *options) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "aggregate [project-key]...",
		Short: "Average reliability, maintainability and security ratings across projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return fmt.Errorf("pass project keys or --all")
			}
			c, err := opts.client()
			if err != nil {
				return err
			}

			keys := args
			if all {
				projects, err := c.GetAllProjects(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list projects: %w", err)
				}
				for _, p := range projects {
					keys = append(keys, p.Key)
				}
			}

			result, err := aggregator.Aggregate(cmd.Context(), c, keys)
			if err != nil {
				return err
			}

			return write(cmd.OutOrStdout(), opts.format, result, func(w io.Writer) {
				fmt.Fprint(w, aggregator.FormatResult(result))
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Aggregate every project on the instance")
	return cmd
}

func newSummaryCmd(opts *options) *cobra.Command {
	var metricsFlag string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Fetch measures for all projects and print totals and averages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			projects, index, err := c.GetAllProjectsMeasures(cmd.Context(), parseMetrics(metricsFlag))
			if err != nil {
				return fmt.Errorf("failed to fetch project metrics: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(index) == 0 {
				fmt.Fprintln(out, "No projects found or no metrics available.")
				return nil
			}

			aggregated := aggregator.AggregateMetrics(projects, index)
			switch opts.format {
			case "json", "yaml", "xlsx":
				return write(out, opts.format, jsonSummary(aggregated), nil)
			case "detailed":
				fmt.Fprintln(out, aggregated.FormatSummary())
				outputBreakdown(out, aggregated)
			default:
				fmt.Fprintln(out, aggregated.FormatSummary())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsFlag, "metrics", strings.Join(client.DefaultMetricKeys, ","), "Comma-separated list of metrics to fetch")
	return cmd
}

func newHotspotsCmd(opts *options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "hotspots <project-key>",
		Short: "Report security hotspots of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			result, err := c.SearchHotspots(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			report := hotspots.BuildReport(args[0], result)
			switch opts.format {
			case "json", "yaml":
				return write(cmd.OutOrStdout(), opts.format, report, nil)
			case "xlsx":
				return writeWorkbook(cmd.OutOrStdout(), output, report)
			}
			return report.WriteText(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&output, "output", "security_hotspots_report.xlsx", "Workbook path for --format xlsx")
	return cmd
}

func writeWorkbook(w io.Writer, path string, report *hotspots.Report) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	if err := report.WriteXLSX(f); err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote %d hotspots to %s\n", len(report.Vulnerabilities), path)
	return nil
}

func parseMetrics(metricsStr string) []string {
	var metrics []string
	for _, m := range strings.Split(metricsStr, ",") {
		if m = strings.TrimSpace(m); m != "" {
			metrics = append(metrics, m)
		}
	}
	return metrics
}

// write encodes v as JSON or YAML, or calls text for the summary format.
func write(w io.Writer, format string, v interface{}, text func(io.Writer)) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(v); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(v); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return encoder.Close()
	case "xlsx":
		return fmt.Errorf("xlsx format is only supported by the hotspots command")
	default:
		if text != nil {
			text(w)
		}
	}
	return nil
}

func jsonSummary(aggregated *aggregator.AggregatedMetrics) map[string]interface{} {
	averages := aggregated.CalculateAverages()

	// Add status assessments for each average metric
	metricAssessments := make(map[string]map[string]interface{})
	for metric, avg := range averages {
		metricAssessments[metric] = map[string]interface{}{
			"value":  avg,
			"status": aggregator.GetMetricStatus(metric, avg),
		}
	}

	return map[string]interface{}{
		"totalProjects":      aggregated.TotalProjects,
		"metricAggregations": aggregated.MetricAggregations,
		"metricAverages":     averages,
		"metricAssessments":  metricAssessments,
	}
}

func outputBreakdown(w io.Writer, aggregated *aggregator.AggregatedMetrics) {
	fmt.Fprintln(w, "Project Breakdown:")
	fmt.Fprintln(w, "==================")

	for _, project := range aggregated.ProjectBreakdown {
		if project.ProjectName != "" {
			fmt.Fprintf(w, "\nProject: %s (%s)\n", project.ProjectName, project.ProjectKey)
		} else {
			fmt.Fprintf(w, "\nProject: %s\n", project.ProjectKey)
		}
		for _, metric := range sortedKeys(project.Metrics) {
			fmt.Fprintf(w, "  %-30s: %.2f\n", metric, project.Metrics[metric])
		}
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
