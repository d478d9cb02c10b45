package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/akawula/QualityMatic/sonarqube/client"
)

type projectStatus struct {
	Key     string             `json:"key" yaml:"key"`
	Exists  bool               `json:"exists" yaml:"exists"`
	Name    string             `json:"name,omitempty" yaml:"name,omitempty"`
	Metrics map[string]float64 `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

func newProjectCmd(opts *options) *cobra.Command {
	var metricsFlag string

	cmd := &cobra.Command{
		Use:   "project <project-key>",
		Short: "Check that a project exists and show its measures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			key := args[0]

			status := projectStatus{Key: key}
			status.Exists, err = c.ProjectExists(ctx, key)
			if err != nil {
				return err
			}
			if status.Exists {
				metrics, err := c.GetProjectMetrics(ctx, key, parseMetrics(metricsFlag))
				if err != nil {
					return err
				}
				status.Name = metrics.ProjectName
				status.Metrics = make(map[string]float64, len(metrics.Metrics))
				for k, m := range metrics.Metrics {
					status.Metrics[k] = m.Value
				}
			}

			return write(cmd.OutOrStdout(), opts.format, status, func(w io.Writer) {
				if !status.Exists {
					fmt.Fprintf(w, "Project %s not found.\n", key)
					return
				}
				fmt.Fprintf(w, "Project: %s (%s)\n", status.Name, key)
				keys := make([]string, 0, len(status.Metrics))
				for k := range status.Metrics {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(w, "  %-30s: %.2f\n", k, status.Metrics[k])
				}
			})
		},
	}
	cmd.Flags().StringVar(&metricsFlag, "metrics", "", "Comma-separated list of metrics to fetch")
	return cmd
}

func newGroupCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage user groups",
	}

	var description string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a user group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.CreateGroup(cmd.Context(), args[0], description); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Group %s created.\n", args[0])
			return nil
		},
	}
	create.Flags().StringVar(&description, "description", "", "Group description")

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a user group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.DeleteGroup(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Group %s deleted.\n", args[0])
			return nil
		},
	}

	exists := &cobra.Command{
		Use:   "exists <name>",
		Short: "Report whether a user group exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ok, err := c.GroupExists(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ok)
			return nil
		},
	}

	cmd.AddCommand(create, del, exists)
	return cmd
}

func newUserCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage local users",
	}

	var user client.User
	create := &cobra.Command{
		Use:   "create <login>",
		Short: "Create a local user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			user.Login = args[0]
			if err := c.CreateUser(cmd.Context(), user); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %s created.\n", user.Login)
			return nil
		},
	}
	create.Flags().StringVar(&user.Name, "name", "", "Display name")
	create.Flags().StringVar(&user.Email, "email", "", "Email address")
	create.Flags().StringVar(&user.Password, "password", "", "Initial password")
	_ = create.MarkFlagRequired("name")

	var update client.User
	upd := &cobra.Command{
		Use:   "update <login>",
		Short: "Update name and email of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			update.Login = args[0]
			if err := c.UpdateUser(cmd.Context(), update); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %s updated.\n", update.Login)
			return nil
		},
	}
	upd.Flags().StringVar(&update.Name, "name", "", "Display name")
	upd.Flags().StringVar(&update.Email, "email", "", "Email address")

	deactivate := &cobra.Command{
		Use:   "deactivate <login>",
		Short: "Deactivate a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.DeactivateUser(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %s deactivated.\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(create, upd, deactivate)
	return cmd
}
