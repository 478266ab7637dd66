package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/foundry/artifactview/internal/core/views"
)

const defaultServer = "http://localhost:8080"

type globalOptions struct {
	server  string
	token   string
	timeout time.Duration
}

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "artifactview",
		Short:         "Browse package revisions, source diffs and build logs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVar(&opts.server, "server", envOr("ARTIFACTVIEW_SERVER", defaultServer), "Server URL")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("ARTIFACTVIEW_TOKEN"), "Authentication token")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Per-request timeout")

	cmd.AddCommand(newRevisionsCommand(opts))
	cmd.AddCommand(newRdiffCommand(opts))
	cmd.AddCommand(newLogCommand(opts))
	return cmd
}

func (o *globalOptions) client() (*apiClient, error) {
	if o.token == "" {
		return nil, fmt.Errorf("--token is required")
	}
	return newAPIClient(o.server, o.token, o.timeout), nil
}

func newRevisionsCommand(opts *globalOptions) *cobra.Command {
	var (
		rev  string
		page int
		all  bool
	)

	cmd := &cobra.Command{
		Use:   "revisions <project> <package>",
		Short: "List the revisions of a package, newest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			query := url.Values{}
			if rev != "" {
				query.Set("rev", rev)
			}
			if page > 0 {
				query.Set("page", strconv.Itoa(page))
			}
			if all {
				query.Set("show_all", "1")
			}
			result, err := c.Revisions(commandContext(cmd), args[0], args[1], query)
			if err != nil {
				return err
			}
			printRevisions(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVar(&rev, "rev", "", "Newest revision to show")
	cmd.Flags().IntVar(&page, "page", 0, "Page number (1-based)")
	cmd.Flags().BoolVar(&all, "all", false, "Show every revision on one page")
	return cmd
}

func newRdiffCommand(opts *globalOptions) *cobra.Command {
	var (
		rev, orev          string
		oproject, opackage string
		full               bool
	)

	cmd := &cobra.Command{
		Use:   "rdiff <project> <package>",
		Short: "Show the source diff between two revisions or packages",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			query := url.Values{}
			if cmd.Flags().Changed("rev") {
				query.Set("rev", rev)
			}
			for key, value := range map[string]string{"orev": orev, "oproject": oproject, "opackage": opackage} {
				if value != "" {
					query.Set(key, value)
				}
			}
			if full {
				query.Set("full_diff", "1")
			}
			result, err := c.Rdiff(commandContext(cmd), args[0], args[1], query)
			if err != nil {
				return err
			}
			printRdiff(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVar(&rev, "rev", "", "New revision (current when omitted)")
	cmd.Flags().StringVar(&orev, "orev", "", "Old revision")
	cmd.Flags().StringVar(&oproject, "oproject", "", "Old project")
	cmd.Flags().StringVar(&opackage, "opackage", "", "Old package")
	cmd.Flags().BoolVar(&full, "full", false, "Do not truncate long diffs")
	return cmd
}

func newLogCommand(opts *globalOptions) *cobra.Command {
	var (
		follow   bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "log <project> <package> <repository> <arch>",
		Short: "Print a build log, optionally following it until the build ends",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			if follow {
				if interval <= 0 {
					return fmt.Errorf("--interval must be positive")
				}
				return followLog(ctx, c, args[0], args[1], args[2], args[3], interval, cmd.OutOrStdout(), cmd.ErrOrStderr())
			}
			page, err := c.LiveLog(ctx, args[0], args[1], args[2], args[3])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), page.Log)
			printBuildSummary(cmd.ErrOrStderr(), page)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep polling until the build finishes")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval for --follow")
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printRevisions(w io.Writer, page *views.RevisionsPage) {
	for _, r := range page.Revisions {
		fmt.Fprintf(w, "r%d\n", r)
	}
	if page.HasMore {
		fmt.Fprintf(w, "-- page %d of %d, use --page %d for older revisions\n", page.Page, page.TotalPages, page.Page+1)
	}
}

func printRdiff(w io.Writer, page *views.RdiffPage) {
	if len(page.Files) == 0 {
		fmt.Fprintln(w, "No differences.")
		return
	}
	for _, f := range page.Files {
		fmt.Fprintf(w, "%s %s\n", strings.ToUpper(f.State), f.Path)
		fmt.Fprint(w, f.Diff)
		if f.Truncated {
			fmt.Fprintf(w, "... (%d lines total, use --full to see all)\n", f.Lines)
		}
	}
}

func printBuildSummary(w io.Writer, page *views.LivePage) {
	fmt.Fprintf(w, "package %s on %s/%s: %s", page.PackageName, page.Repository, page.Arch, orDash(page.Status))
	if page.Building {
		fmt.Fprintf(w, " (worker %s", page.WorkerID)
		if page.BuildTimeSeconds != nil {
			fmt.Fprintf(w, ", %s", time.Duration(*page.BuildTimeSeconds)*time.Second)
		}
		fmt.Fprint(w, ")")
	}
	fmt.Fprintln(w)
	if len(page.WhatDependsOn) > 0 {
		fmt.Fprintf(w, "required by: %s\n", strings.Join(page.WhatDependsOn, ", "))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
