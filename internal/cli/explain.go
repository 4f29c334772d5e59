// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/coregx/quarry"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	Driver  string
	DSN     string
	Schema  string
	Query   string
	Analyze bool
	Advise  bool
	Timeout time.Duration
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Show the query plan of a select document",
		Long: `Ask the database for the plan of a select query document.

Supported on PostgreSQL, MySQL and SQLite. With --analyze the query is
executed; SQLite has no EXPLAIN ANALYZE. With --advise index and tuning
suggestions follow the plan.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Driver, "driver", "sqlite", "database/sql driver name")
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "data source name")
	cmd.Flags().StringVarP(&opts.Schema, "schema", "s", "", "YAML entity schema")
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "YAML query document")
	cmd.Flags().BoolVar(&opts.Analyze, "analyze", false, "execute the query and report measured values")
	cmd.Flags().BoolVar(&opts.Advise, "advise", false, "suggest indexes and settings for the query")
	cmd.MarkFlagsMutuallyExclusive("analyze", "advise")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "statement timeout")
	_ = cmd.MarkFlagRequired("dsn")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}

func runExplain(cmd *cobra.Command, opts *ExplainOptions) error {
	db, err := openDB(cmd, opts.RootOptions, opts.Driver, opts.DSN, opts.Schema)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	b, err := buildQuery(db, opts.Query)
	if err != nil {
		return err
	}
	sb, ok := b.(*quarry.SelectQueryBuilder)
	if !ok {
		return errors.New("explain needs a select query document")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	if opts.Advise {
		analysis, suggestions, err := sb.Advise(ctx)
		if err != nil {
			return err
		}
		return writeAdvice(cmd, opts.Format, analysis.QueryPlan, suggestions)
	}

	var plan *quarry.QueryPlan
	if opts.Analyze {
		plan, err = sb.ExplainAnalyze(ctx)
	} else {
		plan, err = sb.Explain(ctx)
	}
	if err != nil {
		return err
	}
	return writePlan(cmd, opts.Format, plan)
}

func writePlan(cmd *cobra.Command, format string, plan *quarry.QueryPlan) error {
	w := cmd.OutOrStdout()
	if format == "json" {
		return writeJSON(w, plan)
	}

	index := "none"
	if plan.UsesIndex {
		index = plan.IndexName
	}
	_, err := fmt.Fprintf(w, "database:   %s\ncost:       %.2f\nrows:       %d\nindex:      %s\nfull scan:  %t\n\n%s\n",
		plan.Database, plan.Cost, plan.EstimatedRows, index, plan.FullScan, plan.RawOutput)
	return err
}

func writeAdvice(cmd *cobra.Command, format string, plan *quarry.QueryPlan, suggestions []quarry.Suggestion) error {
	if format == "json" {
		if suggestions == nil {
			suggestions = []quarry.Suggestion{}
		}
		return writeJSON(cmd.OutOrStdout(), map[string]any{"plan": plan, "suggestions": suggestions})
	}
	if err := writePlan(cmd, format, plan); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(suggestions) == 0 {
		_, err := fmt.Fprintln(w, "\nno suggestions")
		return err
	}
	for _, s := range suggestions {
		if _, err := fmt.Fprintf(w, "\n%s", s); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
