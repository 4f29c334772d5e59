// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/coregx/quarry"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Driver  string
	DSN     string
	Schema  string
	Query   string
	Timeout time.Duration
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Run a query document against a database",
		Long: `Run a YAML query document and print the returned rows.

The driver name also selects the dialect: postgres, mysql, sqlite (pure Go)
or sqlite3 (cgo).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Driver, "driver", "sqlite", "database/sql driver name")
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "data source name")
	cmd.Flags().StringVarP(&opts.Schema, "schema", "s", "", "YAML entity schema")
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "YAML query document")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "statement timeout")
	_ = cmd.MarkFlagRequired("dsn")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}

type executor interface {
	Execute(ctx context.Context) (*quarry.Result, error)
}

// openDB connects with the schema's metadata. With --verbose every
// statement is logged to stderr.
func openDB(cmd *cobra.Command, rootOpts *RootOptions, driver, dsn, schema string) (*quarry.DB, error) {
	reg, err := loadSchema(schema)
	if err != nil {
		return nil, err
	}

	dbOpts := []quarry.Option{quarry.WithMetadata(reg)}
	if rootOpts.Verbose {
		l := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
		dbOpts = append(dbOpts, quarry.WithSlogLogger(l))
	}
	return quarry.Open(driver, dsn, dbOpts...)
}

func runExec(cmd *cobra.Command, opts *ExecOptions) error {
	db, err := openDB(cmd, opts.RootOptions, opts.Driver, opts.DSN, opts.Schema)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	b, err := buildQuery(db, opts.Query)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()
	res, err := b.(executor).Execute(ctx)
	if err != nil {
		return err
	}
	return writeResult(cmd, opts.Format, res)
}

func writeResult(cmd *cobra.Command, format string, res *quarry.Result) error {
	w := cmd.OutOrStdout()
	if format == "json" {
		return writeJSON(w, map[string]any{"records": res.Records, "affected": res.Affected})
	}
	for _, rec := range res.Records {
		if _, err := fmt.Fprintln(w, literal(rec)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d row(s) affected\n", res.Affected)
	return err
}
