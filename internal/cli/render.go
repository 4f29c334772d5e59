// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cli

import (
	"github.com/spf13/cobra"

	"github.com/coregx/quarry"
)

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	*RootOptions
	Dialect    string
	Schema     string
	Query      string
	Positional bool
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a query document to SQL",
		Long: `Render a YAML query document to SQL for one dialect.

Parameters are printed by name, or in bind order with --positional.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Dialect, "dialect", "d", "postgres", "SQL dialect")
	cmd.Flags().StringVarP(&opts.Schema, "schema", "s", "", "YAML entity schema")
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "YAML query document")
	cmd.Flags().BoolVar(&opts.Positional, "positional", false, "use the dialect's placeholders")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}

func runRender(cmd *cobra.Command, opts *RenderOptions) error {
	reg, err := loadSchema(opts.Schema)
	if err != nil {
		return err
	}
	db, err := quarry.New(opts.Dialect, quarry.WithMetadata(reg))
	if err != nil {
		return err
	}
	b, err := buildQuery(db, opts.Query)
	if err != nil {
		return err
	}

	var st statement
	if opts.Positional {
		st.SQL, st.Args, err = b.(positional).GetQueryAndParameters()
		if st.Args == nil {
			st.Args = []any{}
		}
	} else {
		st.SQL, err = b.GetQuery()
		st.Params = b.GetParameters()
	}
	if err != nil {
		return err
	}
	return writeStatement(cmd.OutOrStdout(), opts.Format, st)
}

type positional interface {
	GetQueryAndParameters() (string, []any, error)
}

// loadSchema reads an entity schema. An empty path yields an empty registry,
// which renders plain tables.
func loadSchema(path string) (*quarry.Registry, error) {
	reg := quarry.NewRegistry()
	if path != "" {
		if err := reg.LoadYAMLFile(path); err != nil {
			return nil, err
		}
	}
	if err := reg.Build(); err != nil {
		return nil, err
	}
	return reg, nil
}

func buildQuery(db *quarry.DB, path string) (quarry.Builder, error) {
	doc, err := LoadQueryDocument(path)
	if err != nil {
		return nil, err
	}
	return doc.Build(db)
}
