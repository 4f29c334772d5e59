// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coregx/quarry/internal/dialects"
)

type dialectInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Placeholder string `json:"placeholder"`
}

// NewDialectsCommand creates the dialects command.
func NewDialectsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "dialects",
		Short:         "List registered dialect names",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := dialects.Names()
			infos := make([]dialectInfo, len(names))
			for i, name := range names {
				d := dialects.GetDialect(name)
				infos[i] = dialectInfo{Name: name, Type: string(d.Type()), Placeholder: d.Placeholder(1)}
			}

			w := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return writeJSON(w, infos)
			}
			for _, info := range infos {
				if _, err := fmt.Fprintf(w, "%-16s %-16s %s\n", info.Name, info.Type, info.Placeholder); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
