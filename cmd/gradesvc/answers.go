package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newAnswersCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "answers",
		Short: "Inspect instructor-approved acceptable answers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Print every question's acceptable answers as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := &app{}
			defer a.close()
			if err := a.openStores(cmd.Context(), c.cfg); err != nil {
				return err
			}
			snap, err := a.answers.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	})
	return cmd
}
