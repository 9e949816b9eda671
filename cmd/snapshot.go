package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/quake-catalog-crawler/internal/snapshot"
)

func newSnapshotCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Prints the latest events from the live catalog page as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			records, err := appInstance.Snapshot().Latest(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("snapshot: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(records); err != nil {
				return fmt.Errorf("write records: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", snapshot.DefaultLimit, "number of events to return")
	return cmd
}
