package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/quake-catalog-crawler/internal/merge"
)

func newMergeCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Concatenates every stored shard into one CSV, newest month first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			w, err := openOutput(cmd, out)
			if err != nil {
				return err
			}
			report, err := merge.Run(cmd.Context(), appInstance.Shards(), w, appInstance.Logger())
			if cerr := w.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("close %s: %w", out, cerr)
			}
			if err != nil {
				return fmt.Errorf("merge: %w", err)
			}
			appInstance.Logger().Info("Merge command finished.",
				zap.String("out", out),
				zap.Int("shards", len(report.Shards)),
				zap.Int("rows", report.Rows),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "data/all_raw_eq_data.csv", `output file, "-" for stdout`)
	return cmd
}
