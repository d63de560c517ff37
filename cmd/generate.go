package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/commute-rent/internal/pipeline"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Regenerate the cached listing set",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		lc := listingConfig(cfg.Listings)
		if seed, _ := cmd.Flags().GetUint64("seed"); seed != 0 {
			lc.Seed = seed
		}

		// Generation needs no Mapbox clients.
		est := pipeline.New(nil, nil, st, pipeline.WithListingConfig(lc))
		set, err := est.Regenerate(ctx)
		if err != nil {
			return eris.Wrap(err, "generate")
		}

		zap.L().Info("listings generated",
			zap.String("batch_id", set.BatchID),
			zap.Int("count", len(set.Listings)),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "Generated %d listings (batch %s)\n", len(set.Listings), set.BatchID)
		return nil
	},
}

func init() {
	generateCmd.Flags().Uint64("seed", 0, "random seed (default from config, 0 seeds from the clock)")
	rootCmd.AddCommand(generateCmd)
}
