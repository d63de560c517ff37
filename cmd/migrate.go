package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply store schema migrations",
	Long:  "Creates the listings, geocode cache and submissions tables and prunes expired geocode entries.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.DeleteExpiredGeocodes(ctx)
		if err != nil {
			return eris.Wrap(err, "migrate: prune geocode cache")
		}

		zap.L().Info("migrations applied",
			zap.String("driver", cfg.Store.Driver),
			zap.Int("expired_geocodes_removed", n),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
