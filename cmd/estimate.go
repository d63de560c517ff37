package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sells-group/commute-rent/internal/config"
	"github.com/sells-group/commute-rent/internal/export"
	"github.com/sells-group/commute-rent/internal/model"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Run one estimate and print the ranked table",
	Long:  "Geocodes the workplace, scores the listings and prints the cheapest listings per commute band. Unset flags fall back to the commute section of the config.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		format, err := export.ParseFormat(mustString(cmd, "format"))
		if err != nil {
			return err
		}
		outPath := mustString(cmd, "out")
		if format.Binary() && outPath == "" {
			return eris.Errorf("--out is required for %s output", format)
		}

		req, err := requestFromFlags(cmd, cfg.Commute)
		if err != nil {
			return err
		}

		env, err := initApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		est, err := env.Estimator.Estimate(ctx, req)
		if err != nil {
			return eris.Wrap(err, "estimate")
		}

		var w io.Writer = cmd.OutOrStdout()
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return eris.Wrap(err, "estimate: create output")
			}
			defer f.Close() //nolint:errcheck
			w = f
		}
		return export.Write(w, format, est)
	},
}

// requestFromFlags overlays changed flags on the configured defaults.
func requestFromFlags(cmd *cobra.Command, c config.CommuteConfig) (model.Request, error) {
	d := formDefaults(c)
	req := model.Request{
		Address:    d.Address,
		HourlyWage: d.HourlyWage,
		SpeedMPH:   d.SpeedMPH,
		Mode:       d.Mode,
		Policy:     d.Policy,
		MinRent:    d.MinRent,
		MaxRent:    d.MaxRent,
		UnitTypes:  append([]model.UnitType(nil), model.AllUnitTypes...),
		TopN:       d.TopN,
	}

	flags := cmd.Flags()
	if flags.Changed("street") {
		req.Address.Street, _ = flags.GetString("street")
	}
	if flags.Changed("city") {
		req.Address.City, _ = flags.GetString("city")
	}
	if flags.Changed("state") {
		req.Address.State, _ = flags.GetString("state")
	}
	if flags.Changed("zip") {
		req.Address.ZipCode, _ = flags.GetString("zip")
	}
	if flags.Changed("wage") {
		req.HourlyWage, _ = flags.GetFloat64("wage")
	}
	if flags.Changed("speed") {
		req.SpeedMPH, _ = flags.GetFloat64("speed")
	}
	if flags.Changed("min-rent") {
		req.MinRent, _ = flags.GetInt("min-rent")
	}
	if flags.Changed("max-rent") {
		req.MaxRent, _ = flags.GetInt("max-rent")
	}
	if flags.Changed("top") {
		req.TopN, _ = flags.GetInt("top")
	}
	if flags.Changed("mode") {
		mode, err := model.ParseTravelMode(mustString(cmd, "mode"))
		if err != nil {
			return req, err
		}
		req.Mode = mode
	}
	if flags.Changed("policy") {
		policy, err := model.ParsePolicy(mustString(cmd, "policy"))
		if err != nil {
			return req, err
		}
		req.Policy = policy
	}
	if flags.Changed("unit") {
		names, _ := flags.GetStringSlice("unit")
		req.UnitTypes = nil
		for _, n := range names {
			u, err := model.ParseUnitType(n)
			if err != nil {
				return req, err
			}
			req.UnitTypes = append(req.UnitTypes, u)
		}
	}
	return req, nil
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func addEstimateFlags(f *pflag.FlagSet) {
	f.String("street", "", "workplace street address")
	f.String("city", "", "workplace city")
	f.String("state", "", "workplace state")
	f.String("zip", "", "workplace zip code")
	f.Float64("wage", 0, "hourly wage in dollars")
	f.Float64("speed", 0, "average travel speed in mph (distance policy)")
	f.String("mode", "", "travel mode: driving, cycling, walking")
	f.String("policy", "", "cost policy: isochrone or distance")
	f.Int("min-rent", 0, "minimum adjusted rent")
	f.Int("max-rent", 0, "maximum adjusted rent")
	f.StringSlice("unit", nil, "unit types to include: studio, 1_br, 2_br (default all)")
	f.Int("top", 0, "listings per commute band")
	f.String("format", string(export.FormatTable), "output format: table, json, yaml, csv, xlsx")
	f.String("out", "", "write output to a file instead of stdout")
}

func init() {
	addEstimateFlags(estimateCmd.Flags())
	rootCmd.AddCommand(estimateCmd)
}
