package main

import (
	"math/rand"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/safeland/floodrisk-cli/internal/dataset"
)

var (
	balanceIn      string
	balanceOut     string
	balanceSamples int
	balanceSeed    int64
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Add non-flooded samples to a training dataset",
	Long:  "Samples random points inside the flood rasters' extent that did not flood in any year and appends them as Low risk records, countering the all-positive bias of raster extraction.",
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := dataset.ReadCSV(balanceIn, cfg.Data.FloodYears)
		if err != nil {
			return err
		}

		rasters, err := loadRasters()
		if err != nil {
			return err
		}

		rng := rand.New(rand.NewSource(balanceSeed))
		added := dataset.Balance(set, rasters, balanceSamples, rng)

		out := balanceOut
		if out == "" {
			out = balanceIn
		}
		if err := dataset.WriteCSV(out, set); err != nil {
			return err
		}

		zap.L().Info("dataset balanced",
			zap.String("path", out),
			zap.Int("added", added),
			zap.Int("records", len(set.Records)),
			zap.Any("distribution", set.Distribution()),
		)
		return nil
	},
}

func init() {
	balanceCmd.Flags().StringVar(&balanceIn, "in", "data/flood_training_data.csv", "input CSV path")
	balanceCmd.Flags().StringVar(&balanceOut, "out", "", "output CSV path (default: overwrite input)")
	balanceCmd.Flags().IntVar(&balanceSamples, "samples", 2000, "non-flooded samples to add")
	balanceCmd.Flags().Int64Var(&balanceSeed, "seed", 42, "sampling seed")
	rootCmd.AddCommand(balanceCmd)
}
