package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/safeland/floodrisk-cli/internal/classify"
	"github.com/safeland/floodrisk-cli/internal/dataset"
	"github.com/safeland/floodrisk-cli/internal/enrich"
	"github.com/safeland/floodrisk-cli/internal/store"
)

var (
	enrichIn     string
	enrichOut    string
	enrichResume string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a training dataset with terrain and hydrology features",
	Long:  "Reads a base training CSV, derives the full feature vector per coordinate in checkpointed batches, and writes the model-ready CSV. An interrupted run can be resumed with --resume.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		set, err := dataset.ReadCSV(enrichIn, cfg.Data.FloodYears)
		if err != nil {
			return err
		}
		coords := set.Coordinates()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		opts := enrich.BulkOptions{
			BatchSize:   cfg.Enrich.BatchSize,
			Concurrency: cfg.Enrich.Concurrency,
			Pause:       time.Duration(cfg.Enrich.BatchPauseSecs * float64(time.Second)),
		}

		var run *store.Run
		if enrichResume != "" {
			run, err = e.Store.GetRun(ctx, enrichResume)
			if err != nil {
				return err
			}
			if run == nil {
				return eris.Errorf("run %s not found", enrichResume)
			}
			opts.BatchSize = run.BatchSize
			opts.StartBatch, err = e.Store.CompletedBatches(ctx, run.ID)
			if err != nil {
				return err
			}
			zap.L().Info("resuming enrichment run",
				zap.String("run", run.ID),
				zap.Int("start_batch", opts.StartBatch),
			)
		} else {
			run, err = e.Store.CreateRun(ctx, e.Assembler.SchemaVersion(), opts.BatchSize, len(coords))
			if err != nil {
				return err
			}
			zap.L().Info("starting enrichment run",
				zap.String("run", run.ID),
				zap.Int("coordinates", len(coords)),
			)
		}

		result, err := e.Assembler.EnrichAll(ctx, coords, opts, e.Store, run.ID)
		if err != nil {
			_ = e.Store.FailRun(ctx, run.ID, err.Error())
			return err
		}

		// Read back through the store so a resumed run includes the
		// batches finished before the interruption.
		vectors, err := e.Store.Vectors(ctx, run.ID)
		if err != nil {
			return err
		}

		risks := make([]classify.Risk, len(vectors))
		for i, v := range vectors {
			risks[i] = classify.FromCount(v.FloodHistoryCount)
		}
		if err := dataset.WriteFeatureCSV(enrichOut, e.Assembler.SchemaVersion(), e.Floods.Years(), vectors, risks); err != nil {
			return err
		}

		if err := e.Store.CompleteRun(ctx, run.ID); err != nil {
			return err
		}

		zap.L().Info("enrichment complete",
			zap.String("run", run.ID),
			zap.String("path", enrichOut),
			zap.Int("vectors", len(vectors)),
			zap.Int("skipped", result.Skipped),
		)
		return nil
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichIn, "in", "data/flood_training_data.csv", "input CSV path")
	enrichCmd.Flags().StringVar(&enrichOut, "out", "data/flood_training_data_enriched.csv", "output CSV path")
	enrichCmd.Flags().StringVar(&enrichResume, "resume", "", "run ID to resume")
	rootCmd.AddCommand(enrichCmd)
}
