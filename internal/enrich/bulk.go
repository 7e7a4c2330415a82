package enrich

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/safeland/floodrisk-cli/internal/geo"
)

// Checkpointer persists batch progress so an interrupted bulk run can be
// resumed without recomputing finished batches.
type Checkpointer interface {
	SaveBatch(ctx context.Context, runID string, batch int, vectors []FeatureVector) error
}

// BulkOptions tune a bulk enrichment run.
type BulkOptions struct {
	// BatchSize is the chunk size per provider round-trip (default 100).
	BatchSize int
	// Concurrency bounds parallel coordinate assembly within a batch
	// (default 4).
	Concurrency int
	// Pause is the courtesy delay between batches (default none). A
	// resource-sharing policy with the external providers, not a
	// correctness mechanism.
	Pause time.Duration
	// StartBatch skips batches below this index when resuming.
	StartBatch int
}

func (o BulkOptions) withDefaults() BulkOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	return o
}

// BulkResult is the outcome of a bulk run.
type BulkResult struct {
	Vectors []FeatureVector
	// Skipped counts coordinates dropped for invalid input or unknown
	// flood labels.
	Skipped int
	// Batches is the number of completed batches, including any skipped
	// on resume.
	Batches int
}

// EnrichAll derives feature vectors for all coordinates in checkpointed
// batches. A single coordinate's degradation never aborts its siblings;
// cancellation between batches returns the partial result with the context
// error.
func (a *Assembler) EnrichAll(ctx context.Context, coords []geo.Coordinate, opts BulkOptions, cp Checkpointer, runID string) (BulkResult, error) {
	opts = opts.withDefaults()
	var result BulkResult

	total := (len(coords) + opts.BatchSize - 1) / opts.BatchSize
	for batch := 0; batch*opts.BatchSize < len(coords); batch++ {
		if batch < opts.StartBatch {
			result.Batches++
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		start := batch * opts.BatchSize
		end := start + opts.BatchSize
		if end > len(coords) {
			end = len(coords)
		}
		chunk := coords[start:end]

		vectors, skipped := a.enrichBatch(ctx, chunk, opts.Concurrency)
		result.Vectors = append(result.Vectors, vectors...)
		result.Skipped += skipped
		result.Batches++

		if cp != nil {
			if err := cp.SaveBatch(ctx, runID, batch, vectors); err != nil {
				return result, err
			}
		}

		zap.L().Info("enrich: batch complete",
			zap.Int("batch", batch+1),
			zap.Int("total", total),
			zap.Int("vectors", len(vectors)),
			zap.Int("skipped", skipped),
		)

		if opts.Pause > 0 && end < len(coords) {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(opts.Pause):
			}
		}
	}
	return result, nil
}

func (a *Assembler) enrichBatch(ctx context.Context, chunk []geo.Coordinate, concurrency int) ([]FeatureVector, int) {
	valid := make([]geo.Coordinate, 0, len(chunk))
	skipped := 0
	for _, c := range chunk {
		if err := c.Validate(); err != nil {
			zap.L().Warn("enrich: invalid coordinate skipped",
				zap.Float64("lat", c.Lat),
				zap.Float64("lon", c.Lon),
				zap.Error(err),
			)
			skipped++
			continue
		}
		valid = append(valid, geo.Quantize(c, 4))
	}

	// Warm the elevation cache with one batched provider call so the
	// per-coordinate workers hit it instead of fanning out single
	// requests.
	a.elev.ElevationBatch(ctx, valid)

	vectors := make([]FeatureVector, len(valid))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, c := range valid {
		g.Go(func() error {
			vectors[i] = a.Assemble(gctx, c)
			return nil
		})
	}
	// Workers never return errors; Wait only observes cancellation.
	_ = g.Wait()

	kept := vectors[:0]
	for _, v := range vectors {
		if !v.Known {
			skipped++
			continue
		}
		kept = append(kept, v)
	}
	return kept, skipped
}
