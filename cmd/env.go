package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/safeland/floodrisk-cli/internal/cache"
	"github.com/safeland/floodrisk-cli/internal/classify"
	"github.com/safeland/floodrisk-cli/internal/enrich"
	"github.com/safeland/floodrisk-cli/internal/floodhist"
	"github.com/safeland/floodrisk-cli/internal/source/elevation"
	"github.com/safeland/floodrisk-cli/internal/source/rainfall"
	"github.com/safeland/floodrisk-cli/internal/store"
	"github.com/safeland/floodrisk-cli/internal/waterway"
	"github.com/safeland/floodrisk-cli/internal/zone"
)

// env holds the wired source stack shared by the serving and enrichment
// commands.
type env struct {
	Cache      *cache.Cache
	Elevation  *elevation.Client
	Zones      *zone.Classifier
	Waterways  *waterway.Index
	Floods     *floodhist.Extractor
	Rain       *rainfall.Client
	Assembler  *enrich.Assembler
	Classifier classify.Classifier
	Store      *store.SQLiteStore
}

func (e *env) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv builds the full stack from config. Missing local data files switch
// components into their fallback modes; only the checkpoint store can fail
// initialization.
func initEnv(ctx context.Context) (*env, error) {
	e := &env{Cache: cache.New()}

	e.Elevation = elevation.New(e.Cache,
		elevation.WithBaseURL(cfg.Elevation.BaseURL),
		elevation.WithBatchSize(cfg.Elevation.BatchSize),
		elevation.WithRateLimit(cfg.Elevation.RequestsPerSec),
		elevation.WithCacheTTL(time.Duration(cfg.Elevation.CacheTTLDays)*24*time.Hour),
		elevation.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Elevation.TimeoutSecs) * time.Second}),
	)
	slope := elevation.NewSlopeEstimator(e.Elevation, e.Cache)

	e.Zones = zone.Load(cfg.Data.ZonesPath, e.Elevation, e.Cache)

	waterways, err := waterway.Load(cfg.Data.WaterwaysPath, e.Cache)
	if err != nil {
		zap.L().Warn("waterway index unavailable, distance queries will use fallbacks",
			zap.String("path", cfg.Data.WaterwaysPath),
			zap.Error(err),
		)
		waterways = waterway.New(nil, e.Cache)
	}
	e.Waterways = waterways

	e.Floods = floodhist.New(cfg.Data.FloodYears, e.Elevation, e.Zones, e.Cache)
	e.Floods.LoadRasters(cfg.Data.RasterPattern)
	if !e.Floods.HasData() {
		e.Floods.LoadFootprints(cfg.Data.FootprintsPath)
	}

	assemblerOpts := []enrich.AssemblerOption{
		enrich.WithSchemaVersion(cfg.Model.SchemaVersion),
		enrich.WithSlopeRadius(cfg.Elevation.SlopeRadiusM),
	}
	if cfg.Rainfall.Enabled {
		e.Rain = rainfall.New(e.Cache,
			rainfall.WithBaseURL(cfg.Rainfall.BaseURL),
			rainfall.WithCacheTTL(time.Duration(cfg.Rainfall.CacheTTLDays)*24*time.Hour),
			rainfall.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Rainfall.TimeoutSecs) * time.Second}),
		)
		assemblerOpts = append(assemblerOpts, enrich.WithRainfallClient(e.Rain, cfg.Rainfall.Years))
	}
	e.Assembler = enrich.NewAssembler(e.Elevation, slope, e.Zones, e.Waterways, e.Floods, assemblerOpts...)

	if cfg.Model.Endpoint != "" {
		e.Classifier = classify.NewHTTPClassifier(
			cfg.Model.Endpoint,
			e.Assembler.SchemaVersion(),
			e.Floods.Years(),
			classify.WithTimeout(time.Duration(cfg.Model.TimeoutSecs)*time.Second),
		)
		zap.L().Info("using model server classifier", zap.String("endpoint", cfg.Model.Endpoint))
	} else {
		e.Classifier = classify.Heuristic{}
		zap.L().Info("no model endpoint configured, using heuristic classifier")
	}

	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	e.Store = st

	return e, nil
}
