package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/safeland/floodrisk-cli/internal/classify"
	"github.com/safeland/floodrisk-cli/internal/enrich"
	"github.com/safeland/floodrisk-cli/internal/geo"
	"github.com/safeland/floodrisk-cli/internal/source/rainfall"
	"github.com/safeland/floodrisk-cli/internal/zone"
)

var servePort int

type predictRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type zonesResponse struct {
	zone.Metadata
	FloodProne          bool     `json:"flood_prone"`
	RiverDistanceKM     float64  `json:"river_distance_km"`
	WaterBodyDistanceKM float64  `json:"water_body_distance_km"`
	MonsoonRainfallMM   *float64 `json:"monsoon_rainfall_mm,omitempty"`
}

type predictResponse struct {
	Risk       classify.Risk             `json:"flood_risk"`
	Confidence map[classify.Risk]float64 `json:"confidence"`
	Zone       zone.Metadata             `json:"zone"`
	Features   map[string]float64        `json:"features"`
	Degraded   []string                  `json:"degraded_sources,omitempty"`
}

func coordFromQuery(r *http.Request) (geo.Coordinate, error) {
	q := r.URL.Query()
	if !q.Has("latitude") || !q.Has("longitude") {
		return geo.Coordinate{}, eris.New("latitude and longitude are required")
	}
	lat, err := strconv.ParseFloat(q.Get("latitude"), 64)
	if err != nil {
		return geo.Coordinate{}, eris.New("latitude must be a number")
	}
	lon, err := strconv.ParseFloat(q.Get("longitude"), 64)
	if err != nil {
		return geo.Coordinate{}, eris.New("longitude must be a number")
	}
	coord := geo.Coordinate{Lat: lat, Lon: lon}
	return coord, coord.Validate()
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func newServeMux(e *env) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /zones", func(w http.ResponseWriter, r *http.Request) {
		coord, err := coordFromQuery(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		zr := e.Zones.Zone(r.Context(), coord)
		resp := zonesResponse{
			Metadata:            zone.MetadataFor(zr.Level),
			FloodProne:          e.Zones.InFloodProneArea(r.Context(), coord),
			RiverDistanceKM:     e.Waterways.NearestDistance(coord).KM,
			WaterBodyDistanceKM: e.Waterways.NearestWaterBody(coord).KM,
		}
		if e.Rain != nil {
			monsoon := e.Rain.SeasonalRainfall(r.Context(), coord, rainfall.SeasonMonsoon).Value
			resp.MonsoonRainfallMM = &monsoon
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("POST /predict", func(w http.ResponseWriter, r *http.Request) {
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Latitude == nil || req.Longitude == nil {
			writeJSONError(w, http.StatusBadRequest, "latitude and longitude are required")
			return
		}

		coord := geo.Coordinate{Lat: *req.Latitude, Lon: *req.Longitude}
		if err := coord.Validate(); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		vec := e.Assembler.Assemble(r.Context(), coord)
		pred, err := e.Classifier.Predict(r.Context(), vec)
		if err != nil {
			zap.L().Error("prediction failed",
				zap.Float64("lat", coord.Lat),
				zap.Float64("lon", coord.Lon),
				zap.Error(err),
			)
			writeJSONError(w, http.StatusBadGateway, "model server unavailable")
			return
		}

		version := e.Assembler.SchemaVersion()
		cols := enrich.Columns(version, e.Floods.Years())
		vals := append([]float64{vec.Latitude, vec.Longitude}, vec.Values(version)...)
		features := make(map[string]float64, len(cols))
		for i, col := range cols {
			features[col] = vals[i]
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(predictResponse{
			Risk:       pred.Risk,
			Confidence: pred.Confidence,
			Zone:       zone.MetadataFor(vec.KSDMAZone),
			Features:   features,
			Degraded:   vec.Degraded,
		})
	})

	return mux
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the flood risk prediction server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newServeMux(e),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
