package main

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/safeland/floodrisk-cli/internal/geo"
	"github.com/safeland/floodrisk-cli/internal/waterway"
)

var waterwaysOut string

var waterwaysCmd = &cobra.Command{
	Use:   "waterways",
	Short: "Download waterway geometry for the configured region",
	Long:  "Fetches river, stream, and canal geometry from the Overpass API for the configured bounding box and persists it as a GeoJSON file for the waterway index.",
	RunE: func(cmd *cobra.Command, args []string) error {
		bbox := geo.BBox{
			MinLat: cfg.Region.MinLat,
			MaxLat: cfg.Region.MaxLat,
			MinLon: cfg.Region.MinLon,
			MaxLon: cfg.Region.MaxLon,
		}

		out := waterwaysOut
		if out == "" {
			out = cfg.Data.WaterwaysPath
		}

		client := waterway.NewOverpassClient(
			waterway.WithOverpassURL(cfg.Overpass.URL),
			waterway.WithOverpassHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.Overpass.TimeoutSecs) * time.Second,
			}),
		)

		n, err := client.DownloadTo(cmd.Context(), bbox, out)
		if err != nil {
			return err
		}

		zap.L().Info("waterways saved",
			zap.String("path", out),
			zap.Int("features", n),
		)
		return nil
	},
}

func init() {
	waterwaysCmd.Flags().StringVar(&waterwaysOut, "out", "", "output GeoJSON path (default from config)")
	rootCmd.AddCommand(waterwaysCmd)
}
