package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-screen/internal/geo"
	"github.com/sells-group/parcel-screen/internal/ingest"
	"github.com/sells-group/parcel-screen/internal/proximity"
	"github.com/sells-group/parcel-screen/internal/report"
)

var (
	screenBoundary   string
	screenCandidates string
	screenPostGIS    bool
	screenRefLat     float64
	screenRefLng     float64
	screenLadder     string
	screenFormat     string
	screenOutput     string
)

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Screen candidate sites against a parcel boundary",
	Long: `Loads a parcel boundary (shapefile, GeoJSON, or lat,lng CSV) and candidate
sites (CSV, XLSX, and/or a PostGIS table), classifies every site on the
severity ladder, and writes a ranked report.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		format, err := report.ParseFormat(screenFormat)
		if err != nil {
			return err
		}
		if screenCandidates == "" && !screenPostGIS {
			return eris.New("screen: --candidates or --postgis is required")
		}

		env, err := initScreen(ctx, envOptions{Mode: "screen", LadderFile: screenLadder, PostGIS: screenPostGIS})
		if err != nil {
			return err
		}
		defer env.Close()

		in, err := buildScreenInput(ctx, cmd)
		if err != nil {
			return err
		}

		var doc *report.Document
		if env.Source != nil {
			doc, err = env.Service.ScreenSource(ctx, in, env.Source)
		} else {
			doc, err = env.Service.Screen(ctx, in)
		}
		if err != nil {
			return err
		}

		w, closeOut, err := openOutput(screenOutput, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer closeOut()

		return report.Write(w, format, doc, env.Precision)
	},
}

// buildScreenInput loads the boundary and file candidates named by flags.
// Either may be a local path, an http(s) or ftp URL, or a .zip archive.
func buildScreenInput(ctx context.Context, cmd *cobra.Command) (proximity.Input, error) {
	in := proximity.Input{Reference: geo.MissingPoint()}
	fetcher := ingest.NewFetcher(0)

	if screenBoundary != "" {
		path, cleanup, err := fetcher.Resolve(ctx, screenBoundary, ingest.BoundaryExts)
		if err != nil {
			return in, err
		}
		defer cleanup()
		boundary, err := ingest.LoadBoundary(ctx, path)
		if err != nil {
			return in, err
		}
		in.Boundary = boundary
	}

	latSet := cmd.Flags().Changed("ref-lat")
	lngSet := cmd.Flags().Changed("ref-lng")
	switch {
	case latSet && lngSet:
		in.Reference = geo.GeoPoint{Lat: screenRefLat, Lng: screenRefLng}
	case latSet || lngSet:
		return in, eris.New("screen: --ref-lat and --ref-lng must be given together")
	case screenBoundary == "":
		return in, eris.New("screen: --boundary or --ref-lat/--ref-lng is required")
	}

	if screenCandidates != "" {
		path, cleanup, err := fetcher.Resolve(ctx, screenCandidates, ingest.CandidateExts)
		if err != nil {
			return in, err
		}
		defer cleanup()
		sites, stats, err := ingest.LoadCandidates(ctx, path, cfg.Ingest)
		if err != nil {
			return in, err
		}
		zap.L().Info("loaded candidates",
			zap.String("path", screenCandidates),
			zap.Int("rows", stats.Rows),
			zap.Int("candidates", stats.CandidateCount),
			zap.Int("low_confidence", stats.LowConfidence),
			zap.Int("missing_coords", stats.MissingCoords),
		)
		in.Candidates = sites
	}
	return in, nil
}

// openOutput returns the named file, or fallback when path is empty or "-".
func openOutput(path string, fallback io.Writer) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return fallback, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "screen: create %s", path)
	}
	return f, func() { _ = f.Close() }, nil
}

func init() {
	f := screenCmd.Flags()
	f.StringVar(&screenBoundary, "boundary", "", "parcel boundary file or URL (.shp, .geojson, .csv, .zip)")
	f.StringVar(&screenCandidates, "candidates", "", "candidate sites file or URL (.csv, .xlsx, .zip)")
	f.BoolVar(&screenPostGIS, "postgis", false, "also load candidates from the configured PostGIS table")
	f.Float64Var(&screenRefLat, "ref-lat", 0, "reference latitude (default: boundary centroid)")
	f.Float64Var(&screenRefLng, "ref-lng", 0, "reference longitude (default: boundary centroid)")
	f.StringVar(&screenLadder, "ladder", "", "ladder YAML file (default from config)")
	f.StringVar(&screenFormat, "format", "json", "output format: json, csv, geojson, kml, text")
	f.StringVarP(&screenOutput, "output", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(screenCmd)
}
