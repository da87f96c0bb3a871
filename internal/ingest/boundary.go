package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-screen/internal/geo"
)

// LoadBoundary reads a parcel boundary from a shapefile, a GeoJSON document,
// or a CSV list of latitude/longitude pairs, chosen by file extension. The
// ring is returned unvalidated; the pipeline decides how to handle a
// degenerate boundary.
func LoadBoundary(ctx context.Context, path string) (geo.Polygon, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return ReadShapefileBoundary(path)
	case ".geojson", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read %s", path)
		}
		return ParseGeoJSONBoundary(data)
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		rows, err := ReadCSV(ctx, f, CSVOptions{TrimSpace: true, Comment: '#'})
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read %s", path)
		}
		return BoundaryFromRows(rows)
	default:
		return nil, eris.Errorf("ingest: unsupported boundary file type %q", filepath.Ext(path))
	}
}

// ReadShapefileBoundary returns the exterior ring of the first polygon record.
func ReadShapefileBoundary(path string) (geo.Polygon, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		p, ok := shape.(*shp.Polygon)
		if !ok || p == nil || p.NumParts == 0 || len(p.Points) == 0 {
			skipped++
			continue
		}

		end := int32(len(p.Points))
		if p.NumParts > 1 {
			end = p.Parts[1]
		}
		ring := make(geo.Polygon, 0, end-p.Parts[0])
		for _, pt := range p.Points[p.Parts[0]:end] {
			ring = append(ring, geo.GeoPoint{Lat: pt.Y, Lng: pt.X})
		}
		if p.NumParts > 1 {
			zap.L().Warn("ingest: shapefile polygon has multiple rings, using the first",
				zap.String("path", path),
				zap.Int32("parts", p.NumParts),
			)
		}
		return geo.TrimClosingVertex(ring), nil
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "ingest: read shapefile %s", path)
	}
	return nil, eris.Errorf("ingest: no polygon records in %s (%d other records)", path, skipped)
}

// ParseGeoJSONBoundary accepts a Polygon or MultiPolygon geometry, a Feature,
// or a FeatureCollection, and returns the first polygon's exterior ring.
func ParseGeoJSONBoundary(data []byte) (geo.Polygon, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, eris.Wrap(err, "ingest: parse geojson")
	}

	switch probe.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, eris.Wrap(err, "ingest: parse feature collection")
		}
		for _, f := range fc.Features {
			if isPolygonal(f.Geometry) {
				return geo.PolygonFromGeom(f.Geometry)
			}
		}
		return nil, eris.New("ingest: feature collection has no polygon features")
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, eris.Wrap(err, "ingest: parse feature")
		}
		return geo.PolygonFromGeom(f.Geometry)
	default:
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, eris.Wrap(err, "ingest: parse geometry")
		}
		return geo.PolygonFromGeom(g)
	}
}

// BoundaryFromRows reads latitude/longitude pairs. A non-numeric first row is
// treated as a header and its latitude/longitude columns are located by name;
// otherwise the first two columns are latitude and longitude.
func BoundaryFromRows(rows [][]string) (geo.Polygon, error) {
	if len(rows) == 0 {
		return nil, eris.New("ingest: boundary file is empty")
	}

	latIdx, lngIdx := 0, 1
	if _, err := strconv.ParseFloat(cell(rows[0], 0), 64); err != nil {
		idx := indexHeader(rows[0])
		latIdx = resolveColumn(idx, "", latAliases)
		lngIdx = resolveColumn(idx, "", lngAliases)
		if latIdx < 0 || lngIdx < 0 {
			return nil, eris.Errorf("ingest: boundary header %v has no latitude/longitude columns", rows[0])
		}
		rows = rows[1:]
	}

	poly := make(geo.Polygon, 0, len(rows))
	for i, row := range rows {
		if isBlank(row) {
			continue
		}
		lat, err := strconv.ParseFloat(cell(row, latIdx), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: boundary row %d latitude", i+1)
		}
		lng, err := strconv.ParseFloat(cell(row, lngIdx), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: boundary row %d longitude", i+1)
		}
		poly = append(poly, geo.GeoPoint{Lat: lat, Lng: lng})
	}
	return geo.TrimClosingVertex(poly), nil
}

func isPolygonal(g geom.T) bool {
	switch g.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
		return true
	}
	return false
}
