package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-screen/internal/geo"
	"github.com/sells-group/parcel-screen/internal/proximity"
)

// Column aliases tried, in order, when a Mapping leaves a column unset.
var (
	idAliases         = []string{"id", "site_id", "registry_id", "source_id", "objectid"}
	latAliases        = []string{"latitude", "lat", "y"}
	lngAliases        = []string{"longitude", "lng", "lon", "long", "x"}
	confidenceAliases = []string{"confidence", "geocode_confidence", "match_score"}
)

// Mapping names the columns that carry identity, coordinates, and geocoding
// confidence. Unset names are resolved from common aliases. Header matching
// is case-insensitive.
type Mapping struct {
	ID            string  `mapstructure:"id_column"`
	Lat           string  `mapstructure:"lat_column"`
	Lng           string  `mapstructure:"lng_column"`
	Confidence    string  `mapstructure:"confidence_column"`
	MinConfidence float64 `mapstructure:"min_confidence"`
	SheetName     string  `mapstructure:"sheet_name"`
	Charset       string  `mapstructure:"charset"`
}

// Stats counts what happened to source rows.
type Stats struct {
	Rows           int `json:"rows"`
	LowConfidence  int `json:"low_confidence"`
	MissingCoords  int `json:"missing_coords"`
	CandidateCount int `json:"candidates"`
}

// LoadCandidates reads a CSV or XLSX file of point features.
func LoadCandidates(ctx context.Context, path string, m Mapping) ([]proximity.CandidateSite, Stats, error) {
	var rows [][]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		r, err := ReadXLSX(path, XLSXOptions{SheetName: m.SheetName})
		if err != nil {
			return nil, Stats{}, err
		}
		rows = r
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, Stats{}, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		r, err := ReadCSV(ctx, f, CSVOptions{TrimSpace: true, LazyQuotes: true, Charset: m.Charset})
		if err != nil {
			return nil, Stats{}, eris.Wrapf(err, "ingest: read %s", path)
		}
		rows = r
	default:
		return nil, Stats{}, eris.Errorf("ingest: unsupported candidate file type %q", filepath.Ext(path))
	}
	return CandidatesFromRows(rows, m)
}

// CandidatesFromRows maps a header row plus data rows to candidate sites.
//
// Rows with an empty or unparseable coordinate keep their place with NaN
// coordinates so the screening pipeline reports them. When MinConfidence is
// set, rows below it (or without a parseable confidence) are dropped here,
// before screening. Every column other than latitude and longitude becomes an
// opaque attribute.
func CandidatesFromRows(rows [][]string, m Mapping) ([]proximity.CandidateSite, Stats, error) {
	if len(rows) == 0 {
		return nil, Stats{}, eris.New("ingest: no header row")
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	idx := indexHeader(header)

	latIdx := resolveColumn(idx, m.Lat, latAliases)
	lngIdx := resolveColumn(idx, m.Lng, lngAliases)
	if latIdx < 0 || lngIdx < 0 {
		return nil, Stats{}, eris.Errorf("ingest: latitude/longitude columns not found in header %v", header)
	}
	idIdx := resolveColumn(idx, m.ID, idAliases)
	confIdx := resolveColumn(idx, m.Confidence, confidenceAliases)
	if m.MinConfidence > 0 && confIdx < 0 {
		return nil, Stats{}, eris.New("ingest: min_confidence set but no confidence column found")
	}

	var stats Stats
	sites := make([]proximity.CandidateSite, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		stats.Rows++

		if m.MinConfidence > 0 {
			conf, err := strconv.ParseFloat(cell(row, confIdx), 64)
			if err != nil || conf < m.MinConfidence {
				stats.LowConfidence++
				continue
			}
		}

		id := cell(row, idIdx)
		if id == "" {
			id = fmt.Sprintf("row-%d", n+2)
		}

		point := geo.MissingPoint()
		lat, latErr := strconv.ParseFloat(cell(row, latIdx), 64)
		lng, lngErr := strconv.ParseFloat(cell(row, lngIdx), 64)
		if latErr == nil && lngErr == nil {
			point = geo.GeoPoint{Lat: lat, Lng: lng}
		}
		if !point.Valid() {
			stats.MissingCoords++
		}

		attrs := make(map[string]string, len(header))
		for i, h := range header {
			if i == latIdx || i == lngIdx || h == "" {
				continue
			}
			attrs[h] = cell(row, i)
		}

		sites = append(sites, proximity.CandidateSite{ID: id, Point: point, Attributes: attrs})
	}
	stats.CandidateCount = len(sites)

	zap.L().Debug("ingest: mapped candidate rows",
		zap.Int("rows", stats.Rows),
		zap.Int("low_confidence", stats.LowConfidence),
		zap.Int("missing_coords", stats.MissingCoords),
	)
	return sites, stats, nil
}

func indexHeader(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(h)
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

func resolveColumn(idx map[string]int, name string, aliases []string) int {
	if name != "" {
		if i, ok := idx[strings.ToLower(strings.TrimSpace(name))]; ok {
			return i
		}
		return -1
	}
	for _, a := range aliases {
		if i, ok := idx[a]; ok {
			return i
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
