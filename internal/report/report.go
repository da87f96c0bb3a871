// Package report renders screening outputs as JSON, CSV, GeoJSON, KML, or a
// plain-text summary. Every distance passes through a geo.Precision policy;
// coordinates are written at full precision.
package report

import (
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-screen/internal/geo"
	"github.com/sells-group/parcel-screen/internal/proximity"
	"github.com/sells-group/parcel-screen/internal/risk"
)

// Format is an output format name.
type Format string

// Supported formats.
const (
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	FormatGeoJSON Format = "geojson"
	FormatKML     Format = "kml"
	FormatText    Format = "text"
)

// Formats lists every supported format.
var Formats = []Format{FormatJSON, FormatCSV, FormatGeoJSON, FormatKML, FormatText}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", eris.Errorf("report: unknown format %q", s)
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatGeoJSON:
		return "application/geo+json"
	case FormatKML:
		return "application/vnd.google-earth.kml+xml"
	case FormatText:
		return "text/plain; charset=utf-8"
	default:
		return "application/json"
	}
}

// Document is everything a report needs about one screening run.
type Document struct {
	RunID       string
	GeneratedAt time.Time
	CacheHit    bool
	Boundary    geo.Polygon
	Reference   geo.GeoPoint
	Ladder      *risk.Ladder
	Output      *proximity.Output
	// Elevations holds enrichment values in feet keyed by candidate ID.
	Elevations map[string]float64
}

// Write renders doc to w in format f.
func Write(w io.Writer, f Format, doc *Document, pr geo.Precision) error {
	if doc == nil || doc.Output == nil {
		return eris.New("report: document has no output")
	}
	switch f {
	case FormatJSON:
		return WriteJSON(w, doc, pr)
	case FormatCSV:
		return WriteCSV(w, doc, pr)
	case FormatGeoJSON:
		return WriteGeoJSON(w, doc, pr)
	case FormatKML:
		return WriteKML(w, doc, pr)
	case FormatText:
		return WriteText(w, doc, pr)
	default:
		return eris.Errorf("report: unknown format %q", f)
	}
}

func (d *Document) elevation(id string) (float64, bool) {
	v, ok := d.Elevations[id]
	return v, ok
}

// summary returns tier counts in ladder order, or sorted by label when the
// document carries no ladder.
func (d *Document) summary() []proximity.TierCount {
	if d.Ladder != nil {
		return proximity.OrderedSummary(d.Output.Summary, d.Ladder)
	}
	out := make([]proximity.TierCount, 0, len(d.Output.Summary))
	for label, n := range d.Output.Summary {
		out = append(out, proximity.TierCount{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// attributeKeys returns the union of candidate attribute names, sorted.
func attributeKeys(results []proximity.Result) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, r := range results {
		for k := range r.Candidate.Attributes {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}
