package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-screen/internal/geo"
	"github.com/sells-group/parcel-screen/internal/proximity"
)

type jsonReport struct {
	RunID        string                 `json:"run_id,omitempty"`
	GeneratedAt  *time.Time             `json:"generated_at,omitempty"`
	CacheHit     bool                   `json:"cache_hit"`
	Reference    geo.GeoPoint           `json:"reference"`
	CentroidOnly bool                   `json:"centroid_only"`
	Screened     int                    `json:"screened"`
	Precision    geo.Precision          `json:"precision"`
	Summary      []proximity.TierCount  `json:"summary"`
	Results      []jsonResult           `json:"results"`
	Diagnostics  []proximity.Diagnostic `json:"diagnostics,omitempty"`
}

type jsonResult struct {
	Rank             int               `json:"rank"`
	ID               string            `json:"id"`
	Lat              float64           `json:"lat"`
	Lng              float64           `json:"lng"`
	Tier             string            `json:"tier"`
	Severity         int               `json:"severity"`
	Contained        bool              `json:"contained"`
	EdgeMiles        json.Number       `json:"edge_miles"`
	CentroidMiles    json.Number       `json:"centroid_miles"`
	ClosestEdgePoint *geo.GeoPoint     `json:"closest_edge_point,omitempty"`
	ElevationFeet    *float64          `json:"elevation_ft,omitempty"`
	TierMetadata     map[string]string `json:"tier_metadata,omitempty"`
	Attributes       map[string]string `json:"attributes,omitempty"`
}

// WriteJSON writes an indented JSON report. Distances are emitted as JSON
// numbers with exactly the configured number of decimals.
func WriteJSON(w io.Writer, doc *Document, pr geo.Precision) error {
	out := jsonReport{
		RunID:        doc.RunID,
		CacheHit:     doc.CacheHit,
		Reference:    doc.Reference,
		CentroidOnly: doc.Output.CentroidOnly,
		Screened:     doc.Output.Screened,
		Precision:    pr,
		Summary:      doc.summary(),
		Results:      make([]jsonResult, 0, len(doc.Output.Results)),
		Diagnostics:  doc.Output.Diagnostics,
	}
	if !doc.GeneratedAt.IsZero() {
		ts := doc.GeneratedAt.UTC()
		out.GeneratedAt = &ts
	}
	for _, r := range doc.Output.Results {
		jr := jsonResult{
			Rank:             r.Rank,
			ID:               r.Candidate.ID,
			Lat:              r.Candidate.Point.Lat,
			Lng:              r.Candidate.Point.Lng,
			Tier:             r.Tier.Label,
			Severity:         r.Tier.Severity,
			Contained:        r.Contained,
			EdgeMiles:        json.Number(pr.Format(r.EdgeMiles)),
			CentroidMiles:    json.Number(pr.Format(r.CentroidMiles)),
			ClosestEdgePoint: r.ClosestEdgePoint,
			TierMetadata:     r.Tier.Metadata,
			Attributes:       r.Candidate.Attributes,
		}
		if v, ok := doc.elevation(r.Candidate.ID); ok {
			jr.ElevationFeet = &v
		}
		out.Results = append(out.Results, jr)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return eris.Wrap(err, "report: encode json")
	}
	return nil
}
