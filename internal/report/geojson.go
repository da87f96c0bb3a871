package report

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/parcel-screen/internal/geo"
	"github.com/sells-group/parcel-screen/internal/risk"
)

// Feature kinds written to the "kind" property.
const (
	KindBoundary  = "boundary"
	KindReference = "reference"
	KindSite      = "site"
	KindLink      = "link"
)

// WriteGeoJSON writes a FeatureCollection with the parcel boundary, the
// reference point, one marker per retained site, and a line from each site to
// its closest boundary point.
func WriteGeoJSON(w io.Writer, doc *Document, pr geo.Precision) error {
	fc := &geojson.FeatureCollection{}

	if g, err := doc.Boundary.Geom(); err == nil && !doc.Output.CentroidOnly {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         "boundary",
			Geometry:   g,
			Properties: map[string]any{"kind": KindBoundary},
		})
	}
	if doc.Reference.Valid() {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         "reference",
			Geometry:   doc.Reference.Point(),
			Properties: map[string]any{"kind": KindReference},
		})
	}

	for _, r := range doc.Output.Results {
		props := map[string]any{
			"kind":           KindSite,
			"rank":           r.Rank,
			"tier":           r.Tier.Label,
			"severity":       r.Tier.Severity,
			"contained":      r.Contained,
			"edge_miles":     pr.Apply(r.EdgeMiles),
			"centroid_miles": pr.Apply(r.CentroidMiles),
		}
		if c, ok := r.Tier.Metadata[risk.MetaColor]; ok {
			props["marker-color"] = c
		}
		if v, ok := doc.elevation(r.Candidate.ID); ok {
			props["elevation_ft"] = v
		}
		for k, v := range r.Candidate.Attributes {
			if _, taken := props[k]; !taken {
				props[k] = v
			}
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         r.Candidate.ID,
			Geometry:   r.Candidate.Point.Point(),
			Properties: props,
		})

		if r.ClosestEdgePoint != nil && !r.Contained {
			link := geom.NewLineStringFlat(geom.XY, []float64{
				r.Candidate.Point.Lng, r.Candidate.Point.Lat,
				r.ClosestEdgePoint.Lng, r.ClosestEdgePoint.Lat,
			})
			fc.Features = append(fc.Features, &geojson.Feature{
				ID:       r.Candidate.ID + ":link",
				Geometry: link,
				Properties: map[string]any{
					"kind":       KindLink,
					"site_id":    r.Candidate.ID,
					"edge_miles": pr.Apply(r.EdgeMiles),
				},
			})
		}
	}

	data, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrap(err, "report: encode geojson")
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return eris.Wrap(err, "report: write geojson")
	}
	return nil
}
