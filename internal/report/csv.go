package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-screen/internal/geo"
)

var csvColumns = []string{
	"rank", "id", "lat", "lng", "tier", "severity", "contained",
	"edge_miles", "centroid_miles", "closest_lat", "closest_lng", "elevation_ft",
}

// WriteCSV writes one row per retained result. Candidate attributes follow
// the fixed columns, sorted by name.
func WriteCSV(w io.Writer, doc *Document, pr geo.Precision) error {
	attrs := attributeKeys(doc.Output.Results)
	cw := csv.NewWriter(w)

	header := append(append([]string{}, csvColumns...), attrs...)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}

	for _, r := range doc.Output.Results {
		var closestLat, closestLng, elev string
		if r.ClosestEdgePoint != nil {
			closestLat = formatCoord(r.ClosestEdgePoint.Lat)
			closestLng = formatCoord(r.ClosestEdgePoint.Lng)
		}
		if v, ok := doc.elevation(r.Candidate.ID); ok {
			elev = strconv.FormatFloat(v, 'f', -1, 64)
		}
		row := []string{
			strconv.Itoa(r.Rank),
			r.Candidate.ID,
			formatCoord(r.Candidate.Point.Lat),
			formatCoord(r.Candidate.Point.Lng),
			r.Tier.Label,
			strconv.Itoa(r.Tier.Severity),
			strconv.FormatBool(r.Contained),
			pr.Format(r.EdgeMiles),
			pr.Format(r.CentroidMiles),
			closestLat,
			closestLng,
			elev,
		}
		for _, k := range attrs {
			row = append(row, r.Candidate.Attributes[k])
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "report: write csv row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush csv")
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
