package report

import (
	"fmt"
	"image/color"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-kml"

	"github.com/sells-group/parcel-screen/internal/geo"
	"github.com/sells-group/parcel-screen/internal/risk"
)

// defaultPinColor is used for tiers without a color in their metadata.
var defaultPinColor = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}

// WriteKML writes a KML document with the parcel outline and one placemark
// per retained site, styled by tier color.
func WriteKML(w io.Writer, doc *Document, pr geo.Precision) error {
	var children []kml.Element
	children = append(children, kml.Name(documentName(doc)))

	styled := make(map[string]bool)
	for _, r := range doc.Output.Results {
		id := styleID(r.Tier)
		if styled[id] {
			continue
		}
		styled[id] = true
		c := parseHexColor(r.Tier.Metadata[risk.MetaColor])
		children = append(children, kml.SharedStyle(id,
			kml.IconStyle(kml.Color(c)),
			kml.LineStyle(kml.Color(c), kml.Width(2)),
		))
	}

	if !doc.Output.CentroidOnly && doc.Boundary.Validate() == nil {
		ring := make([]kml.Coordinate, 0, len(doc.Boundary)+1)
		for _, v := range doc.Boundary {
			ring = append(ring, kml.Coordinate{Lon: v.Lng, Lat: v.Lat})
		}
		ring = append(ring, kml.Coordinate{Lon: doc.Boundary[0].Lng, Lat: doc.Boundary[0].Lat})
		children = append(children, kml.Placemark(
			kml.Name("Parcel boundary"),
			kml.Polygon(kml.OuterBoundaryIs(kml.LinearRing(kml.Coordinates(ring...)))),
		))
	}

	sites := []kml.Element{kml.Name("Sites")}
	for _, r := range doc.Output.Results {
		desc := fmt.Sprintf("Tier: %s\nEdge distance: %s mi\nCentroid distance: %s mi\nContained: %t",
			r.Tier.Label, pr.Format(r.EdgeMiles), pr.Format(r.CentroidMiles), r.Contained)
		if v, ok := doc.elevation(r.Candidate.ID); ok {
			desc += fmt.Sprintf("\nElevation: %s ft", strconv.FormatFloat(v, 'f', 1, 64))
		}
		pt := kml.Coordinate{Lon: r.Candidate.Point.Lng, Lat: r.Candidate.Point.Lat}
		geometry := []kml.Element{kml.Point(kml.Coordinates(pt))}
		if r.ClosestEdgePoint != nil && !r.Contained {
			edge := kml.Coordinate{Lon: r.ClosestEdgePoint.Lng, Lat: r.ClosestEdgePoint.Lat}
			geometry = append(geometry, kml.LineString(kml.Coordinates(pt, edge)))
		}
		sites = append(sites, kml.Placemark(
			kml.Name(fmt.Sprintf("#%d %s", r.Rank, r.Candidate.ID)),
			kml.Description(desc),
			kml.StyleURL("#"+styleID(r.Tier)),
			kml.MultiGeometry(geometry...),
		))
	}
	children = append(children, kml.Folder(sites...))

	if err := kml.KML(kml.Document(children...)).WriteIndent(w, "", "  "); err != nil {
		return eris.Wrap(err, "report: encode kml")
	}
	return nil
}

func documentName(doc *Document) string {
	if doc.RunID != "" {
		return "Parcel screening " + doc.RunID
	}
	return "Parcel screening"
}

func styleID(t risk.Tier) string {
	return "tier-" + strconv.Itoa(t.Severity)
}

// parseHexColor reads "#rrggbb" or "#rrggbbaa".
func parseHexColor(s string) color.Color {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 && len(s) != 8 {
		return defaultPinColor
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return defaultPinColor
	}
	if len(s) == 6 {
		v = v<<8 | 0xff
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}
}
