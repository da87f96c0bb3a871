package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// SRID is the spatial reference of every geometry this package emits.
const SRID = 4326

// BBox is a geographic bounding box.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// Point converts p to a go-geom point (x = lng, y = lat).
func (p GeoPoint) Point() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{p.Lng, p.Lat}).SetSRID(SRID)
}

// Geom converts the ring to a closed go-geom polygon.
func (poly Polygon) Geom() (*geom.Polygon, error) {
	if err := poly.Validate(); err != nil {
		return nil, err
	}
	flat := make([]float64, 0, (len(poly)+1)*2)
	for _, v := range poly {
		flat = append(flat, v.Lng, v.Lat)
	}
	flat = append(flat, poly[0].Lng, poly[0].Lat)
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(SRID), nil
}

// Bounds returns the bounding box of the ring.
func (poly Polygon) Bounds() (BBox, error) {
	g, err := poly.Geom()
	if err != nil {
		return BBox{}, err
	}
	b := g.Bounds()
	return BBox{MinLng: b.Min(0), MinLat: b.Min(1), MaxLng: b.Max(0), MaxLat: b.Max(1)}, nil
}

// Expand grows the box by miles in every direction using the equirectangular
// scale at the box's mid latitude.
func (b BBox) Expand(miles float64) BBox {
	meters := miles * 1609.344
	mid := (b.MinLat + b.MaxLat) / 2
	dLat := meters / MetersPerDegree
	dLng := dLat
	if c := (Equirectangular{}).Unproject(meters, 0, mid); c.Lng > 0 {
		dLng = c.Lng
	}
	return BBox{
		MinLng: b.MinLng - dLng,
		MinLat: b.MinLat - dLat,
		MaxLng: b.MaxLng + dLng,
		MaxLat: b.MaxLat + dLat,
	}
}

// PolygonFromGeom extracts the exterior ring of a go-geom Polygon or the first
// polygon of a MultiPolygon. A repeated closing vertex is dropped.
func PolygonFromGeom(g geom.T) (Polygon, error) {
	var ring *geom.LinearRing
	switch t := g.(type) {
	case *geom.Polygon:
		if t.NumLinearRings() > 0 {
			ring = t.LinearRing(0)
		}
	case *geom.MultiPolygon:
		if t.NumPolygons() > 0 && t.Polygon(0).NumLinearRings() > 0 {
			ring = t.Polygon(0).LinearRing(0)
		}
	default:
		return nil, eris.Wrapf(ErrInvalidGeometry, "geo: unsupported geometry type %T", g)
	}
	if ring == nil {
		return nil, eris.Wrap(ErrInvalidGeometry, "geo: polygon has no exterior ring")
	}

	coords := ring.Coords()
	poly := make(Polygon, 0, len(coords))
	for _, c := range coords {
		poly = append(poly, GeoPoint{Lat: c.Y(), Lng: c.X()})
	}
	return TrimClosingVertex(poly), nil
}

// TrimClosingVertex drops a final vertex equal to the first, turning an
// explicitly closed ring into the implicitly closed form Polygon expects.
func TrimClosingVertex(poly Polygon) Polygon {
	if len(poly) > 1 && poly[0] == poly[len(poly)-1] {
		return poly[:len(poly)-1]
	}
	return poly
}
