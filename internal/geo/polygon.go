package geo

import (
	"math"

	"github.com/rotisserie/eris"
)

// Polygon is a closed ring of vertices. The edge from the last vertex back to
// the first is implicit, so callers must not repeat the first vertex.
// Self-intersecting rings are not supported.
type Polygon []GeoPoint

// Validate returns ErrInvalidGeometry when the ring has fewer than three
// vertices or any vertex is not a usable coordinate.
func (poly Polygon) Validate() error {
	if len(poly) < 3 {
		return eris.Wrapf(ErrInvalidGeometry, "geo: polygon has %d vertices, need at least 3", len(poly))
	}
	for i, v := range poly {
		if !v.Valid() {
			return eris.Wrapf(ErrInvalidGeometry, "geo: polygon vertex %d is not a valid coordinate", i)
		}
	}
	return nil
}

// Centroid returns the arithmetic mean of the usable vertices. It is used as
// the default parcel reference point and is not an area-weighted centroid.
// A ring with no usable vertex yields MissingPoint.
func (poly Polygon) Centroid() GeoPoint {
	var lat, lng float64
	n := 0
	for _, v := range poly {
		if !v.Valid() {
			continue
		}
		lat += v.Lat
		lng += v.Lng
		n++
	}
	if n == 0 {
		return MissingPoint()
	}
	return GeoPoint{Lat: lat / float64(n), Lng: lng / float64(n)}
}

// PointInPolygon reports whether p lies inside poly using ray casting over
// every edge (v[i], v[(i+1)%n]), with longitude as x and latitude as y.
//
// The result for a point exactly on an edge or vertex is implementation
// defined: it depends on floating point rounding and on which side of the
// half-open edge test the point falls. Callers must not rely on it.
func PointInPolygon(p GeoPoint, poly Polygon) (bool, error) {
	if err := poly.Validate(); err != nil {
		return false, err
	}

	inside := false
	n := len(poly)
	for i := 0; i < n; i++ {
		a := poly[i]
		b := poly[(i+1)%n]
		// The straddle test guarantees a.Lat != b.Lat, so the division is safe.
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) {
			crossLng := a.Lng + (p.Lat-a.Lat)*(b.Lng-a.Lng)/(b.Lat-a.Lat)
			if p.Lng < crossLng {
				inside = !inside
			}
		}
	}
	return inside, nil
}

// ClosestPointOnSegment returns the point on segment [a, b] nearest to p and
// its great-circle distance to p in miles. The projection happens in the local
// plane of proj at p's latitude; a nil proj means Equirectangular.
//
// A zero-length segment returns a and the direct distance from p to a.
func ClosestPointOnSegment(p, a, b GeoPoint, proj Projector) (GeoPoint, float64) {
	if proj == nil {
		proj = Equirectangular{}
	}
	ref := p.Lat

	px, py := proj.Project(p, ref)
	ax, ay := proj.Project(a, ref)
	bx, by := proj.Project(b, ref)

	dx := bx - ax
	dy := by - ay
	lenSq := dx*dx + dy*dy
	if a == b || lenSq == 0 {
		return a, GreatCircleMiles(p, a)
	}

	t := ((px-ax)*dx + (py-ay)*dy) / lenSq
	switch {
	case t <= 0:
		return a, GreatCircleMiles(p, a)
	case t >= 1:
		return b, GreatCircleMiles(p, b)
	}

	closest := proj.Unproject(ax+t*dx, ay+t*dy, ref)
	return closest, GreatCircleMiles(p, closest)
}

// PointToPolygonDistance returns the minimum distance in miles from p to the
// boundary of poly and the boundary point where it occurs. Every edge is
// checked, including the closing edge from the last vertex to the first.
//
// Cost is O(n) in the vertex count. There is no spatial index, which is fine
// for parcel rings with a handful of vertices but will not scale to rings or
// candidate lists that are orders of magnitude larger.
func PointToPolygonDistance(p GeoPoint, poly Polygon, proj Projector) (float64, GeoPoint, error) {
	if err := poly.Validate(); err != nil {
		return 0, GeoPoint{}, err
	}

	best := math.Inf(1)
	var bestPoint GeoPoint
	n := len(poly)
	for i := 0; i < n; i++ {
		pt, d := ClosestPointOnSegment(p, poly[i], poly[(i+1)%n], proj)
		if d < best {
			best = d
			bestPoint = pt
		}
	}
	if math.IsNaN(best) || math.IsInf(best, 0) {
		return 0, GeoPoint{}, eris.Wrapf(ErrNumericAnomaly, "geo: edge distance for (%f, %f)", p.Lat, p.Lng)
	}
	return best, bestPoint, nil
}
