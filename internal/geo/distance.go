// Package geo provides the distance, projection, and polygon primitives used to
// screen candidate sites against a parcel boundary.
package geo

import (
	"math"

	"github.com/rotisserie/eris"
)

// EarthRadiusMiles is the mean Earth radius used by the Haversine formula.
const EarthRadiusMiles = 3959.0

// MetersPerDegree is the north-south length of one degree of latitude used by
// the equirectangular approximation.
const MetersPerDegree = 111320.0

// GeoPoint is a WGS84 latitude/longitude pair in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point has finite, in-range coordinates.
func (p GeoPoint) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// MissingPoint returns a point with NaN coordinates. Ingestion uses it for rows
// whose coordinates could not be parsed so the pipeline can report them.
func MissingPoint() GeoPoint {
	return GeoPoint{Lat: math.NaN(), Lng: math.NaN()}
}

// GreatCircleMiles returns the Haversine distance between a and b in miles.
func GreatCircleMiles(a, b GeoPoint) float64 {
	if a == b {
		return 0
	}
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push h a hair past 1 for antipodal points.
	h = math.Min(1, math.Max(0, h))
	return EarthRadiusMiles * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Projector converts between degrees and a local planar frame in meters.
// Implementations must round-trip: Unproject(Project(p, ref), ref) == p.
type Projector interface {
	Project(p GeoPoint, refLat float64) (x, y float64)
	Unproject(x, y, refLat float64) GeoPoint
	Name() string
}

// Equirectangular is the small-region projection y = lat*111320,
// x = lng*111320*cos(refLat).
//
// Accuracy degrades with polygon size and with distance from refLat. It is not
// suitable for polygons spanning more than a few kilometers or for latitudes
// near the poles, where cos(refLat) approaches zero. A geodesic strategy
// (Vincenty or Karney) can replace it behind the Projector interface.
type Equirectangular struct{}

// Project implements Projector.
func (Equirectangular) Project(p GeoPoint, refLat float64) (float64, float64) {
	return p.Lng * MetersPerDegree * math.Cos(toRadians(refLat)), p.Lat * MetersPerDegree
}

// Unproject implements Projector.
func (Equirectangular) Unproject(x, y, refLat float64) GeoPoint {
	return GeoPoint{
		Lat: y / MetersPerDegree,
		Lng: x / (MetersPerDegree * math.Cos(toRadians(refLat))),
	}
}

// Name implements Projector.
func (Equirectangular) Name() string { return "equirectangular" }

// ProjectorByName resolves a configured projection name.
func ProjectorByName(name string) (Projector, error) {
	switch name {
	case "", "equirectangular":
		return Equirectangular{}, nil
	default:
		return nil, eris.Wrapf(ErrUnknownProjection, "geo: projection %q", name)
	}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
