package ingest

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-screen/internal/db"
	"github.com/sells-group/parcel-screen/internal/geo"
	"github.com/sells-group/parcel-screen/internal/proximity"
)

// pointTables is an allowlist of point-feature tables and the attribute
// columns read from each. Table names are interpolated into SQL, so only
// names listed here are accepted.
var pointTables = map[string][]string{
	"geo.epa_sites":      {"name", "program", "registry_id", "status"},
	"geo.poi":            {"name", "category", "subcategory", "address"},
	"geo.infrastructure": {"name", "type", "fuel_type"},
}

// PostGISSource loads candidate sites from a PostGIS point table.
type PostGISSource struct {
	pool  db.Pool
	table string
	limit int
}

// NewPostGISSource validates table against the allowlist.
func NewPostGISSource(pool db.Pool, table string, limit int) (*PostGISSource, error) {
	if _, ok := pointTables[table]; !ok {
		return nil, eris.Errorf("ingest: invalid table name %q", table)
	}
	if limit <= 0 {
		limit = 5000
	}
	return &PostGISSource{pool: pool, table: table, limit: limit}, nil
}

// Candidates returns the table's points inside bbox. Rows with NULL
// coordinates come back with NaN coordinates so screening reports them.
func (s *PostGISSource) Candidates(ctx context.Context, bbox geo.BBox) ([]proximity.CandidateSite, error) {
	attrCols := pointTables[s.table]
	selectCols := make([]string, 0, len(attrCols))
	for _, c := range attrCols {
		selectCols = append(selectCols, fmt.Sprintf("COALESCE(%s::text, '')", c))
	}

	sql := fmt.Sprintf(`
		SELECT id::text, %s,
		       COALESCE(latitude, 'NaN'::float8), COALESCE(longitude, 'NaN'::float8)
		FROM %s
		WHERE geom && ST_MakeEnvelope($1, $2, $3, $4, 4326)
		ORDER BY id
		LIMIT $5`, strings.Join(selectCols, ", "), s.table)

	rows, err := s.pool.Query(ctx, sql, bbox.MinLng, bbox.MinLat, bbox.MaxLng, bbox.MaxLat, s.limit)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: query %s", s.table)
	}
	defer rows.Close()

	var sites []proximity.CandidateSite
	for rows.Next() {
		var id string
		var lat, lng float64
		attrs := make([]string, len(attrCols))

		dest := make([]any, 0, len(attrCols)+3)
		dest = append(dest, &id)
		for i := range attrs {
			dest = append(dest, &attrs[i])
		}
		dest = append(dest, &lat, &lng)

		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrapf(err, "ingest: scan %s row", s.table)
		}

		site := proximity.CandidateSite{
			ID:         id,
			Point:      geo.GeoPoint{Lat: lat, Lng: lng},
			Attributes: map[string]string{"source_table": s.table},
		}
		if math.IsNaN(lat) || math.IsNaN(lng) {
			site.Point = geo.MissingPoint()
		}
		for i, c := range attrCols {
			site.Attributes[c] = attrs[i]
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "ingest: iterate %s rows", s.table)
	}
	return sites, nil
}

// SearchBox returns the boundary's bounding box grown by radiusMiles, or a
// box of that radius around reference when the boundary is unusable.
func SearchBox(boundary geo.Polygon, reference geo.GeoPoint, radiusMiles float64) geo.BBox {
	if b, err := boundary.Bounds(); err == nil {
		return b.Expand(radiusMiles)
	}
	return geo.BBox{
		MinLng: reference.Lng, MinLat: reference.Lat,
		MaxLng: reference.Lng, MaxLat: reference.Lat,
	}.Expand(radiusMiles)
}
