package ingest

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-screen/internal/geo"
)

func TestNewPostGISSource_InvalidTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostGISSource(mock, "public.users; DROP TABLE", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}

func TestPostGISSource_Candidates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	bbox := geo.BBox{MinLng: -97.1, MinLat: 30.0, MaxLng: -97.0, MaxLat: 30.1}
	mock.ExpectQuery(`FROM geo\.epa_sites\s+WHERE geom && ST_MakeEnvelope`).
		WithArgs(bbox.MinLng, bbox.MinLat, bbox.MaxLng, bbox.MaxLat, 100).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "program", "registry_id", "status", "latitude", "longitude",
		}).
			AddRow("1", "Acme Plating", "RCRA", "110000123", "active", 30.05, -97.05).
			AddRow("2", "Old Tank Farm", "LUST", "", "closed", math.NaN(), math.NaN()))

	src, err := NewPostGISSource(mock, "geo.epa_sites", 100)
	require.NoError(t, err)

	sites, err := src.Candidates(context.Background(), bbox)
	require.NoError(t, err)
	require.Len(t, sites, 2)

	assert.Equal(t, "1", sites[0].ID)
	assert.Equal(t, geo.GeoPoint{Lat: 30.05, Lng: -97.05}, sites[0].Point)
	assert.Equal(t, "Acme Plating", sites[0].Attributes["name"])
	assert.Equal(t, "RCRA", sites[0].Attributes["program"])
	assert.Equal(t, "geo.epa_sites", sites[0].Attributes["source_table"])

	assert.False(t, sites[1].Point.Valid())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGISSource_DefaultLimit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	src, err := NewPostGISSource(mock, "geo.poi", 0)
	require.NoError(t, err)
	assert.Equal(t, 5000, src.limit)
}

func TestPostGISSource_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM geo\.poi`).
		WithArgs(0.0, 0.0, 1.0, 1.0, 10).
		WillReturnError(fmt.Errorf("connection refused"))

	src, err := NewPostGISSource(mock, "geo.poi", 10)
	require.NoError(t, err)

	_, err = src.Candidates(context.Background(), geo.BBox{MaxLng: 1, MaxLat: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query geo.poi")
}

func TestSearchBox(t *testing.T) {
	square := geo.Polygon{{Lat: 30, Lng: -97}, {Lat: 30, Lng: -96.99}, {Lat: 30.01, Lng: -96.99}, {Lat: 30.01, Lng: -97}}

	box := SearchBox(square, geo.GeoPoint{}, 1)
	assert.Less(t, box.MinLat, 30.0)
	assert.Greater(t, box.MaxLat, 30.01)

	box = SearchBox(nil, geo.GeoPoint{Lat: 40, Lng: -75}, 1)
	assert.Less(t, box.MinLat, 40.0)
	assert.Greater(t, box.MaxLng, -75.0)
}
