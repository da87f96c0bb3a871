package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidatesFromRows_Aliases(t *testing.T) {
	rows := [][]string{
		{"\ufeffSite_ID", "Name", "LAT", "Lon", "Status"},
		{"A1", "Gas Station", "30.1", "-97.1", "open"},
		{"", "Dry Cleaner", "30.2", "-97.2", "closed"},
	}

	sites, stats, err := CandidatesFromRows(rows, Mapping{})
	require.NoError(t, err)
	require.Len(t, sites, 2)

	assert.Equal(t, "A1", sites[0].ID)
	assert.Equal(t, 30.1, sites[0].Point.Lat)
	assert.Equal(t, -97.1, sites[0].Point.Lng)
	assert.Equal(t, map[string]string{"Site_ID": "A1", "Name": "Gas Station", "Status": "open"}, sites[0].Attributes)

	assert.Equal(t, "row-3", sites[1].ID)
	assert.Equal(t, Stats{Rows: 2, CandidateCount: 2}, stats)
}

func TestCandidatesFromRows_ExplicitColumns(t *testing.T) {
	rows := [][]string{
		{"facility", "y_coord", "x_coord"},
		{"F1", "45.5", "-122.6"},
	}

	sites, _, err := CandidatesFromRows(rows, Mapping{ID: "Facility", Lat: "y_coord", Lng: "x_coord"})
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "F1", sites[0].ID)
	assert.Equal(t, 45.5, sites[0].Point.Lat)
}

func TestCandidatesFromRows_MissingCoordinatesKept(t *testing.T) {
	rows := [][]string{
		{"id", "latitude", "longitude"},
		{"1", "", "-97"},
		{"2", "abc", "-97"},
		{"3", "30", "-97"},
		{"", "", ""},
	}

	sites, stats, err := CandidatesFromRows(rows, Mapping{})
	require.NoError(t, err)
	require.Len(t, sites, 3)
	assert.False(t, sites[0].Point.Valid())
	assert.False(t, sites[1].Point.Valid())
	assert.True(t, sites[2].Point.Valid())
	assert.Equal(t, 2, stats.MissingCoords)
	assert.Equal(t, 3, stats.Rows)
}

func TestCandidatesFromRows_MinConfidence(t *testing.T) {
	rows := [][]string{
		{"id", "latitude", "longitude", "confidence"},
		{"1", "30", "-97", "0.95"},
		{"2", "30", "-97", "0.40"},
		{"3", "30", "-97", ""},
		{"4", "30", "-97", "0.80"},
	}

	sites, stats, err := CandidatesFromRows(rows, Mapping{MinConfidence: 0.8})
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "1", sites[0].ID)
	assert.Equal(t, "4", sites[1].ID)
	assert.Equal(t, 2, stats.LowConfidence)
	assert.Equal(t, "0.95", sites[0].Attributes["confidence"])
}

func TestCandidatesFromRows_Errors(t *testing.T) {
	_, _, err := CandidatesFromRows(nil, Mapping{})
	require.Error(t, err)

	_, _, err = CandidatesFromRows([][]string{{"id", "name"}}, Mapping{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latitude/longitude columns not found")

	_, _, err = CandidatesFromRows([][]string{{"lat", "lng"}}, Mapping{MinConfidence: 0.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no confidence column")

	_, _, err = CandidatesFromRows([][]string{{"lat", "lng"}}, Mapping{Lat: "missing"})
	require.Error(t, err)
}

func TestLoadCandidates_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name,latitude,longitude\n1,\"Shell, Inc\",30.1,-97.1\n"), 0o644))

	sites, stats, err := LoadCandidates(context.Background(), path, Mapping{})
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "Shell, Inc", sites[0].Attributes["name"])
	assert.Equal(t, 1, stats.CandidateCount)
}

func TestLoadCandidates_XLSX(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Schools": {
			{"School ID", "School Name", "Latitude", "Longitude"},
			{"S1", "Lincoln Elementary", "40.1", "-75.2"},
		},
	})

	sites, _, err := LoadCandidates(context.Background(), path, Mapping{ID: "School ID", SheetName: "Schools"})
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "S1", sites[0].ID)
	assert.Equal(t, "Lincoln Elementary", sites[0].Attributes["School Name"])
}

func TestLoadCandidates_UnsupportedExtension(t *testing.T) {
	_, _, err := LoadCandidates(context.Background(), "sites.parquet", Mapping{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported candidate file type")
}
