package ingest

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeZIP builds an archive from entry name to source file. An empty source
// writes a placeholder body.
func writeZIP(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, src := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		if src == "" {
			_, err = w.Write([]byte("placeholder"))
			require.NoError(t, err)
			continue
		}
		data, err := os.ReadFile(src)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestFetcher_ResolveLocalPath(t *testing.T) {
	got, cleanup, err := NewFetcher(0).Resolve(context.Background(), "/data/sites.csv", CandidateExts)
	require.NoError(t, err)
	defer cleanup()
	assert.Equal(t, "/data/sites.csv", got)
}

func TestFetcher_ResolveZippedShapefile(t *testing.T) {
	shpPath := writeShapefile(t, [][]shp.Point{{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0}}})
	base := strings.TrimSuffix(shpPath, ".shp")
	archive := writeZIP(t, map[string]string{
		"parcel/parcel.shp":            shpPath,
		"parcel/parcel.shx":            base + ".shx",
		"parcel/parcel.dbf":            base + ".dbf",
		"__MACOSX/parcel/._parcel.shp": "",
		"README.txt":                   "",
	})

	got, cleanup, err := NewFetcher(0).Resolve(context.Background(), archive, BoundaryExts)
	require.NoError(t, err)
	assert.Equal(t, "parcel.shp", filepath.Base(got))
	assert.NotContains(t, got, "__MACOSX")

	poly, err := LoadBoundary(context.Background(), got)
	require.NoError(t, err)
	assert.Len(t, poly, 4)

	cleanup()
	_, err = os.Stat(got)
	assert.True(t, os.IsNotExist(err))
}

func TestFetcher_ResolveZipWithoutMatch(t *testing.T) {
	archive := writeZIP(t, map[string]string{"notes.md": ""})
	_, cleanup, err := NewFetcher(0).Resolve(context.Background(), archive, CandidateExts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no")
	cleanup()
}

func TestExtractZIP_RejectsZipSlip(t *testing.T) {
	archive := writeZIP(t, map[string]string{"../escape.csv": ""})
	dest := t.TempDir()
	_, err := extractZIP(archive, dest)
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "escape.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetcher_ResolveHTTP(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "/exports/sites.csv", r.URL.Path)
		_, _ = w.Write([]byte("id,lat,lng\na,1,2\n"))
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	got, cleanup, err := f.Resolve(context.Background(), srv.URL+"/exports/sites.csv", CandidateExts)
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "sites.csv", filepath.Base(got))
	assert.Equal(t, int32(2), calls.Load())
	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "id,lat,lng\na,1,2\n", string(data))
}

func TestFetcher_ResolveHTTPNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	_, cleanup, err := NewFetcher(5*time.Second).Resolve(context.Background(), srv.URL+"/missing.csv", CandidateExts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Equal(t, int32(1), calls.Load())
	cleanup()
}

func TestParseFTPURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPath string
		wantErr  bool
	}{
		{
			name:     "standard ftp url",
			url:      "ftp://ftp.example.gov/pub/parcels/county.zip",
			wantHost: "ftp.example.gov:21",
			wantPath: "/pub/parcels/county.zip",
		},
		{
			name:     "ftp url with port",
			url:      "ftp://ftp.example.gov:2121/data/sites.csv",
			wantHost: "ftp.example.gov:2121",
			wantPath: "/data/sites.csv",
		},
		{name: "http scheme rejected", url: "http://example.com/file.csv", wantErr: true},
		{name: "empty path", url: "ftp://ftp.example.gov", wantErr: true},
		{name: "invalid url", url: "://bad", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, path, err := parseFTPURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestPickByExtension(t *testing.T) {
	files := []string{"/t/a.txt", "/t/b.csv", "/t/c.XLSX"}
	assert.Equal(t, "/t/c.XLSX", pickByExtension(files, CandidateExts))
	assert.Equal(t, "/t/b.csv", pickByExtension(files, []string{".csv"}))
	assert.Equal(t, "", pickByExtension(files, []string{".shp"}))
}
