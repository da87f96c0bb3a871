package cache

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-screen/internal/geo"
	"github.com/sells-group/parcel-screen/internal/proximity"
	"github.com/sells-group/parcel-screen/internal/risk"
)

func testInput() proximity.Input {
	return proximity.Input{
		Boundary: geo.Polygon{
			{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.01}, {Lat: 0.01, Lng: 0.01}, {Lat: 0.01, Lng: 0},
		},
		Reference: geo.GeoPoint{Lat: 0.005, Lng: 0.005},
		Candidates: []proximity.CandidateSite{
			{ID: "a", Point: geo.GeoPoint{Lat: 0.005, Lng: 0.02}, Attributes: map[string]string{"name": "Tank"}},
			{ID: "b", Point: geo.MissingPoint()},
		},
		Ladder: risk.DefaultLadder(),
	}
}

func TestKey_Deterministic(t *testing.T) {
	k1, err := Key(testInput(), "equirectangular")
	require.NoError(t, err)
	k2, err := Key(testInput(), "equirectangular")
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Contains(t, k1, "screen:")
	assert.Len(t, k1, len("screen:")+64)
}

func TestKey_SensitiveToInputs(t *testing.T) {
	base, err := Key(testInput(), "equirectangular")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*proximity.Input) string
	}{
		{"projection", func(*proximity.Input) string { return "other" }},
		{"reference", func(in *proximity.Input) string {
			in.Reference.Lat += 1e-9
			return "equirectangular"
		}},
		{"boundary", func(in *proximity.Input) string {
			in.Boundary = in.Boundary[:3]
			return "equirectangular"
		}},
		{"candidate order", func(in *proximity.Input) string {
			in.Candidates[0], in.Candidates[1] = in.Candidates[1], in.Candidates[0]
			return "equirectangular"
		}},
		{"attributes", func(in *proximity.Input) string {
			in.Candidates[0].Attributes = map[string]string{"name": "Pipe"}
			return "equirectangular"
		}},
		{"ladder", func(in *proximity.Input) string {
			in.Ladder = risk.MustLadder(risk.Tier{Label: "NEAR", MaxMiles: 1})
			return "equirectangular"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := testInput()
			proj := tt.mutate(&in)
			k, err := Key(in, proj)
			require.NoError(t, err)
			assert.NotEqual(t, base, k)
		})
	}
}

func TestFormatCoord_NaN(t *testing.T) {
	assert.Equal(t, "NaN", formatCoord(math.NaN()))
	assert.Equal(t, "0.005", formatCoord(0.005))
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	var c Cache = Nop{}
	require.NoError(t, c.Put(ctx, "k", []byte("v"), time.Minute))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Close())
}

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_GetPut(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "k", []byte(`{"a":1}`), 0))
	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(got))

	require.NoError(t, s.Put(ctx, "k", []byte(`{"a":2}`), time.Hour))
	got, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":2}`, string(got))
}

func TestSQLite_Expiry(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	require.NoError(t, s.Put(ctx, "k", []byte("v"), time.Minute))

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOpenSQLite_PrunesExpired(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "cache.db")

	s, err := NewSQLite(dsn)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	s.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	require.NoError(t, s.Put(ctx, "stale", []byte("v"), time.Hour))
	require.NoError(t, s.Put(ctx, "pinned", []byte("v"), 0))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	var keys []string
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM screen_cache ORDER BY key`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var k string
		require.NoError(t, rows.Scan(&k))
		keys = append(keys, k)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"pinned"}, keys)
}

func TestSQLite_Runs(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	first := &RunRecord{CacheKey: "k1", Candidates: 3, Retained: 2, CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	second := &RunRecord{CacheKey: "k2", Candidates: 5, Retained: 1, CacheHit: true, CreatedAt: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, s.RecordRun(ctx, first))
	require.NoError(t, s.RecordRun(ctx, second))
	assert.NotEmpty(t, first.ID)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "k2", runs[0].CacheKey)
	assert.True(t, runs[0].CacheHit)
	assert.Equal(t, "k1", runs[1].CacheKey)
	assert.Equal(t, 3, runs[1].Candidates)
}

func TestOpenRedis_RequiresAddress(t *testing.T) {
	_, err := OpenRedis(context.Background(), "", "", 0)
	assert.Error(t, err)
}
