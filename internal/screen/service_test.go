package screen

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-screen/internal/cache"
	"github.com/sells-group/parcel-screen/internal/geo"
	"github.com/sells-group/parcel-screen/internal/proximity"
	"github.com/sells-group/parcel-screen/internal/risk"
)

var square = geo.Polygon{
	{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.01}, {Lat: 0.01, Lng: 0.01}, {Lat: 0.01, Lng: 0},
}

func testInput() proximity.Input {
	return proximity.Input{
		Boundary:  square,
		Reference: geo.GeoPoint{Lat: 0.005, Lng: 0.005},
		Candidates: []proximity.CandidateSite{
			{ID: "east", Point: geo.GeoPoint{Lat: 0.005, Lng: 0.02}},
			{ID: "inside", Point: geo.GeoPoint{Lat: 0.004, Lng: 0.004}},
			{ID: "far", Point: geo.GeoPoint{Lat: 2, Lng: 2}},
		},
	}
}

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *memCache) Put(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = payload
	m.ttls[key] = ttl
	return nil
}

func (m *memCache) Close() error { return nil }

type fakeElevation struct {
	mu    sync.Mutex
	calls int
	feet  map[string]float64
}

func (f *fakeElevation) Feet(_ context.Context, lat, lng float64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if lng > 0.015 {
		return 0, errors.New("no coverage")
	}
	return 100 + lat*1000, nil
}

type fakeRecorder struct {
	runs []cache.RunRecord
}

func (f *fakeRecorder) RecordRun(_ context.Context, r *cache.RunRecord) error {
	f.runs = append(f.runs, *r)
	return nil
}

type fakeSource struct {
	box   geo.BBox
	sites []proximity.CandidateSite
	err   error
}

func (f *fakeSource) Candidates(_ context.Context, bbox geo.BBox) ([]proximity.CandidateSite, error) {
	f.box = bbox
	return f.sites, f.err
}

func TestScreen_Basic(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC)
	svc := New(proximity.New(), WithClock(func() time.Time { return now }))

	doc, err := svc.Screen(context.Background(), testInput())
	require.NoError(t, err)

	assert.NotEmpty(t, doc.RunID)
	assert.Equal(t, now, doc.GeneratedAt)
	assert.False(t, doc.CacheHit)
	assert.Same(t, svc.Ladder(), doc.Ladder)
	require.Len(t, doc.Output.Results, 2)
	assert.Equal(t, "inside", doc.Output.Results[0].Candidate.ID)
	assert.Equal(t, risk.LabelCritical, doc.Output.Results[0].Tier.Label)
	assert.Equal(t, "east", doc.Output.Results[1].Candidate.ID)
	assert.Nil(t, doc.Elevations)
}

func TestScreen_CacheHit(t *testing.T) {
	mc := newMemCache()
	rec := &fakeRecorder{}
	svc := New(proximity.New(), WithCache(mc, time.Hour), WithRunRecorder(rec))

	first, err := svc.Screen(context.Background(), testInput())
	require.NoError(t, err)
	require.Len(t, mc.entries, 1)
	for _, ttl := range mc.ttls {
		assert.Equal(t, time.Hour, ttl)
	}

	second, err := svc.Screen(context.Background(), testInput())
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Output.Summary, second.Output.Summary)
	require.Len(t, second.Output.Results, len(first.Output.Results))
	for i := range first.Output.Results {
		assert.Equal(t, first.Output.Results[i].Candidate.ID, second.Output.Results[i].Candidate.ID)
		assert.Equal(t, first.Output.Results[i].EdgeMiles, second.Output.Results[i].EdgeMiles)
		assert.Equal(t, first.Output.Results[i].Tier.Label, second.Output.Results[i].Tier.Label)
	}

	require.Len(t, rec.runs, 2)
	assert.False(t, rec.runs[0].CacheHit)
	assert.True(t, rec.runs[1].CacheHit)
	assert.Equal(t, rec.runs[0].CacheKey, rec.runs[1].CacheKey)
	assert.Equal(t, 3, rec.runs[1].Candidates)
	assert.Equal(t, 2, rec.runs[1].Retained)
}

func TestScreen_DifferentLadderMisses(t *testing.T) {
	mc := newMemCache()
	svc := New(proximity.New(), WithCache(mc, 0))

	_, err := svc.Screen(context.Background(), testInput())
	require.NoError(t, err)

	in := testInput()
	in.Ladder = risk.MustLadder(risk.Tier{Label: "ANY", MaxMiles: 500})
	doc, err := svc.Screen(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, doc.CacheHit)
	assert.Len(t, doc.Output.Results, 3)
	assert.Len(t, mc.entries, 2)
}

func TestScreen_CacheErrorsAreNotFatal(t *testing.T) {
	mc := newMemCache()
	mc.getErr = errors.New("connection refused")
	svc := New(proximity.New(), WithCache(mc, 0))

	doc, err := svc.Screen(context.Background(), testInput())
	require.NoError(t, err)
	assert.False(t, doc.CacheHit)
	assert.Len(t, doc.Output.Results, 2)
}

func TestScreen_CorruptCacheEntryIsAMiss(t *testing.T) {
	mc := newMemCache()
	svc := New(proximity.New(), WithCache(mc, 0))

	key, err := cache.Key(func() proximity.Input {
		in := testInput()
		in.Ladder = svc.Ladder()
		return in
	}(), "equirectangular")
	require.NoError(t, err)
	mc.entries[key] = []byte("{not json")

	doc, err := svc.Screen(context.Background(), testInput())
	require.NoError(t, err)
	assert.False(t, doc.CacheHit)
	assert.Len(t, doc.Output.Results, 2)
}

func TestScreen_Elevation(t *testing.T) {
	elev := &fakeElevation{}
	mc := newMemCache()
	svc := New(proximity.New(), WithElevation(elev, 2), WithCache(mc, 0))

	doc, err := svc.Screen(context.Background(), testInput())
	require.NoError(t, err)

	// "east" has no coverage and is left out; results themselves are untouched.
	require.Len(t, doc.Elevations, 1)
	assert.InDelta(t, 104, doc.Elevations["inside"], 1e-9)
	assert.Equal(t, 2, elev.calls)

	cached, err := svc.Screen(context.Background(), testInput())
	require.NoError(t, err)
	assert.True(t, cached.CacheHit)
	assert.Equal(t, doc.Elevations, cached.Elevations)
	assert.Equal(t, 2, elev.calls)
}

func TestScreen_PipelineError(t *testing.T) {
	svc := New(proximity.New())
	in := testInput()
	in.Boundary = nil
	in.Reference = geo.MissingPoint()

	_, err := svc.Screen(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reference point")
}

func TestScreen_ReferenceFallsBackToCentroid(t *testing.T) {
	svc := New(proximity.New())
	in := testInput()
	in.Reference = geo.MissingPoint()

	doc, err := svc.Screen(context.Background(), in)
	require.NoError(t, err)
	assert.InDelta(t, 0.005, doc.Reference.Lat, 1e-12)
	assert.InDelta(t, 0.005, doc.Reference.Lng, 1e-12)
}

func TestScreenSource(t *testing.T) {
	src := &fakeSource{sites: []proximity.CandidateSite{
		{ID: "db-1", Point: geo.GeoPoint{Lat: 0.011, Lng: 0.005}, Attributes: map[string]string{"source_table": "geo.poi"}},
	}}
	svc := New(proximity.New())

	doc, err := svc.ScreenSource(context.Background(), testInput(), src)
	require.NoError(t, err)

	ids := make([]string, 0, len(doc.Output.Results))
	for _, r := range doc.Output.Results {
		ids = append(ids, r.Candidate.ID)
	}
	assert.Equal(t, []string{"db-1", "inside", "east"}, ids)

	// Box is the parcel grown by one mile (the default ladder's largest threshold).
	assert.Less(t, src.box.MinLat, -0.014)
	assert.Greater(t, src.box.MaxLat, 0.024)
}

func TestScreenSource_Errors(t *testing.T) {
	svc := New(proximity.New())

	_, err := svc.ScreenSource(context.Background(), testInput(), &fakeSource{err: errors.New("db down")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load candidates")

	in := testInput()
	in.Boundary = nil
	in.Reference = geo.MissingPoint()
	_, err = svc.ScreenSource(context.Background(), in, &fakeSource{})
	require.Error(t, err)
}

func TestWithDefaultLadder(t *testing.T) {
	l := risk.MustLadder(risk.Tier{Label: "ANY", MaxMiles: 500})
	svc := New(proximity.New(), WithDefaultLadder(l), WithDefaultLadder(nil))
	assert.Same(t, l, svc.Ladder())
}
