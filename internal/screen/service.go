// Package screen runs screening requests end to end: cache lookup, the
// proximity pipeline, elevation enrichment, and run bookkeeping.
package screen

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/parcel-screen/internal/cache"
	"github.com/sells-group/parcel-screen/internal/geo"
	"github.com/sells-group/parcel-screen/internal/ingest"
	"github.com/sells-group/parcel-screen/internal/proximity"
	"github.com/sells-group/parcel-screen/internal/report"
	"github.com/sells-group/parcel-screen/internal/risk"
	"github.com/sells-group/parcel-screen/pkg/elevation"
)

// CandidateSource supplies candidate sites inside a search box.
type CandidateSource interface {
	Candidates(ctx context.Context, bbox geo.BBox) ([]proximity.CandidateSite, error)
}

// RunRecorder keeps a history of screening runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, r *cache.RunRecord) error
}

// Option configures a Service.
type Option func(*Service)

// WithCache stores outputs in c for ttl. A zero ttl never expires.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
			s.ttl = ttl
		}
	}
}

// WithElevation enriches retained results with ground elevation, querying at
// most concurrency sites at once.
func WithElevation(client elevation.Client, concurrency int) Option {
	return func(s *Service) {
		s.elevation = client
		if concurrency > 0 {
			s.elevationConcurrency = concurrency
		}
	}
}

// WithRunRecorder records every run.
func WithRunRecorder(r RunRecorder) Option {
	return func(s *Service) {
		s.runs = r
	}
}

// WithDefaultLadder sets the ladder used when a request carries none.
func WithDefaultLadder(l *risk.Ladder) Option {
	return func(s *Service) {
		if l != nil {
			s.ladder = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service screens parcels.
type Service struct {
	pipeline             *proximity.Pipeline
	ladder               *risk.Ladder
	cache                cache.Cache
	ttl                  time.Duration
	elevation            elevation.Client
	elevationConcurrency int
	runs                 RunRecorder
	now                  func() time.Time
	log                  *zap.Logger
}

// New creates a Service around pipeline.
func New(pipeline *proximity.Pipeline, opts ...Option) *Service {
	s := &Service{
		pipeline:             pipeline,
		ladder:               risk.DefaultLadder(),
		cache:                cache.Nop{},
		elevationConcurrency: 4,
		now:                  time.Now,
		log:                  zap.L().With(zap.String("component", "screen")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ladder returns the ladder used for requests without one.
func (s *Service) Ladder() *risk.Ladder {
	return s.ladder
}

// cachedRun is the cached payload. Elevations are cached with the output so a
// hit needs no external calls.
type cachedRun struct {
	Output     *proximity.Output  `json:"output"`
	Elevations map[string]float64 `json:"elevations,omitempty"`
}

// Screen runs in through the pipeline, or returns the cached output for
// identical input.
func (s *Service) Screen(ctx context.Context, in proximity.Input) (*report.Document, error) {
	if in.Ladder == nil {
		in.Ladder = s.ladder
	}
	runID := uuid.New().String()
	log := s.log.With(zap.String("run_id", runID))

	key, err := cache.Key(in, s.pipeline.Projector().Name())
	if err != nil {
		return nil, err
	}

	run, hit := s.lookup(ctx, key, log)
	if !hit {
		out, err := s.pipeline.Run(in)
		if err != nil {
			return nil, eris.Wrap(err, "screen: run pipeline")
		}
		run = &cachedRun{Output: out}
		if s.elevation != nil {
			run.Elevations, err = s.enrich(ctx, out.Results, log)
			if err != nil {
				return nil, err
			}
		}
		s.store(ctx, key, run, log)
	}

	doc := &report.Document{
		RunID:       runID,
		GeneratedAt: s.now().UTC(),
		CacheHit:    hit,
		Boundary:    in.Boundary,
		Reference:   effectiveReference(in),
		Ladder:      in.Ladder,
		Output:      run.Output,
		Elevations:  run.Elevations,
	}

	if s.runs != nil {
		rec := &cache.RunRecord{
			ID:         runID,
			CacheKey:   key,
			Candidates: len(in.Candidates),
			Retained:   len(run.Output.Results),
			CacheHit:   hit,
			CreatedAt:  doc.GeneratedAt,
		}
		if err := s.runs.RecordRun(ctx, rec); err != nil {
			log.Warn("failed to record run", zap.Error(err))
		}
	}

	log.Info("screening run complete",
		zap.Bool("cache_hit", hit),
		zap.Int("candidates", len(in.Candidates)),
		zap.Int("retained", len(run.Output.Results)),
		zap.Int("diagnostics", len(run.Output.Diagnostics)),
	)
	return doc, nil
}

// ScreenSource adds candidates from src, searched within the ladder's largest
// threshold of the parcel, to in and screens the result.
func (s *Service) ScreenSource(ctx context.Context, in proximity.Input, src CandidateSource) (*report.Document, error) {
	if in.Ladder == nil {
		in.Ladder = s.ladder
	}
	ref := effectiveReference(in)
	if in.Boundary.Validate() != nil && !ref.Valid() {
		return nil, eris.New("screen: a boundary or reference point is required to search a source")
	}
	box := ingest.SearchBox(in.Boundary, ref, in.Ladder.MaxMiles())
	sites, err := src.Candidates(ctx, box)
	if err != nil {
		return nil, eris.Wrap(err, "screen: load candidates")
	}
	in.Candidates = append(append([]proximity.CandidateSite{}, in.Candidates...), sites...)
	return s.Screen(ctx, in)
}

func (s *Service) lookup(ctx context.Context, key string, log *zap.Logger) (*cachedRun, bool) {
	payload, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn("cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var run cachedRun
	if err := json.Unmarshal(payload, &run); err != nil || run.Output == nil {
		log.Warn("discarding unreadable cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &run, true
}

func (s *Service) store(ctx context.Context, key string, run *cachedRun, log *zap.Logger) {
	payload, err := json.Marshal(run)
	if err != nil {
		log.Warn("failed to encode cache entry", zap.Error(err))
		return
	}
	if err := s.cache.Put(ctx, key, payload, s.ttl); err != nil {
		log.Warn("cache store failed", zap.Error(err))
	}
}

// enrich looks up elevations for results. Failed lookups are logged and left
// out of the map; only cancellation is an error.
func (s *Service) enrich(ctx context.Context, results []proximity.Result, log *zap.Logger) (map[string]float64, error) {
	out := make(map[string]float64, len(results))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(s.elevationConcurrency)
	for _, r := range results {
		g.Go(func() error {
			feet, err := s.elevation.Feet(ctx, r.Candidate.Point.Lat, r.Candidate.Point.Lng)
			if err != nil {
				if ctx.Err() != nil {
					return eris.Wrap(ctx.Err(), "screen: elevation enrichment")
				}
				log.Debug("elevation lookup failed",
					zap.String("candidate_id", r.Candidate.ID),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			out[r.Candidate.ID] = feet
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// effectiveReference mirrors the pipeline's fallback to the boundary centroid.
func effectiveReference(in proximity.Input) geo.GeoPoint {
	if in.Reference.Valid() {
		return in.Reference
	}
	if c := in.Boundary.Centroid(); c.Valid() {
		return c
	}
	return in.Reference
}
