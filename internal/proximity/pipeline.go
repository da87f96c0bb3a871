package proximity

import (
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/parcel-screen/internal/geo"
	"github.com/sells-group/parcel-screen/internal/risk"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConcurrency caps the number of candidates evaluated in parallel.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithProjector sets the planar projection used for edge distances.
func WithProjector(proj geo.Projector) Option {
	return func(p *Pipeline) {
		if proj != nil {
			p.projector = proj
		}
	}
}

// Pipeline runs screening batches. It holds no per-run state, so one Pipeline
// can serve concurrent runs with different ladders.
type Pipeline struct {
	concurrency int
	projector   geo.Projector
}

// New creates a Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		concurrency: runtime.GOMAXPROCS(0),
		projector:   geo.Equirectangular{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Projector returns the projection strategy in use.
func (p *Pipeline) Projector() geo.Projector {
	return p.projector
}

// evaluation is the per-candidate intermediate, indexed by input position.
type evaluation struct {
	result  Result
	skipped bool
	diag    Diagnostic
}

// Run screens in.Candidates against in.Boundary.
//
// An invalid boundary degrades the whole run to centroid-only distances with
// an invalid_geometry diagnostic. Candidates without usable coordinates are
// skipped with a missing_coordinates diagnostic. When Reference is not a valid
// coordinate the average of the boundary's usable vertices is used instead,
// even when the boundary itself is invalid. Run fails only without a
// ladder or any usable reference point, or on geo.ErrNumericAnomaly, which
// indicates a bug rather than bad input.
func (p *Pipeline) Run(in Input) (*Output, error) {
	if in.Ladder == nil {
		return nil, eris.New("proximity: ladder is required")
	}
	log := zap.L().With(zap.String("component", "proximity.pipeline"))

	out := &Output{Summary: make(map[string]int, in.Ladder.Len()+1)}

	boundary := in.Boundary
	if boundary != nil {
		if err := boundary.Validate(); err != nil {
			log.Warn("invalid parcel boundary, falling back to centroid distances",
				zap.Int("vertices", len(boundary)),
				zap.Error(err),
			)
			out.Diagnostics = append(out.Diagnostics, Diagnostic{
				Kind:    DiagInvalidGeometry,
				Message: fmt.Sprintf("invalid parcel boundary (%v); screened by centroid distance only", err),
			})
			boundary = nil
		}
	}
	out.CentroidOnly = boundary == nil

	reference := in.Reference
	if !reference.Valid() {
		reference = in.Boundary.Centroid()
	}
	if !reference.Valid() {
		return nil, eris.New("proximity: reference point is not a valid coordinate")
	}

	evals := make([]evaluation, len(in.Candidates))
	g := new(errgroup.Group)
	g.SetLimit(p.concurrency)
	for i, c := range in.Candidates {
		g.Go(func() error {
			ev, err := p.evaluate(c, reference, boundary, in.Ladder)
			if err != nil {
				return eris.Wrapf(err, "proximity: candidate %q", c.ID)
			}
			evals[i] = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("numeric anomaly during screening", zap.Error(err))
		return nil, err
	}

	results := make([]Result, 0, len(evals))
	for _, ev := range evals {
		if ev.skipped {
			log.Warn("skipping candidate",
				zap.String("candidate_id", ev.diag.CandidateID),
				zap.String("reason", ev.diag.Message),
			)
			out.Diagnostics = append(out.Diagnostics, ev.diag)
			continue
		}
		out.Screened++
		if ev.result.Tier.IsOutsideRange() && !ev.result.Contained {
			continue
		}
		results = append(results, ev.result)
	}

	SortByEdgeDistance(results)
	for i := range results {
		results[i].Rank = i + 1
		out.Summary[results[i].Tier.Label]++
	}
	out.Results = results

	log.Debug("screening complete",
		zap.Int("candidates", len(in.Candidates)),
		zap.Int("screened", out.Screened),
		zap.Int("retained", len(results)),
		zap.Int("diagnostics", len(out.Diagnostics)),
	)
	return out, nil
}

func (p *Pipeline) evaluate(c CandidateSite, reference geo.GeoPoint, boundary geo.Polygon, ladder *risk.Ladder) (evaluation, error) {
	if !c.Point.Valid() {
		return evaluation{skipped: true, diag: Diagnostic{
			Kind:        DiagMissingCoordinates,
			CandidateID: c.ID,
			Message:     "candidate has no usable latitude/longitude",
		}}, nil
	}

	r := Result{Candidate: c}
	r.CentroidMiles = geo.GreatCircleMiles(reference, c.Point)
	r.EdgeMiles = r.CentroidMiles

	if boundary != nil {
		d, pt, err := geo.PointToPolygonDistance(c.Point, boundary, p.projector)
		if err != nil {
			return evaluation{}, err
		}
		contained, err := geo.PointInPolygon(c.Point, boundary)
		if err != nil {
			return evaluation{}, err
		}
		r.EdgeMiles = d
		r.ClosestEdgePoint = &pt
		r.Contained = contained
	}

	if !finite(r.CentroidMiles) || !finite(r.EdgeMiles) {
		return evaluation{}, eris.Wrapf(geo.ErrNumericAnomaly, "proximity: non-finite distance for %q", c.ID)
	}

	r.Tier = risk.Classify(r.EdgeMiles, r.Contained, ladder)
	return evaluation{result: r}, nil
}

// SortByEdgeDistance orders results ascending by EdgeMiles. The sort is
// stable, so ties keep their input order and repeated sorts are idempotent.
func SortByEdgeDistance(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].EdgeMiles < results[j].EdgeMiles
	})
}

// OrderedSummary returns the tier counts in ladder order, omitting tiers with
// no results.
func OrderedSummary(summary map[string]int, ladder *risk.Ladder) []TierCount {
	var out []TierCount
	for _, label := range ladder.Labels() {
		if n := summary[label]; n > 0 {
			out = append(out, TierCount{Label: label, Count: n})
		}
	}
	return out
}

// TierCount is one row of an ordered summary.
type TierCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
