// Package proximity screens a batch of candidate sites against one parcel and
// returns ranked, tier-classified results.
package proximity

import (
	"github.com/sells-group/parcel-screen/internal/geo"
	"github.com/sells-group/parcel-screen/internal/risk"
)

// CandidateSite is a point feature to screen. Attributes are caller-owned and
// passed through untouched.
type CandidateSite struct {
	ID         string            `json:"id"`
	Point      geo.GeoPoint      `json:"point"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Input is one screening request.
type Input struct {
	// Boundary is the parcel ring. Nil means centroid-only screening.
	Boundary geo.Polygon `json:"boundary,omitempty"`
	// Reference is the parcel anchor used for centroid distances.
	Reference  geo.GeoPoint    `json:"reference"`
	Candidates []CandidateSite `json:"candidates"`
	Ladder     *risk.Ladder    `json:"-"`
}

// Result is the screening outcome for one candidate. Results are built once
// per run and never modified afterwards.
type Result struct {
	Candidate        CandidateSite `json:"candidate"`
	CentroidMiles    float64       `json:"centroid_miles"`
	EdgeMiles        float64       `json:"edge_miles"`
	ClosestEdgePoint *geo.GeoPoint `json:"closest_edge_point,omitempty"`
	Contained        bool          `json:"contained"`
	Tier             risk.Tier     `json:"tier"`
	Rank             int           `json:"rank"`
}

// DiagnosticKind classifies a recoverable problem found during a run.
type DiagnosticKind string

// Diagnostic kinds.
const (
	DiagInvalidGeometry    DiagnosticKind = "invalid_geometry"
	DiagMissingCoordinates DiagnosticKind = "missing_coordinates"
)

// Diagnostic describes a recoverable problem. CandidateID is empty for
// run-level diagnostics.
type Diagnostic struct {
	Kind        DiagnosticKind `json:"kind"`
	CandidateID string         `json:"candidate_id,omitempty"`
	Message     string         `json:"message"`
}

// Output is the ranked result list plus the tier summary and diagnostics.
type Output struct {
	Results      []Result       `json:"results"`
	Summary      map[string]int `json:"summary"`
	Diagnostics  []Diagnostic   `json:"diagnostics,omitempty"`
	CentroidOnly bool           `json:"centroid_only"`
	Screened     int            `json:"screened"`
}
