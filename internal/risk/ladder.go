// Package risk maps screening distances onto an ordered severity ladder.
package risk

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// OutsideRangeLabel is the label of the implicit catch-all tier.
const OutsideRangeLabel = "OUTSIDE_RANGE"

// Default tier labels.
const (
	LabelCritical     = "CRITICAL"
	LabelHigh         = "HIGH"
	LabelModerateHigh = "MODERATE-HIGH"
	LabelModerate     = "MODERATE"
	LabelLowModerate  = "LOW-MODERATE"
	LabelLow          = "LOW"
)

// Metadata keys used by the default ladder. The classifier stores metadata
// but never reads it.
const (
	MetaColor        = "color"
	MetaCostEstimate = "cost_estimate"
	MetaDescription  = "description"
)

// ErrInvalidLadder is returned when a ladder fails validation.
var ErrInvalidLadder = eris.New("risk: invalid ladder")

// Tier is one rung of a severity ladder. Severity is the zero-based ladder
// position: 0 is the most severe.
type Tier struct {
	Label    string            `json:"label" yaml:"label" mapstructure:"label"`
	MaxMiles float64           `json:"max_miles" yaml:"max_miles" mapstructure:"max_miles"`
	Severity int               `json:"severity" yaml:"-" mapstructure:"-"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty" mapstructure:"metadata"`
}

// IsOutsideRange reports whether t is the catch-all tier.
func (t Tier) IsOutsideRange() bool {
	return t.Label == OutsideRangeLabel
}

// Ladder is an ordered list of tiers, ascending by MaxMiles. The order is
// what makes classification first-match-wins, so it is kept as a slice and
// never derived from map iteration.
type Ladder struct {
	tiers   []Tier
	outside Tier
}

// NewLadder validates tiers and builds a ladder. Thresholds must be finite,
// non-negative, and strictly ascending; labels must be unique, non-empty, and
// must not collide with OutsideRangeLabel.
func NewLadder(tiers ...Tier) (*Ladder, error) {
	if len(tiers) == 0 {
		return nil, eris.Wrap(ErrInvalidLadder, "risk: ladder has no tiers")
	}

	seen := make(map[string]bool, len(tiers))
	out := make([]Tier, len(tiers))
	for i, t := range tiers {
		label := strings.TrimSpace(t.Label)
		switch {
		case label == "":
			return nil, eris.Wrapf(ErrInvalidLadder, "risk: tier %d has no label", i)
		case strings.EqualFold(label, OutsideRangeLabel):
			return nil, eris.Wrapf(ErrInvalidLadder, "risk: label %q is reserved", label)
		case seen[label]:
			return nil, eris.Wrapf(ErrInvalidLadder, "risk: duplicate label %q", label)
		case math.IsNaN(t.MaxMiles) || math.IsInf(t.MaxMiles, 0) || t.MaxMiles < 0:
			return nil, eris.Wrapf(ErrInvalidLadder, "risk: tier %q has invalid threshold %v", label, t.MaxMiles)
		case i > 0 && t.MaxMiles <= out[i-1].MaxMiles:
			return nil, eris.Wrapf(ErrInvalidLadder, "risk: tier %q threshold %v is not above %q (%v)",
				label, t.MaxMiles, out[i-1].Label, out[i-1].MaxMiles)
		}
		seen[label] = true

		out[i] = Tier{
			Label:    label,
			MaxMiles: t.MaxMiles,
			Severity: i,
			Metadata: copyMetadata(t.Metadata),
		}
	}

	return &Ladder{
		tiers: out,
		outside: Tier{
			Label:    OutsideRangeLabel,
			MaxMiles: math.MaxFloat64,
			Severity: len(out),
		},
	}, nil
}

// MustLadder is NewLadder for static configuration; it panics on error.
func MustLadder(tiers ...Tier) *Ladder {
	l, err := NewLadder(tiers...)
	if err != nil {
		panic(err)
	}
	return l
}

// Tiers returns a copy of the configured tiers in ladder order.
func (l *Ladder) Tiers() []Tier {
	out := make([]Tier, len(l.tiers))
	for i, t := range l.tiers {
		t.Metadata = copyMetadata(t.Metadata)
		out[i] = t
	}
	return out
}

// OutsideRange returns the catch-all tier.
func (l *Ladder) OutsideRange() Tier {
	return l.outside
}

// Labels returns the tier labels in ladder order followed by OutsideRangeLabel.
func (l *Ladder) Labels() []string {
	labels := make([]string, 0, len(l.tiers)+1)
	for _, t := range l.tiers {
		labels = append(labels, t.Label)
	}
	return append(labels, OutsideRangeLabel)
}

// MaxMiles returns the largest configured threshold, which bounds the search
// radius any candidate can be classified within.
func (l *Ladder) MaxMiles() float64 {
	return l.tiers[len(l.tiers)-1].MaxMiles
}

// Len returns the number of configured tiers, excluding the catch-all.
func (l *Ladder) Len() int {
	return len(l.tiers)
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
