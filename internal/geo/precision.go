package geo

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// RoundMode selects how Precision shortens a distance for display.
type RoundMode string

// Round modes.
const (
	ModeRound    RoundMode = "round"
	ModeTruncate RoundMode = "truncate"
)

// Precision is the display policy for distances. Regulatory reports use
// ModeTruncate so a compliance distance is never rounded up. It is applied
// only when formatting output; comparisons always use full precision.
type Precision struct {
	Decimals uint8     `json:"decimals" mapstructure:"decimals"`
	Mode     RoundMode `json:"mode" mapstructure:"mode"`
}

// DefaultPrecision truncates to three decimals.
func DefaultPrecision() Precision {
	return Precision{Decimals: 3, Mode: ModeTruncate}
}

// ParseRoundMode validates a configured mode.
func ParseRoundMode(s string) (RoundMode, error) {
	switch RoundMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeTruncate:
		return ModeTruncate, nil
	case ModeRound:
		return ModeRound, nil
	default:
		return "", eris.Errorf("geo: unknown rounding mode %q", s)
	}
}

// Format renders v with exactly Decimals fractional digits. Any mode other
// than ModeRound truncates.
func (pr Precision) Format(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	d := int(pr.Decimals)
	if pr.Mode == ModeRound {
		return strconv.FormatFloat(v, 'f', d, 64)
	}

	// Truncate on the shortest decimal representation so values such as 0.29
	// are not cut to 0.28 by binary rounding.
	s := strconv.FormatFloat(v, 'f', -1, 64)
	intPart, frac, _ := strings.Cut(s, ".")
	if len(frac) > d {
		frac = frac[:d]
	}
	for len(frac) < d {
		frac += "0"
	}
	if strings.HasPrefix(intPart, "-") && strings.Trim(intPart+frac, "-0") == "" {
		intPart = strings.TrimPrefix(intPart, "-")
	}
	if d == 0 {
		return intPart
	}
	return intPart + "." + frac
}

// Apply returns v shortened according to the policy.
func (pr Precision) Apply(v float64) float64 {
	out, err := strconv.ParseFloat(pr.Format(v), 64)
	if err != nil {
		return v
	}
	return out
}
