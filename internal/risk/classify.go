package risk

// Classify returns the tier for a distance in miles.
// Rules:
//   - contained: the first (most severe) tier, whatever the distance
//   - otherwise: the first tier whose MaxMiles >= distance
//   - no match: the OUTSIDE_RANGE tier
//
// The distance is compared at full precision. The returned tier shares its
// metadata map with the ladder and must be treated as read-only.
func Classify(distance float64, contained bool, ladder *Ladder) Tier {
	if contained {
		return ladder.tiers[0]
	}
	for _, t := range ladder.tiers {
		if t.MaxMiles >= distance {
			return t
		}
	}
	return ladder.outside
}
