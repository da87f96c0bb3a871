package risk

// Default tier thresholds in miles.
const (
	DefaultCriticalMiles     = 0.0
	DefaultHighMiles         = 0.095 // ~500 ft
	DefaultModerateHighMiles = 0.189 // ~1000 ft
	DefaultModerateMiles     = 0.25
	DefaultLowModerateMiles  = 0.5
	DefaultLowMiles          = 1.0
)

// DefaultTiers returns the environmental screening ladder. CRITICAL has a
// zero threshold, so in practice it is reached through containment.
func DefaultTiers() []Tier {
	return []Tier{
		{Label: LabelCritical, MaxMiles: DefaultCriticalMiles, Metadata: map[string]string{
			MetaColor:        "#7f0000",
			MetaCostEstimate: "$250,000 - $1,000,000+",
			MetaDescription:  "Site is on the parcel",
		}},
		{Label: LabelHigh, MaxMiles: DefaultHighMiles, Metadata: map[string]string{
			MetaColor:        "#d7301f",
			MetaCostEstimate: "$50,000 - $250,000",
			MetaDescription:  "Within 500 feet of the parcel boundary",
		}},
		{Label: LabelModerateHigh, MaxMiles: DefaultModerateHighMiles, Metadata: map[string]string{
			MetaColor:        "#fc8d59",
			MetaCostEstimate: "$25,000 - $100,000",
			MetaDescription:  "Within 1,000 feet of the parcel boundary",
		}},
		{Label: LabelModerate, MaxMiles: DefaultModerateMiles, Metadata: map[string]string{
			MetaColor:        "#fdbb84",
			MetaCostEstimate: "$10,000 - $50,000",
			MetaDescription:  "Within 1/4 mile of the parcel boundary",
		}},
		{Label: LabelLowModerate, MaxMiles: DefaultLowModerateMiles, Metadata: map[string]string{
			MetaColor:        "#fee8c8",
			MetaCostEstimate: "$5,000 - $15,000",
			MetaDescription:  "Within 1/2 mile of the parcel boundary",
		}},
		{Label: LabelLow, MaxMiles: DefaultLowMiles, Metadata: map[string]string{
			MetaColor:        "#fff7ec",
			MetaCostEstimate: "$0 - $5,000",
			MetaDescription:  "Within 1 mile of the parcel boundary",
		}},
	}
}

// DefaultLadder returns a ladder built from DefaultTiers.
func DefaultLadder() *Ladder {
	return MustLadder(DefaultTiers()...)
}
