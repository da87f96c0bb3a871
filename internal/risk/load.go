package risk

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LadderFile is the on-disk ladder format. The tiers list is ordered; the
// file's order is the classification order.
//
//	ladder:
//	  tiers:
//	    - label: HIGH
//	      max_miles: 0.095
//	      metadata:
//	        color: "#d7301f"
type LadderFile struct {
	Tiers []Tier `yaml:"tiers" json:"tiers"`
}

// LoadLadder reads a ladder from a YAML file. Both a top-level "ladder" key
// and a bare "tiers" list are accepted.
func LoadLadder(path string) (*Ladder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "risk: read ladder %s", path)
	}
	return ParseLadder(data)
}

// ParseLadder parses ladder YAML.
func ParseLadder(data []byte) (*Ladder, error) {
	var wrapper struct {
		Ladder *LadderFile `yaml:"ladder"`
		Tiers  []Tier      `yaml:"tiers"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "risk: parse ladder")
	}

	tiers := wrapper.Tiers
	if wrapper.Ladder != nil {
		tiers = wrapper.Ladder.Tiers
	}
	return NewLadder(tiers...)
}

// MarshalYAML renders the ladder in the LadderFile format.
func (l *Ladder) MarshalYAML() (any, error) {
	return map[string]LadderFile{"ladder": {Tiers: l.Tiers()}}, nil
}

// MarshalJSON renders the configured tiers and the catch-all tier.
func (l *Ladder) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Tiers        []Tier `json:"tiers"`
		OutsideRange Tier   `json:"outside_range"`
	}{l.Tiers(), l.outside})
}
