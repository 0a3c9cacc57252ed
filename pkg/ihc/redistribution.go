package ihc

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// RedistributionRule configures how one attribution role redistributes
// credit away from the listed channels.
type RedistributionRule struct {
	Direction                   string   `json:"direction" yaml:"direction"`
	ReceiveThreshold            float64  `json:"receive_threshold" yaml:"receive_threshold"`
	RedistributionChannelLabels []string `json:"redistribution_channel_labels" yaml:"redistribution_channel_labels"`
}

// RedistributionParameter is the static policy block sent with every scoring
// request. The scoring service expects these values verbatim.
type RedistributionParameter struct {
	Initializer RedistributionRule `json:"initializer" yaml:"initializer"`
	Holder      RedistributionRule `json:"holder" yaml:"holder"`
	Closer      RedistributionRule `json:"closer" yaml:"closer"`
}

// DefaultRedistribution returns the fixed redistribution rules of the scoring
// contract.
func DefaultRedistribution() RedistributionParameter {
	return RedistributionParameter{
		Initializer: RedistributionRule{
			Direction:                   "earlier_sessions_only",
			ReceiveThreshold:            0,
			RedistributionChannelLabels: []string{"Direct", "Email_Newsletter"},
		},
		Holder: RedistributionRule{
			Direction:                   "any_session",
			ReceiveThreshold:            0,
			RedistributionChannelLabels: []string{"Direct", "Email_Newsletter"},
		},
		Closer: RedistributionRule{
			Direction:                   "later_sessions_only",
			ReceiveThreshold:            0.1,
			RedistributionChannelLabels: []string{"SEO - Brand"},
		},
	}
}

// LoadRedistribution reads a redistribution parameter override from a YAML
// file.
func LoadRedistribution(path string) (RedistributionParameter, error) {
	var p RedistributionParameter

	raw, err := os.ReadFile(path)
	if err != nil {
		return p, eris.Wrapf(err, "ihc: read redistribution file %s", path)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, eris.Wrapf(err, "ihc: parse redistribution file %s", path)
	}
	return p, nil
}
