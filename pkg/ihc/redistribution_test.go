package ihc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRedistribution_WireShape(t *testing.T) {
	raw, err := json.Marshal(DefaultRedistribution())
	require.NoError(t, err)

	// The scoring service expects this block verbatim.
	assert.JSONEq(t, `{
		"initializer": {
			"direction": "earlier_sessions_only",
			"receive_threshold": 0,
			"redistribution_channel_labels": ["Direct", "Email_Newsletter"]
		},
		"holder": {
			"direction": "any_session",
			"receive_threshold": 0,
			"redistribution_channel_labels": ["Direct", "Email_Newsletter"]
		},
		"closer": {
			"direction": "later_sessions_only",
			"receive_threshold": 0.1,
			"redistribution_channel_labels": ["SEO - Brand"]
		}
	}`, string(raw))
}

func TestLoadRedistribution(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redistribution.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
initializer:
  direction: earlier_sessions_only
  receive_threshold: 0.2
  redistribution_channel_labels: [Direct]
holder:
  direction: any_session
  receive_threshold: 0
  redistribution_channel_labels: [Direct]
closer:
  direction: later_sessions_only
  receive_threshold: 0.1
  redistribution_channel_labels: [SEO - Brand]
`), 0o600))

	p, err := LoadRedistribution(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, p.Initializer.ReceiveThreshold, 0.0001)
	assert.Equal(t, []string{"Direct"}, p.Initializer.RedistributionChannelLabels)
	assert.Equal(t, []string{"SEO - Brand"}, p.Closer.RedistributionChannelLabels)
}

func TestLoadRedistribution_Missing(t *testing.T) {
	_, err := LoadRedistribution(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
