// =================================
// File: internal/config/config_test.go
// =================================
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "launchpad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
owner: "0x00000000000000000000000000000000000000A1"
treasury: "0x00000000000000000000000000000000000000A2"
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, uint64(DefaultPlatformFeeBP), cfg.PlatformFeeBP)
	assert.Equal(t, uint64(DefaultCreatorFeeBP), cfg.CreatorFeeBP)
	assert.Equal(t, DefaultKeeperIntervalMS, cfg.KeeperIntervalMS)
	assert.Equal(t, DefaultJournalPath, cfg.JournalPath)

	defaults, err := cfg.FactoryDefaults()
	require.NoError(t, err)
	require.NoError(t, defaults.Pool.Validate())
	assert.Equal(t, uint8(6), defaults.Decimals)

	fee, err := cfg.CreationFeeAmount()
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(1_000_000).String(), fee.String())

	minT, floor, ceiling, err := cfg.BuybackBounds()
	require.NoError(t, err)
	assert.False(t, minT.Lt(floor))
	assert.False(t, minT.Gt(ceiling))
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig+`
platform_fee_bp: 200
base_price: "2500"
graduation_threshold: "115000000000000000000"
`))
	require.NoError(t, err)
	assert.Equal(t, uint64(200), cfg.PlatformFeeBP)

	defaults, err := cfg.FactoryDefaults()
	require.NoError(t, err)
	assert.Equal(t, "2500", defaults.Pool.Curve.BasePrice.String())
	// Values above uint64 survive as decimal strings.
	assert.Equal(t, "115000000000000000000", defaults.Pool.GraduationThreshold.String())
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing owner", `treasury: "0x00000000000000000000000000000000000000A2"`},
		{"bad treasury", `owner: "0x00000000000000000000000000000000000000A1"` + "\n" + `treasury: "not-an-address"`},
		{"fee overflow", minimalConfig + "platform_fee_bp: 9000\ncreator_fee_bp: 2000\n"},
		{"bad amount", minimalConfig + `base_price: "12abc"` + "\n"},
		{"threshold outside bounds", minimalConfig + `min_buyback_threshold: "1"` + "\n"},
		{"zero keeper interval", minimalConfig + "keeper_interval_ms: 0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}
