package workload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfigValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"record count", func(c *Config) { c.RecordCount = 0 }},
		{"record per table", func(c *Config) { c.RecordPerTable = 0 }},
		{"table merge num", func(c *Config) { c.TableMergeNum = 0 }},
		{"key range", func(c *Config) { c.KeyRange = 0 }},
		{"sequential rounds", func(c *Config) { c.KeyOrder = KeySequential }},
		{"value bounds", func(c *Config) { c.ValueMin, c.ValueMax = 10, 5 }},
		{"spread", func(c *Config) { c.ValueSpread = -1 }},
		{"load threads", func(c *Config) { c.LoadThreads = 0 }},
		{"read threads", func(c *Config) { c.ReadThreads = 0 }},
		{"interval", func(c *Config) { c.ReportInterval = 0 }},
		{"read duration", func(c *Config) { c.ReadDuration = -time.Second }},
		{"compression ratio", func(c *Config) { c.CompressionRatio = 1.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	// Round parameters are not checked for bulk loads.
	cfg := DefaultConfig()
	cfg.LoadMode = LoadBulk
	cfg.KeyOrder = KeySequential
	cfg.RecordPerTable = 0
	require.NoError(t, cfg.Validate())
}

func TestRoundValueSizes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ValueAvgSize, cfg.ValueSpread = 100, 1000
	require.Equal(t, SizeRange{Min: 0, Max: 1100}, cfg.RoundValueSizes())

	cfg.ValueAvgSize, cfg.ValueSpread = 2000, 1000
	require.Equal(t, SizeRange{Min: 1000, Max: 3000}, cfg.RoundValueSizes())
}

func TestEnumFlags(t *testing.T) {
	var p RangePolicy
	require.NoError(t, p.Set("seek"))
	require.Equal(t, RangeSeek, p)
	require.Error(t, p.Set("everything"))
	require.Equal(t, "seek", p.String())

	var m LoadMode
	require.NoError(t, m.Set("BULK"))
	require.Equal(t, LoadBulk, m)

	var o KeyOrder
	require.NoError(t, o.Set("sequential"))
	require.Equal(t, KeySequential, o)

	var c CountMode
	require.NoError(t, c.Set("exact"))
	require.Equal(t, CountExact, c)
	require.Error(t, c.Set("approx"))
}

func TestConfigYAML(t *testing.T) {
	doc := `
record_count: 5000
load_mode: bulk
key_order: sequential
range_policy: user
count_mode: exact
report_interval: 5s
read_duration: 1m
`
	cfg := DefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))
	require.Equal(t, int64(5000), cfg.RecordCount)
	require.Equal(t, LoadBulk, cfg.LoadMode)
	require.Equal(t, KeySequential, cfg.KeyOrder)
	require.Equal(t, RangeUser, cfg.RangePolicy)
	require.Equal(t, CountExact, cfg.CountMode)
	require.Equal(t, 5*time.Second, cfg.ReportInterval)
	require.Equal(t, time.Minute, cfg.ReadDuration)
	// Untouched fields keep their defaults.
	require.Equal(t, 8, cfg.LoadThreads)

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	require.Contains(t, string(out), "range_policy: user")

	bad := DefaultConfig()
	require.Error(t, yaml.Unmarshal([]byte("range_policy: sideways\n"), &bad))
}
