package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 3000, c.Server.Port)
	assert.Equal(t, []string{"BTCUSDT"}, c.Watchlist.Crypto)
	assert.Equal(t, 5*time.Second, c.Signals.EmitInterval)
	assert.Equal(t, "memory", c.Storage.Backend)
	assert.Equal(t, 60*time.Second, c.ClickHouse.MaxExecutionTime)
}

func TestParse(t *testing.T) {
	testCases := []struct {
		name    string
		yaml    string
		wantErr string
		check   func(t *testing.T, c *Config)
	}{
		{
			name: "overrides on top of defaults",
			yaml: "server:\n  port: 8080\nwatchlist:\n  real: [EURUSD]\nsignals:\n  min_confidence: 40\n",
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 8080, c.Server.Port)
				assert.Equal(t, 40, c.Signals.MinConfidence)
				assert.Equal(t, []string{"EURUSD", "BTCUSDT"}, c.Watchlist.Symbols())
				assert.Equal(t, 15*time.Second, c.Server.ReadTimeout)
			},
		},
		{
			name:    "unknown storage backend",
			yaml:    "storage:\n  backend: postgres\n",
			wantErr: "storage.backend",
		},
		{
			name:    "confidence floor out of range",
			yaml:    "signals:\n  min_confidence: 120\n",
			wantErr: "min_confidence",
		},
		{
			name:    "redis learner without redis",
			yaml:    "learner:\n  store: redis\n",
			wantErr: "redis.enabled",
		},
		{
			name:    "empty watch list",
			yaml:    "watchlist:\n  crypto: []\n",
			wantErr: "watchlist",
		},
		{
			name:    "malformed yaml",
			yaml:    "server: [",
			wantErr: "parse config",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Parse([]byte(tc.yaml))
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			tc.check(t, c)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":                "not-a-number",
		"WATCH_SYMBOLS":       "btcusdt, EURUSD ,",
		"MIN_BROADCAST_CONF":  "25",
		"REDIS_ADDR":          "redis:6379",
		"KAFKA_BROKERS":       "k1:9092,k2:9092",
		"ANOMALY_SERVICE_URL": "http://anomaly:8000",
	}
	c := Default()
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, 3000, c.Server.Port)
	assert.Equal(t, []string{"btcusdt"}, c.Watchlist.Crypto)
	assert.Equal(t, []string{"EURUSD"}, c.Watchlist.Real)
	assert.Equal(t, 25, c.Signals.MinConfidence)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "redis:6379", c.Redis.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "http://anomaly:8000", c.Manipulation.RemoteURL)
	require.NoError(t, c.Validate())
}
