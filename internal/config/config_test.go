package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"negative flush interval", func(c *Config) { c.FlushInterval = -time.Second }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRequirePaths(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.RequireModel())
	assert.Error(t, cfg.RequireSteps())

	cfg.ModelPath = "model.yaml"
	cfg.StepsPath = "steps"
	assert.NoError(t, cfg.RequireModel())
	assert.NoError(t, cfg.RequireSteps())
}

func TestUnmarshalFromViper(t *testing.T) {
	v := viper.New()
	v.Set("model", "m.yaml")
	v.Set("seed", 42)
	v.Set("deterministic", true)
	v.Set("flush_interval", "2s")
	v.Set("log_level", "debug")

	cfg := Default()
	require.NoError(t, v.Unmarshal(cfg))

	assert.Equal(t, "m.yaml", cfg.ModelPath)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.True(t, cfg.Deterministic)
	assert.Equal(t, 2*time.Second, cfg.FlushInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 32, cfg.BatchSize)
}
