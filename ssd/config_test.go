package ssd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(3)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 300, cfg.Size)
	assert.Equal(t, 12, cfg.InChannels)
	assert.Equal(t, 3, cfg.NumClasses)
	assert.Equal(t, 0, cfg.Background)
	assert.Equal(t, 200, cfg.TopK)
	assert.Equal(t, 0.01, cfg.ConfThreshold)
	assert.Equal(t, 0.45, cfg.NMSThreshold)
}

func TestPriorConfigCounts(t *testing.T) {
	pc := DefaultConfig(2).Priors
	assert.Equal(t, []int{6, 6, 6, 6, 4, 4}, pc.PriorsPerCell())
	assert.Equal(t, 11620, pc.TotalPriors())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unsupported size", func(c *Config) { c.Size = 512 }},
		{"too few classes", func(c *Config) { c.NumClasses = 1 }},
		{"no input channels", func(c *Config) { c.InChannels = 0 }},
		{"background out of range", func(c *Config) { c.Background = 5 }},
		{"zero topK", func(c *Config) { c.TopK = 0 }},
		{"conf threshold above 1", func(c *Config) { c.ConfThreshold = 1.5 }},
		{"negative nms threshold", func(c *Config) { c.NMSThreshold = -0.1 }},
		{"no prior scales", func(c *Config) { c.Priors.GridSizes = nil }},
		{"scale count mismatch", func(c *Config) { c.Priors.Steps = c.Priors.Steps[:3] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(4)
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
