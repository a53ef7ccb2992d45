package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "all-minilm", cfg.EmbeddingModel)
	assert.Equal(t, 384, cfg.Dimension)
	assert.Equal(t, 32, cfg.BatchSize)
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()

		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("with a larger model", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("http://gpu:11434/v1"),
			WithEmbeddingModel("nomic-embed-text"),
			WithDimension(768),
			WithBatchSize(8),
		)

		assert.Equal(t, "http://gpu:11434/v1", cfg.EmbeddingHost)
		assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel)
		assert.Equal(t, 768, cfg.Dimension)
		assert.Equal(t, 8, cfg.BatchSize)
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected string
	}{
		{"already has /v1", "http://localhost:11434/v1", "http://localhost:11434/v1"},
		{"missing /v1", "http://localhost:11434", "http://localhost:11434/v1"},
		{"has trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"empty host", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host}
			cfg.Normalize()
			assert.Equal(t, tt.expected, cfg.EmbeddingHost)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			EmbeddingHost:  "http://localhost:11434",
			EmbeddingModel: " all-minilm ",
			Dimension:      384,
			BatchSize:      16,
		}
	}

	t.Run("valid config", func(t *testing.T) {
		cfg := valid()
		require.NoError(t, cfg.Validate())

		// Should also normalize
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
		assert.Equal(t, "all-minilm", cfg.EmbeddingModel)
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing host", func(c *Config) { c.EmbeddingHost = "" }, "EmbeddingHost"},
		{"missing model", func(c *Config) { c.EmbeddingModel = "  " }, "EmbeddingModel"},
		{"zero dimension", func(c *Config) { c.Dimension = 0 }, "Dimension"},
		{"negative batch", func(c *Config) { c.BatchSize = -1 }, "BatchSize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
