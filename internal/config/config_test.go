package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "hello")
	assert.Equal(t, "hello", envStr("TEST_STR", "fallback"))
	assert.Equal(t, "fallback", envStr("TEST_STR_MISSING", "fallback"))

	t.Setenv("TEST_INT", "42")
	assert.Equal(t, 42, envInt("TEST_INT", 0))
	assert.Equal(t, 99, envInt("TEST_INT_MISSING", 99))
	t.Setenv("TEST_INT_BAD", "abc")
	assert.Equal(t, 7, envInt("TEST_INT_BAD", 7), "unparseable values fall back")

	t.Setenv("TEST_FLOAT", "0.92")
	assert.Equal(t, 0.92, envFloat("TEST_FLOAT", 0.5))
	assert.Equal(t, 0.5, envFloat("TEST_FLOAT_MISSING", 0.5))

	t.Setenv("TEST_BOOL", "true")
	assert.True(t, envBool("TEST_BOOL", false))
	assert.True(t, envBool("TEST_BOOL_MISSING", true))
	t.Setenv("TEST_BOOL_BAD", "yep")
	assert.False(t, envBool("TEST_BOOL_BAD", false), "unparseable values fall back")

	t.Setenv("TEST_DUR", "5s")
	assert.Equal(t, 5*time.Second, envDuration("TEST_DUR", 0))
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	assert.Equal(t, time.Minute, envDuration("TEST_DUR_BAD", time.Minute))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "auto", cfg.EmbeddingProvider)
	assert.Equal(t, 0.85, cfg.DuplicateSimilarity)
	assert.Equal(t, 0.4, cfg.ConfidenceFloor)
	assert.Equal(t, 30*time.Second, cfg.StatusCacheTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.Equal(t, 60, cfg.SeedRatePerMinute)
	assert.Equal(t, 300, cfg.InsightRatePerMin)
	assert.Equal(t, 20, cfg.AuthRatePerMinute)
	assert.Empty(t, cfg.QdrantURL, "no vector store configured by default")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CORTEX_PORT", "9999")
	t.Setenv("CORTEX_QDRANT_URL", "http://qdrant:6333")
	t.Setenv("CORTEX_DUPLICATE_SIMILARITY", "0.9")
	t.Setenv("CORTEX_EMBEDDING_PROVIDER", "noop")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "http://qdrant:6333", cfg.QdrantURL)
	assert.Equal(t, 0.9, cfg.DuplicateSimilarity)
	assert.Equal(t, "noop", cfg.EmbeddingProvider)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	cfg := valid()
	cfg.EmbeddingDimensions = 0
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.DuplicateSimilarity = 1.5
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.ConfidenceFloor = -0.1
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.EmbeddingProvider = "psychic"
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.StatusCacheTTL = 0
	require.Error(t, cfg.Validate())
}
