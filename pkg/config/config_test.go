package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "basic", cfg.Assistant.LabelSet)
	assert.Equal(t, "embedding", cfg.Assistant.RankingStrategy)
	assert.Equal(t, 3, cfg.Assistant.TopN)
	assert.Equal(t, 2048, cfg.Assistant.SummaryMaxInput)
	assert.Equal(t, "directory", cfg.Places.Provider)
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.Equal(t, 500.0, cfg.Places.RadiusM)
}

func TestLoad_EnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("RESTAURANT_AGENT_ASSISTANT_RANKINGSTRATEGY", "bm25")
	t.Setenv("RESTAURANT_AGENT_ASSISTANT_TOPN", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "bm25", cfg.Assistant.RankingStrategy)
	assert.Equal(t, 5, cfg.Assistant.TopN)
}

func TestLoad_FileAndValidation(t *testing.T) {
	dir := chdirTemp(t)

	yaml := "assistant:\n  labelSet: fancy\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "labelSet")
}

func TestLoad_RedisSessionRequiresRedis(t *testing.T) {
	chdirTemp(t)
	t.Setenv("RESTAURANT_AGENT_SESSION_STORE", "redis")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_MeanAggregationRejectedWithMilvus(t *testing.T) {
	chdirTemp(t)
	t.Setenv("RESTAURANT_AGENT_ASSISTANT_SCOREAGGREGATION", "mean")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mean", cfg.Assistant.ScoreAggregation)

	t.Setenv("RESTAURANT_AGENT_VECTOR_ENABLED", "true")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scoreAggregation")

	t.Setenv("RESTAURANT_AGENT_ASSISTANT_RANKINGSTRATEGY", "bm25")
	_, err = Load()
	assert.NoError(t, err)
}
