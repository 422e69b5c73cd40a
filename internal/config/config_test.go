package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	t.Run("ledger defaults match observed constants", func(t *testing.T) {
		assert.Equal(t, 20.0, cfg.Ledger.HighRiskLock)
		assert.Equal(t, 10.0, cfg.Ledger.SuccessRefund)
		assert.Equal(t, 30.0, cfg.Ledger.FailurePenalty)
		assert.Equal(t, 25.0, cfg.Ledger.RemediateRefund)
		assert.Equal(t, 5.0, cfg.Ledger.MetricPassReward)
		assert.Equal(t, 10.0, cfg.Ledger.FinancialPenalty)
		assert.Equal(t, 12.0, cfg.Ledger.EcologicalPenalty)
		assert.Equal(t, 8.0, cfg.Ledger.SocialPenalty)
		assert.Equal(t, 15.0, cfg.Ledger.HighRiskMissPenalty)
	})

	t.Run("thresholds are fractions of goal", func(t *testing.T) {
		assert.Equal(t, 1.0, cfg.Ledger.FinancialThreshold)
		assert.Equal(t, 0.8, cfg.Ledger.EcologicalThreshold)
		assert.Equal(t, 0.9, cfg.Ledger.SocialThreshold)
	})

	t.Run("retry bounds are finite", func(t *testing.T) {
		assert.Equal(t, 3, cfg.Window.LayerRetries)
		assert.Equal(t, 3, cfg.Pipeline.GenerationRetries)
		assert.Equal(t, time.Second, cfg.Window.LayerBackoff)
	})

	t.Run("defaults pass validation", func(t *testing.T) {
		require.NoError(t, cfg.validate())
	})
}

func TestLoad(t *testing.T) {
	t.Run("missing file returns defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Empty(t, cmp.Diff(DefaultConfig(), cfg))
	})

	t.Run("partial file layers over defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := "context_window:\n  max_tokens: 512\n  layer_retries: 2\n  layer_backoff: 1s\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 512, cfg.Window.MaxTokens)
		assert.Equal(t, 2, cfg.Window.LayerRetries)
		// Untouched sections keep defaults.
		assert.Equal(t, 20.0, cfg.Ledger.HighRiskLock)
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := "context_window:\n  max_tokens: 0\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("malformed yaml rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0644))

		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Window.MaxTokens = 4096
	cfg.Ledger.HighRiskLock = 40

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(cfg, loaded))
}

func TestLLMTimeout(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 120*time.Second, cfg.LLMTimeout())

	cfg.LLM.Timeout = "30s"
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout())

	cfg.LLM.Timeout = "garbage"
	assert.Equal(t, 120*time.Second, cfg.LLMTimeout())
}
