package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "trend_snapshot_refresh_v1", cfg.JobName)
	assert.Equal(t, 15*time.Second, cfg.IntervalLag)
	assert.Equal(t, 60*time.Second, cfg.RefreshInterval)
	assert.Equal(t, 14, cfg.SignalRetentionDays)
	assert.Equal(t, 30, cfg.BucketRetentionDays)
	assert.Equal(t, 6*time.Hour, cfg.CleanupEvery)
	assert.Equal(t, DefaultScoring(), cfg.Scoring)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TREND_JOB_NAME", "trend_snapshot_refresh_v2")
	t.Setenv("TREND_INTERVAL_LAG", "30s")
	t.Setenv("TREND_TOP_N", "10")
	t.Setenv("TREND_SPAM_FLOOR", "0.4")

	cfg := Load()

	assert.Equal(t, "trend_snapshot_refresh_v2", cfg.JobName)
	assert.Equal(t, 30*time.Second, cfg.IntervalLag)
	assert.Equal(t, 10, cfg.Scoring.TopN)
	assert.Equal(t, 0.4, cfg.Scoring.SpamFloor)
}

func TestLoadIgnoresMalformedEnv(t *testing.T) {
	t.Setenv("TREND_REFRESH_INTERVAL", "often")
	t.Setenv("TREND_CANDIDATE_LIMIT", "many")

	cfg := Load()

	assert.Equal(t, 60*time.Second, cfg.RefreshInterval)
	assert.Equal(t, 320, cfg.Scoring.CandidateLimit)
}
