package config

import (
	"os"
	"strconv"
	"time"
)

// WindowWeights is one window's linear combination over the three
// trailing weighted sums. Larger weight on a horizon biases the window's
// ranking toward that horizon.
type WindowWeights struct {
	Count15m float64
	Count1h  float64
	Count24h float64
}

// Scoring holds the named scoring policy knobs. The defaults reproduce
// the engine's original constants; every field can be tuned without
// changing the shape of the formula (base × surge × spam × uniqueness).
type Scoring struct {
	// Per-window base weights, biased toward each window's own horizon.
	Base15m WindowWeights
	Base1h  WindowWeights
	Base24h WindowWeights

	// Surge factor clamp bounds. The raw factor is
	// (count15m+1) / (max(0, count1h-count15m)/3 + 1).
	SurgeMin float64
	SurgeMax float64

	// Spam penalty = clamp(SpamFloor + breadth*SpamSlope, SpamFloor, 1)
	// where breadth = uniqueUsers24h / max(1, events24h).
	SpamFloor float64
	SpamSlope float64

	// CandidateLimit bounds how many entities per type are scored;
	// TopN bounds how many ranks are published per (type, window).
	CandidateLimit int
	TopN           int
}

// Config carries every tunable of the trend engine. It is built once in
// main and passed explicitly to the components that need it; persisted
// job state lives in the database, never in process memory.
type Config struct {
	// JobName keys the cluster-wide advisory lock for the refresh pass.
	JobName string

	// IntervalLag is subtracted from now() before flooring to the minute
	// when choosing the aggregation upper bound, so signals still being
	// inserted near now() are never missed by a closed-out bucket.
	IntervalLag time.Duration

	// RefreshInterval is the scheduler tick between refresh attempts.
	RefreshInterval time.Duration

	// Retention. Buckets outlive raw signals so historical counts
	// survive signal pruning for a while.
	SignalRetentionDays int
	BucketRetentionDays int
	CleanupEvery        time.Duration

	// CacheTTL bounds how long a served trending response may lag a
	// published snapshot.
	CacheTTL time.Duration

	Scoring Scoring
}

// DefaultScoring returns the documented default scoring policy.
func DefaultScoring() Scoring {
	return Scoring{
		Base15m:        WindowWeights{Count15m: 3, Count1h: 1.1, Count24h: 0.2},
		Base1h:         WindowWeights{Count15m: 1.6, Count1h: 2.2, Count24h: 0.45},
		Base24h:        WindowWeights{Count15m: 0.9, Count1h: 1.5, Count24h: 1.4},
		SurgeMin:       0.75,
		SurgeMax:       2.25,
		SpamFloor:      0.55,
		SpamSlope:      1.1,
		CandidateLimit: 320,
		TopN:           50,
	}
}

// Load builds the engine configuration from TREND_* environment
// variables, falling back to the documented defaults.
func Load() Config {
	return Config{
		JobName:             getEnvOrDefault("TREND_JOB_NAME", "trend_snapshot_refresh_v1"),
		IntervalLag:         envDuration("TREND_INTERVAL_LAG", 15*time.Second),
		RefreshInterval:     envDuration("TREND_REFRESH_INTERVAL", 60*time.Second),
		SignalRetentionDays: envInt("TREND_SIGNAL_RETENTION_DAYS", 14),
		BucketRetentionDays: envInt("TREND_BUCKET_RETENTION_DAYS", 30),
		CleanupEvery:        envDuration("TREND_CLEANUP_EVERY", 6*time.Hour),
		CacheTTL:            envDuration("TREND_CACHE_TTL", 30*time.Second),
		Scoring: Scoring{
			Base15m: WindowWeights{
				Count15m: envFloat("TREND_BASE_15M_C15", 3),
				Count1h:  envFloat("TREND_BASE_15M_C1H", 1.1),
				Count24h: envFloat("TREND_BASE_15M_C24", 0.2),
			},
			Base1h: WindowWeights{
				Count15m: envFloat("TREND_BASE_1H_C15", 1.6),
				Count1h:  envFloat("TREND_BASE_1H_C1H", 2.2),
				Count24h: envFloat("TREND_BASE_1H_C24", 0.45),
			},
			Base24h: WindowWeights{
				Count15m: envFloat("TREND_BASE_24H_C15", 0.9),
				Count1h:  envFloat("TREND_BASE_24H_C1H", 1.5),
				Count24h: envFloat("TREND_BASE_24H_C24", 1.4),
			},
			SurgeMin:       envFloat("TREND_SURGE_MIN", 0.75),
			SurgeMax:       envFloat("TREND_SURGE_MAX", 2.25),
			SpamFloor:      envFloat("TREND_SPAM_FLOOR", 0.55),
			SpamSlope:      envFloat("TREND_SPAM_SLOPE", 1.1),
			CandidateLimit: envInt("TREND_CANDIDATE_LIMIT", 320),
			TopN:           envInt("TREND_TOP_N", 50),
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func envFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func envDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
