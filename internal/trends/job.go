package trends

import (
	"context"
	"errors"
	"time"

	"github.com/zfogg/pulsefeed/backend/internal/cache"
	"github.com/zfogg/pulsefeed/backend/internal/config"
	"github.com/zfogg/pulsefeed/backend/internal/logger"
	"github.com/zfogg/pulsefeed/backend/internal/metrics"
	"github.com/zfogg/pulsefeed/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// cacheInvalidatePattern matches every cached trending response.
const cacheInvalidatePattern = "trending:*"

// Job runs the full refresh pass: advisory lock, aggregation, watermark
// advance, scoring, snapshot publishing, and gated retention cleanup,
// all in one database transaction. Any number of processes may run a
// Job concurrently; the lock makes every pass but one a cheap no-op.
type Job struct {
	db    *gorm.DB
	cfg   config.Config
	cache *cache.RedisClient
}

// NewJob creates a refresh job. cache may be nil; invalidation is then
// skipped and reads rely on the cache TTL alone.
func NewJob(db *gorm.DB, cfg config.Config, cache *cache.RedisClient) *Job {
	return &Job{db: db, cfg: cfg, cache: cache}
}

// RefreshResult reports what one refresh attempt did.
type RefreshResult struct {
	Skipped          bool       `json:"skipped"`
	Reason           string     `json:"reason,omitempty"`
	ProcessedThrough *time.Time `json:"processed_through,omitempty"`
	ComputedAt       *time.Time `json:"computed_at,omitempty"`
	CleanupRan       bool       `json:"cleanup_ran"`
	SnapshotRows     int        `json:"snapshot_rows"`
}

// Refresh attempts one full pass. If another process holds the job lock
// the pass is skipped without error. On success the transaction commits
// every stage atomically and the trending response cache is dropped.
func (j *Job) Refresh(ctx context.Context) (RefreshResult, error) {
	var result RefreshResult
	m := metrics.Get()
	started := time.Now()

	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked bool
		if err := tx.Raw(
			"SELECT pg_try_advisory_xact_lock(hashtext(?))", j.cfg.JobName,
		).Scan(&locked).Error; err != nil {
			return err
		}
		if !locked {
			result = RefreshResult{Skipped: true, Reason: "locked"}
			return nil
		}

		state, err := lockJobState(tx)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		upperBound := aggregationUpperBound(now, j.cfg.IntervalLag)

		if upperBound.After(state.LastProcessedAt) {
			stageStart := time.Now()
			if err := aggregateSignals(tx, state.LastProcessedAt, upperBound); err != nil {
				return err
			}
			m.RefreshStageSeconds.WithLabelValues("aggregate").Observe(time.Since(stageStart).Seconds())

			if err := tx.Model(&models.TrendJobState{}).
				Where("id = ?", jobStateID).
				Update("last_processed_at", upperBound).Error; err != nil {
				return err
			}
			state.LastProcessedAt = upperBound
		}

		computedAt := time.Now().UTC()
		scoreStart := time.Now()
		totalRows := 0
		for _, entityType := range EntityTypes {
			rows, err := j.scoreAndPublish(tx, entityType, now, computedAt)
			if err != nil {
				return err
			}
			totalRows += rows
		}
		m.RefreshStageSeconds.WithLabelValues("score").Observe(time.Since(scoreStart).Seconds())

		cleaned, err := j.maybeCleanup(tx, state, now)
		if err != nil {
			return err
		}

		if err := tx.Model(&models.TrendJobState{}).
			Where("id = ?", jobStateID).
			Update("last_successful_at", now).Error; err != nil {
			return err
		}

		result = RefreshResult{
			ProcessedThrough: &state.LastProcessedAt,
			ComputedAt:       &computedAt,
			CleanupRan:       cleaned,
			SnapshotRows:     totalRows,
		}
		return nil
	})

	if err != nil {
		m.RefreshPassesTotal.WithLabelValues("error").Inc()
		logger.ErrorWithFields("Trend refresh pass failed", err)
		return RefreshResult{}, err
	}

	if result.Skipped {
		m.RefreshPassesTotal.WithLabelValues("skipped").Inc()
		logger.Log.Debug("trend refresh skipped", zap.String("reason", result.Reason))
		return result, nil
	}

	m.RefreshPassesTotal.WithLabelValues("ok").Inc()
	if result.ProcessedThrough != nil {
		m.WatermarkLagSeconds.Set(time.Since(*result.ProcessedThrough).Seconds())
	}
	j.invalidateCache(ctx)

	logger.Log.Info("trend refresh pass complete",
		zap.Timep("processed_through", result.ProcessedThrough),
		zap.Int("snapshot_rows", result.SnapshotRows),
		zap.Bool("cleanup_ran", result.CleanupRan),
		zap.Duration("took", time.Since(started)),
	)
	return result, nil
}

// scoreAndPublish ranks one entity type for every window and replaces
// its snapshot sets. Returns the number of snapshot rows written.
func (j *Job) scoreAndPublish(tx *gorm.DB, entityType string, now, computedAt time.Time) (int, error) {
	m := metrics.Get()

	candidates, err := fetchCandidates(tx, entityType, now, j.cfg.Scoring.CandidateLimit)
	if err != nil {
		return 0, err
	}

	keys := make([]string, 0, len(candidates))
	for _, c := range candidates {
		keys = append(keys, c.EntityKey)
	}
	uniques, err := fetchUniqueActorCounts(tx, entityType, keys, now)
	if err != nil {
		return 0, err
	}

	enriched := make([]EntityMetrics, 0, len(candidates))
	for _, c := range candidates {
		enriched = append(enriched, EntityMetrics{
			EntityKey:     c.EntityKey,
			Count15m:      c.Count15m,
			Count1h:       c.Count1h,
			Count24h:      c.Count24h,
			Events15m:     c.Events15m,
			Events1h:      c.Events1h,
			Events24h:     c.Events24h,
			UniqueUsers24: uniques[c.EntityKey],
		})
	}

	total := 0
	publishStart := time.Now()
	for _, window := range Windows {
		ranked := rankForWindow(j.cfg.Scoring, window, enriched)
		if err := replaceSnapshots(tx, entityType, window, ranked, computedAt); err != nil {
			return 0, err
		}
		m.SnapshotRowsWritten.WithLabelValues(entityType, window).Add(float64(len(ranked)))
		total += len(ranked)
	}
	m.RefreshStageSeconds.WithLabelValues("publish").Observe(time.Since(publishStart).Seconds())
	return total, nil
}

// maybeCleanup prunes expired signals and buckets when the last cleanup
// is old enough, and stamps last_cleanup_at. Runs inside the pass
// transaction so the stamp and the deletes commit together.
func (j *Job) maybeCleanup(tx *gorm.DB, state *models.TrendJobState, now time.Time) (bool, error) {
	if state.LastCleanupAt != nil && now.Sub(*state.LastCleanupAt) < j.cfg.CleanupEvery {
		return false, nil
	}

	stageStart := time.Now()
	signalCutoff := now.AddDate(0, 0, -j.cfg.SignalRetentionDays)
	bucketCutoff := now.AddDate(0, 0, -j.cfg.BucketRetentionDays)

	signals := tx.Where("created_at < ?", signalCutoff).Delete(&models.TrendSignal{})
	if signals.Error != nil {
		return false, signals.Error
	}
	buckets := tx.Where("bucket_minute < ?", bucketCutoff).Delete(&models.TrendMinuteBucket{})
	if buckets.Error != nil {
		return false, buckets.Error
	}

	if err := tx.Model(&models.TrendJobState{}).
		Where("id = ?", jobStateID).
		Update("last_cleanup_at", now).Error; err != nil {
		return false, err
	}
	state.LastCleanupAt = &now

	metrics.Get().RefreshStageSeconds.WithLabelValues("cleanup").Observe(time.Since(stageStart).Seconds())
	logger.Log.Info("trend retention cleanup ran",
		zap.Int64("signals_deleted", signals.RowsAffected),
		zap.Int64("buckets_deleted", buckets.RowsAffected),
	)
	return true, nil
}

// lockJobState loads the singleton job-state row under FOR UPDATE,
// creating it with an epoch-zero watermark on first ever run so the
// initial pass sweeps all existing signals.
func lockJobState(tx *gorm.DB) (*models.TrendJobState, error) {
	var state models.TrendJobState
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", jobStateID).
		First(&state).Error
	if err == nil {
		return &state, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	state = models.TrendJobState{
		ID:              jobStateID,
		LastProcessedAt: time.Unix(0, 0).UTC(),
	}
	if err := tx.Create(&state).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

func (j *Job) invalidateCache(ctx context.Context) {
	if j.cache == nil {
		return
	}
	if err := j.cache.DelPattern(ctx, cacheInvalidatePattern); err != nil {
		logger.Warn("failed to invalidate trending cache", zap.Error(err))
	}
}
