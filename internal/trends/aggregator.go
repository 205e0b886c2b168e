package trends

import (
	"time"

	"gorm.io/gorm"
)

// aggregateSignals folds every raw signal in the half-open interval
// (lastProcessedAt, upperBound] into per-minute buckets. The merge is
// additive on conflict, so a minute bucket touched by several passes
// (or already holding rows from an earlier interval) keeps its previous
// totals and grows. Signals at or before lastProcessedAt are never
// revisited, which is what makes aggregation exactly-once once the
// watermark advances.
func aggregateSignals(tx *gorm.DB, lastProcessedAt, upperBound time.Time) error {
	return tx.Exec(`
		INSERT INTO trend_minute_buckets
			(bucket_minute, entity_type, entity_key, signal_weight, event_count, updated_at)
		SELECT
			date_trunc('minute', created_at) AS bucket_minute,
			entity_type,
			entity_key,
			SUM(weight) AS signal_weight,
			COUNT(*) AS event_count,
			NOW()
		FROM trend_signals
		WHERE created_at > ? AND created_at <= ?
		GROUP BY 1, 2, 3
		ON CONFLICT (bucket_minute, entity_type, entity_key) DO UPDATE SET
			signal_weight = trend_minute_buckets.signal_weight + EXCLUDED.signal_weight,
			event_count = trend_minute_buckets.event_count + EXCLUDED.event_count,
			updated_at = NOW()
	`, lastProcessedAt, upperBound).Error
}

// aggregationUpperBound picks the watermark target for a pass: now minus
// the ingestion lag, floored to the minute. The lag keeps the current
// minute open long enough for in-flight inserts to land before the
// minute is rolled up.
func aggregationUpperBound(now time.Time, lag time.Duration) time.Time {
	return floorToMinute(now.Add(-lag))
}
