package trends

import (
	"math"
	"sort"
	"time"

	"github.com/lib/pq"
	"github.com/zfogg/pulsefeed/backend/internal/config"
	"gorm.io/gorm"
)

// EntityMetrics holds everything the scoring formula consumes for one
// entity: trailing weighted sums and event counts per horizon from the
// bucket table, plus the distinct-actor count from raw signals.
type EntityMetrics struct {
	EntityKey     string
	Count15m      float64
	Count1h       float64
	Count24h      float64
	Events15m     int
	Events1h      int
	Events24h     int
	UniqueUsers24 int
}

// RankedEntity is one scored entity with its 1-based positional rank.
type RankedEntity struct {
	EntityMetrics
	Score float64
	Rank  int
}

type candidateRow struct {
	EntityKey string
	Count15m  float64
	Count1h   float64
	Count24h  float64
	Events15m int
	Events1h  int
	Events24h int
}

type uniqueRow struct {
	EntityKey   string
	UniqueUsers int
}

// fetchCandidates returns the per-entity trailing sums for one entity
// type over the last 24 hours of buckets, ordered hottest-first so the
// limit keeps the entities most likely to rank. Entities whose 24h
// weighted sum is zero or negative are excluded.
func fetchCandidates(tx *gorm.DB, entityType string, now time.Time, limit int) ([]candidateRow, error) {
	since24h := now.Add(-24 * time.Hour)
	since1h := now.Add(-time.Hour)
	since15m := now.Add(-15 * time.Minute)

	var rows []candidateRow
	err := tx.Raw(`
		SELECT
			entity_key,
			COALESCE(SUM(CASE WHEN bucket_minute > ? THEN signal_weight ELSE 0 END), 0) AS count15m,
			COALESCE(SUM(CASE WHEN bucket_minute > ? THEN signal_weight ELSE 0 END), 0) AS count1h,
			COALESCE(SUM(signal_weight), 0) AS count24h,
			COALESCE(SUM(CASE WHEN bucket_minute > ? THEN event_count ELSE 0 END), 0) AS events15m,
			COALESCE(SUM(CASE WHEN bucket_minute > ? THEN event_count ELSE 0 END), 0) AS events1h,
			COALESCE(SUM(event_count), 0) AS events24h
		FROM trend_minute_buckets
		WHERE entity_type = ? AND bucket_minute > ?
		GROUP BY entity_key
		HAVING COALESCE(SUM(signal_weight), 0) > 0
		ORDER BY count15m DESC, count1h DESC, count24h DESC
		LIMIT ?
	`, since15m, since1h, since15m, since1h, entityType, since24h, limit).Scan(&rows).Error
	return rows, err
}

// fetchUniqueActorCounts counts distinct acting users per entity over
// raw signals from the trailing 24 hours, for the candidate keys only.
func fetchUniqueActorCounts(tx *gorm.DB, entityType string, keys []string, now time.Time) (map[string]int, error) {
	counts := make(map[string]int, len(keys))
	if len(keys) == 0 {
		return counts, nil
	}

	var rows []uniqueRow
	err := tx.Raw(`
		SELECT entity_key, COUNT(DISTINCT actor_user_id) AS unique_users
		FROM trend_signals
		WHERE entity_type = ?
		  AND entity_key = ANY(?)
		  AND created_at > ?
		GROUP BY entity_key
	`, entityType, pq.Array(keys), now.Add(-24*time.Hour)).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		counts[r.EntityKey] = r.UniqueUsers
	}
	return counts, nil
}

// windowWeights picks the base linear combination for a window.
func windowWeights(cfg config.Scoring, window string) config.WindowWeights {
	switch window {
	case Window15m:
		return cfg.Base15m
	case Window1h:
		return cfg.Base1h
	default:
		return cfg.Base24h
	}
}

// Score computes the spam-resistant window score for one entity:
// a window-biased base, a clamped surge multiplier favoring entities
// accelerating in the last 15 minutes, a spam penalty shrinking entities
// driven by few actors, and a logarithmic unique-actor boost.
func Score(cfg config.Scoring, window string, m EntityMetrics) float64 {
	w := windowWeights(cfg, window)
	base := w.Count15m*m.Count15m + w.Count1h*m.Count1h + w.Count24h*m.Count24h

	surgeRaw := (m.Count15m + 1) / (math.Max(0, m.Count1h-m.Count15m)/3 + 1)
	surge := clamp(surgeRaw, cfg.SurgeMin, cfg.SurgeMax)

	breadth := float64(m.UniqueUsers24) / math.Max(1, float64(m.Events24h))
	spam := clamp(cfg.SpamFloor+breadth*cfg.SpamSlope, cfg.SpamFloor, 1)

	uniqueBoost := math.Log1p(math.Max(1, float64(m.UniqueUsers24)))

	return base * surge * spam * uniqueBoost
}

// rankForWindow scores every candidate for one window, orders them
// deterministically (score, then unique actors, then 24h volume, then
// entity key), keeps the top N, and assigns 1-based positional ranks.
// Ranks are unique within a (window, entity type) set even when scores
// tie, so (window, type, rank) stays a usable row key.
func rankForWindow(cfg config.Scoring, window string, candidates []EntityMetrics) []RankedEntity {
	ranked := make([]RankedEntity, 0, len(candidates))
	for _, m := range candidates {
		ranked = append(ranked, RankedEntity{
			EntityMetrics: m,
			Score:         Score(cfg, window, m),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.UniqueUsers24 != b.UniqueUsers24 {
			return a.UniqueUsers24 > b.UniqueUsers24
		}
		if a.Count24h != b.Count24h {
			return a.Count24h > b.Count24h
		}
		return a.EntityKey < b.EntityKey
	})

	if len(ranked) > cfg.TopN {
		ranked = ranked[:cfg.TopN]
	}

	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
