package models

import "time"

// TrendSignal is one weighted engagement observation tying an entity
// (hashtag, user, or text token) to a piece of content and an actor.
// The tuple (entity_type, entity_key, source_type, source_id, signal_kind)
// is unique: re-emitting the same signal for the same content is a no-op.
// Rows are never updated; retention cleanup deletes them after
// TREND_SIGNAL_RETENTION_DAYS.
type TrendSignal struct {
	ID          string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	EntityType  string    `gorm:"not null;uniqueIndex:idx_trend_signals_tuple,priority:1" json:"entity_type"`
	EntityKey   string    `gorm:"not null;size:128;uniqueIndex:idx_trend_signals_tuple,priority:2" json:"entity_key"`
	SourceType  string    `gorm:"not null;uniqueIndex:idx_trend_signals_tuple,priority:3" json:"source_type"`
	SourceID    string    `gorm:"not null;uniqueIndex:idx_trend_signals_tuple,priority:4" json:"source_id"`
	SignalKind  string    `gorm:"not null;uniqueIndex:idx_trend_signals_tuple,priority:5" json:"signal_kind"`
	ActorUserID string    `gorm:"not null" json:"actor_user_id"`
	Weight      float64   `gorm:"not null;default:1" json:"weight"`
	CreatedAt   time.Time `gorm:"not null;index" json:"created_at"`
}

// TrendMinuteBucket is the additive per-minute rollup of signals for one
// entity. Counters only ever grow; retention cleanup deletes whole rows
// after TREND_BUCKET_RETENTION_DAYS (longer than signal retention, so
// historical counts survive raw-signal pruning for a while).
type TrendMinuteBucket struct {
	BucketMinute time.Time `gorm:"primaryKey" json:"bucket_minute"`
	EntityType   string    `gorm:"primaryKey" json:"entity_type"`
	EntityKey    string    `gorm:"primaryKey;size:128" json:"entity_key"`
	SignalWeight float64   `gorm:"not null;default:0" json:"signal_weight"`
	EventCount   int       `gorm:"not null;default:0" json:"event_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TrendJobState is the singleton control record for the refresh job.
// LastProcessedAt is the aggregation watermark: no signal at or before it
// is ever folded into buckets again.
type TrendJobState struct {
	ID               string     `gorm:"primaryKey" json:"id"`
	LastProcessedAt  time.Time  `gorm:"not null" json:"last_processed_at"`
	LastSuccessfulAt *time.Time `json:"last_successful_at"`
	LastCleanupAt    *time.Time `json:"last_cleanup_at"`
}

// TrendSnapshot is one published ranked entry. The full set for a
// (time_window, entity_type) pair is replaced atomically on every
// successful scoring pass; ranks are 1-based and unique within a pair,
// so (time_window, entity_type, rank) identifies a row.
type TrendSnapshot struct {
	ID            string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	TimeWindow    string    `gorm:"not null;index:idx_trend_snapshots_rank,priority:1" json:"time_window"`
	EntityType    string    `gorm:"not null;index:idx_trend_snapshots_rank,priority:2" json:"entity_type"`
	Rank          int       `gorm:"not null;index:idx_trend_snapshots_rank,priority:3" json:"rank"`
	EntityKey     string    `gorm:"not null;size:128" json:"entity_key"`
	Score         float64   `gorm:"not null" json:"score"`
	Count15m      float64   `gorm:"not null" json:"count15m"`
	Count1h       float64   `gorm:"not null" json:"count1h"`
	Count24h      float64   `gorm:"not null" json:"count24h"`
	Events15m     int       `gorm:"not null" json:"events15m"`
	Events1h      int       `gorm:"not null" json:"events1h"`
	Events24h     int       `gorm:"not null" json:"events24h"`
	UniqueUsers24 int       `gorm:"column:unique_users_24h;not null" json:"unique_users_24h"`
	ComputedAt    time.Time `gorm:"not null" json:"computed_at"`
}
