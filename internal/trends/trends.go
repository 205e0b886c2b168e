// Package trends implements the trend computation engine: ingestion of
// weighted engagement signals, minute-bucket aggregation behind a
// monotonic watermark, window scoring, snapshot publishing, and the
// locked refresh job that ties the stages together. Read traffic is
// served from published snapshots only; scores are never computed at
// request time.
package trends

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Entity types that can trend.
const (
	EntityHashtag = "hashtag"
	EntityUser    = "user"
	EntityText    = "text"
)

// Signal kinds, one per way a piece of content can reference an entity.
const (
	KindHashtag = "hashtag"
	KindMention = "mention"
	KindAuthor  = "author"
	KindText    = "text"
)

// Source types signals can originate from.
const (
	SourcePost    = "post"
	SourceComment = "comment"
)

// Scoring windows.
const (
	Window15m = "15m"
	Window1h  = "1h"
	Window24h = "24h"
)

// jobStateID is the fixed id of the singleton TrendJobState row.
const jobStateID = "default"

// maxEntityKeyLen bounds normalized entity keys.
const maxEntityKeyLen = 128

// EntityTypes lists the trendable entity types in scoring order.
var EntityTypes = []string{EntityHashtag, EntityUser, EntityText}

// Windows lists the scoring windows.
var Windows = []string{Window15m, Window1h, Window24h}

var (
	// ErrInvalidEntityType is returned for query types outside
	// {all, hashtag, user, text}.
	ErrInvalidEntityType = errors.New("invalid entity type")
	// ErrInvalidWindow is returned for windows outside {15m, 1h, 24h}.
	ErrInvalidWindow = errors.New("invalid window")
)

// IsValidEntityType reports whether t is a trendable entity type.
func IsValidEntityType(t string) bool {
	return t == EntityHashtag || t == EntityUser || t == EntityText
}

// IsValidSignalKind reports whether k is a known signal kind.
func IsValidSignalKind(k string) bool {
	return k == KindHashtag || k == KindMention || k == KindAuthor || k == KindText
}

// IsValidSourceType reports whether s is a known source type.
func IsValidSourceType(s string) bool {
	return s == SourcePost || s == SourceComment
}

// IsValidWindow reports whether w is a scoring window.
func IsValidWindow(w string) bool {
	return w == Window15m || w == Window1h || w == Window24h
}

// WindowDuration returns the lookback horizon for a window.
func WindowDuration(w string) time.Duration {
	switch w {
	case Window15m:
		return 15 * time.Minute
	case Window1h:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// NormalizeEntityKey trims, lowercases, and truncates a candidate entity
// key to at most maxEntityKeyLen bytes. Truncation backs up to a rune
// boundary so the result is always valid UTF-8 and never fails the
// database's text encoding check. Returns "" when nothing usable remains.
func NormalizeEntityKey(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return ""
	}
	if len(key) > maxEntityKeyLen {
		cut := maxEntityKeyLen
		for cut > 0 && !utf8.RuneStart(key[cut]) {
			cut--
		}
		key = key[:cut]
	}
	return key
}

// floorToMinute truncates t to the start of its minute.
func floorToMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
