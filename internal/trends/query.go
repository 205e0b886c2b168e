package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/zfogg/pulsefeed/backend/internal/cache"
	"github.com/zfogg/pulsefeed/backend/internal/logger"
	"github.com/zfogg/pulsefeed/backend/internal/metrics"
	"github.com/zfogg/pulsefeed/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Trending query limits.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// TrendingUser is the profile payload attached to user-type entries.
// User rows always carry one; when no profile exists, the id falls back
// to the entity key so clients can still link to the account.
type TrendingUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Username    string `json:"username,omitempty"`
	FirstName   string `json:"firstname,omitempty"`
	LastName    string `json:"lastname,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// TrendingEntry is one row of a served trending list.
type TrendingEntry struct {
	EntityType    string        `json:"type"`
	EntityKey     string        `json:"key"`
	Label         string        `json:"label"`
	Rank          int           `json:"rank"`
	Score         float64       `json:"score"`
	Count15m      float64       `json:"count15m"`
	Count1h       float64       `json:"count1h"`
	Count24h      float64       `json:"count24h"`
	Events15m     int           `json:"events15m"`
	Events1h      int           `json:"events1h"`
	Events24h     int           `json:"events24h"`
	UniqueUsers24 int           `json:"uniqueUsers24h"`
	ComputedAt    time.Time     `json:"computedAt"`
	User          *TrendingUser `json:"user,omitempty"`
}

// TrendingSet bundles all three entity lists for one window.
type TrendingSet struct {
	Window  string          `json:"window"`
	Hashtag []TrendingEntry `json:"hashtag"`
	User    []TrendingEntry `json:"user"`
	Text    []TrendingEntry `json:"text"`
}

// Query serves trending reads from published snapshots, with an
// optional Redis read-through cache in front of the database.
type Query struct {
	db    *gorm.DB
	cache *cache.RedisClient
	ttl   time.Duration
}

// NewQuery creates a query service. cache may be nil.
func NewQuery(db *gorm.DB, cache *cache.RedisClient, ttl time.Duration) *Query {
	return &Query{db: db, cache: cache, ttl: ttl}
}

// GetTrending returns the published list for one entity type and
// window, hottest first. Limit is clamped to [1, MaxLimit]; zero and
// negative values fall back to DefaultLimit.
func (q *Query) GetTrending(ctx context.Context, entityType, window string, limit int) ([]TrendingEntry, error) {
	if !IsValidEntityType(entityType) {
		return nil, ErrInvalidEntityType
	}
	if !IsValidWindow(window) {
		return nil, ErrInvalidWindow
	}
	limit = clampLimit(limit)

	key := fmt.Sprintf("trending:%s:%s:%d", entityType, window, limit)
	var cached []TrendingEntry
	if q.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	start := time.Now()
	entries, err := q.fetchEntries(ctx, entityType, window, limit)
	if err != nil {
		return nil, err
	}
	metrics.Get().TrendingQuerySeconds.WithLabelValues(entityType, window).Observe(time.Since(start).Seconds())

	q.cacheSet(ctx, key, entries)
	return entries, nil
}

// GetTrendingAll returns all three entity lists for one window,
// fetched concurrently. A failure in any list fails the call.
func (q *Query) GetTrendingAll(ctx context.Context, window string, limit int) (*TrendingSet, error) {
	if !IsValidWindow(window) {
		return nil, ErrInvalidWindow
	}
	limit = clampLimit(limit)

	key := fmt.Sprintf("trending:all:%s:%d", window, limit)
	var cached TrendingSet
	if q.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	start := time.Now()
	set := TrendingSet{Window: window}
	lists := []struct {
		entityType string
		dest       *[]TrendingEntry
	}{
		{EntityHashtag, &set.Hashtag},
		{EntityUser, &set.User},
		{EntityText, &set.Text},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(lists))
	for i, l := range lists {
		wg.Add(1)
		go func(i int, entityType string, dest *[]TrendingEntry) {
			defer wg.Done()
			entries, err := q.fetchEntries(ctx, entityType, window, limit)
			if err != nil {
				errs[i] = err
				return
			}
			*dest = entries
		}(i, l.entityType, l.dest)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	metrics.Get().TrendingQuerySeconds.WithLabelValues("all", window).Observe(time.Since(start).Seconds())

	q.cacheSet(ctx, key, &set)
	return &set, nil
}

// GetJobState returns the refresh job's control record, or
// gorm.ErrRecordNotFound when no pass has ever run.
func (q *Query) GetJobState(ctx context.Context) (*models.TrendJobState, error) {
	var state models.TrendJobState
	if err := q.db.WithContext(ctx).Where("id = ?", jobStateID).First(&state).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// fetchEntries reads one snapshot set from the database and shapes it
// for serving. User entries are enriched with profile fields
// best-effort; a missing or unreadable profile never fails the list.
func (q *Query) fetchEntries(ctx context.Context, entityType, window string, limit int) ([]TrendingEntry, error) {
	var rows []models.TrendSnapshot
	err := q.db.WithContext(ctx).
		Where("time_window = ? AND entity_type = ?", window, entityType).
		Order("rank ASC, score DESC, entity_key ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]TrendingEntry, 0, len(rows))
	for _, r := range rows {
		e := TrendingEntry{
			EntityType:    r.EntityType,
			EntityKey:     r.EntityKey,
			Label:         defaultLabel(r.EntityType, r.EntityKey),
			Rank:          r.Rank,
			Score:         r.Score,
			Count15m:      r.Count15m,
			Count1h:       r.Count1h,
			Count24h:      r.Count24h,
			Events15m:     r.Events15m,
			Events1h:      r.Events1h,
			Events24h:     r.Events24h,
			UniqueUsers24: r.UniqueUsers24,
			ComputedAt:    r.ComputedAt,
		}
		if r.EntityType == EntityUser {
			// User rows always carry a user object; enrichment
			// replaces this stub when a profile exists.
			e.User = &TrendingUser{ID: r.EntityKey, DisplayName: "User"}
		}
		entries = append(entries, e)
	}

	if entityType == EntityUser {
		q.enrichUsers(ctx, entries)
	}
	return entries, nil
}

// enrichUsers attaches profile data to user entries whose entity key
// matches a known user id.
func (q *Query) enrichUsers(ctx context.Context, entries []TrendingEntry) {
	if len(entries) == 0 {
		return
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.EntityKey)
	}

	var users []models.User
	if err := q.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		logger.Warn("failed to enrich trending users", zap.Error(err))
		return
	}

	byID := make(map[string]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for i := range entries {
		u, ok := byID[entries[i].EntityKey]
		if !ok {
			continue
		}
		entries[i].Label = u.Label()
		entries[i].User = &TrendingUser{
			ID:          u.ID,
			DisplayName: u.Label(),
			Username:    u.Username,
			FirstName:   u.FirstName,
			LastName:    u.LastName,
			AvatarURL:   u.AvatarURL,
		}
	}
}

func defaultLabel(entityType, key string) string {
	switch entityType {
	case EntityHashtag:
		return "#" + key
	case EntityUser:
		return "User"
	default:
		return key
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// cacheGet loads a cached response into dest, reporting whether it hit.
func (q *Query) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	m := metrics.Get()
	if q.cache == nil {
		m.TrendingCacheHits.WithLabelValues("bypass").Inc()
		return false
	}
	raw, err := q.cache.Get(ctx, key)
	if err != nil || raw == "" {
		m.TrendingCacheHits.WithLabelValues("miss").Inc()
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		m.TrendingCacheHits.WithLabelValues("miss").Inc()
		return false
	}
	m.TrendingCacheHits.WithLabelValues("hit").Inc()
	return true
}

func (q *Query) cacheSet(ctx context.Context, key string, value interface{}) {
	if q.cache == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := q.cache.SetEx(ctx, key, string(raw), q.ttl); err != nil {
		logger.Warn("failed to cache trending response", zap.Error(err))
	}
}
