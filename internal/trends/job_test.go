package trends

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/zfogg/pulsefeed/backend/internal/config"
	"github.com/zfogg/pulsefeed/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// TrendEngineTestSuite exercises the full ingestion, aggregation,
// scoring, and publishing pipeline against a real Postgres.
type TrendEngineTestSuite struct {
	suite.Suite
	db    *gorm.DB
	cfg   config.Config
	store *Store
	job   *Job
	query *Query
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (suite *TrendEngineTestSuite) SetupSuite() {
	host := getEnvOrDefault("POSTGRES_HOST", "localhost")
	port := getEnvOrDefault("POSTGRES_PORT", "5432")
	user := getEnvOrDefault("POSTGRES_USER", "postgres")
	password := getEnvOrDefault("POSTGRES_PASSWORD", "")
	dbname := getEnvOrDefault("POSTGRES_DB", "pulsefeed_test")

	testDSN := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable", host, port, user, dbname)
	if password != "" {
		testDSN = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", host, port, user, password, dbname)
	}

	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		suite.T().Skipf("Skipping trend engine tests: database not available (%v)", err)
		return
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.TrendSignal{},
		&models.TrendMinuteBucket{},
		&models.TrendJobState{},
		&models.TrendSnapshot{},
	)
	require.NoError(suite.T(), err)

	suite.db = db
}

func (suite *TrendEngineTestSuite) TearDownSuite() {
	if suite.db != nil {
		sqlDB, _ := suite.db.DB()
		sqlDB.Close()
	}
}

func (suite *TrendEngineTestSuite) SetupTest() {
	suite.db.Exec("TRUNCATE TABLE trend_signals, trend_minute_buckets, trend_job_states, trend_snapshots CASCADE")
	suite.db.Exec("TRUNCATE TABLE users CASCADE")

	suite.cfg = config.Load()
	suite.store = NewStore(suite.db)
	suite.job = NewJob(suite.db, suite.cfg, nil)
	suite.query = NewQuery(suite.db, nil, suite.cfg.CacheTTL)
}

// hashtagSignal builds one hashtag signal for tests.
func hashtagSignal(tag, sourceID, actor string, at time.Time) SignalInput {
	return SignalInput{
		EntityType:  EntityHashtag,
		EntityKey:   tag,
		SourceType:  SourcePost,
		SourceID:    sourceID,
		SignalKind:  KindHashtag,
		ActorUserID: actor,
		Weight:      WeightHashtag,
		OccurredAt:  at,
	}
}

func (suite *TrendEngineTestSuite) TestInsertSignalsIdempotent() {
	t := suite.T()
	ctx := context.Background()
	at := time.Now().UTC().Add(-5 * time.Minute)

	batch := []SignalInput{
		hashtagSignal("launch", "post-1", "user-a", at),
		hashtagSignal("launch", "post-2", "user-b", at),
		hashtagSignal("launch", "post-1", "user-a", at), // in-batch duplicate
	}

	inserted, err := suite.store.InsertSignals(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted, "in-batch duplicate must be dropped")

	inserted, err = suite.store.InsertSignals(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted, "re-ingesting the same batch is a no-op")

	var count int64
	suite.db.Model(&models.TrendSignal{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func (suite *TrendEngineTestSuite) TestInsertSignalsDropsMalformedRows() {
	t := suite.T()
	ctx := context.Background()

	inserted, err := suite.store.InsertSignals(ctx, []SignalInput{
		{EntityType: "playlist", EntityKey: "x", SourceType: SourcePost, SourceID: "p", SignalKind: KindHashtag, ActorUserID: "u"},
		hashtagSignal("valid", "post-1", "user-a", time.Now().UTC()),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
}

func (suite *TrendEngineTestSuite) TestFirstRefreshCreatesJobState() {
	t := suite.T()

	_, err := suite.query.GetJobState(context.Background())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound, "no state row before the first pass")

	result, err := suite.job.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Skipped)

	state, err := suite.query.GetJobState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "default", state.ID)
	assert.True(t, state.LastProcessedAt.After(time.Unix(0, 0)),
		"watermark advances past epoch even with no signals")
	require.NotNil(t, state.LastSuccessfulAt)
}

func (suite *TrendEngineTestSuite) TestRefreshPublishesHashtagBurst() {
	t := suite.T()
	ctx := context.Background()
	at := time.Now().UTC().Add(-10 * time.Minute)

	// Five posts tag #launch within the last 15 minutes, three actors.
	batch := []SignalInput{
		hashtagSignal("launch", "post-1", "user-a", at),
		hashtagSignal("launch", "post-2", "user-a", at.Add(time.Minute)),
		hashtagSignal("launch", "post-3", "user-b", at.Add(2*time.Minute)),
		hashtagSignal("launch", "post-4", "user-b", at.Add(3*time.Minute)),
		hashtagSignal("launch", "post-5", "user-c", at.Add(4*time.Minute)),
	}
	inserted, err := suite.store.InsertSignals(ctx, batch)
	require.NoError(t, err)
	require.Equal(t, 5, inserted)

	result, err := suite.job.Refresh(ctx)
	require.NoError(t, err)
	require.False(t, result.Skipped)

	for _, window := range Windows {
		entries, err := suite.query.GetTrending(ctx, EntityHashtag, window, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1, "window %s", window)

		e := entries[0]
		assert.Equal(t, "launch", e.EntityKey)
		assert.Equal(t, "#launch", e.Label)
		assert.Equal(t, 1, e.Rank)
		assert.InDelta(t, 6.5, e.Count15m, 1e-9, "5 signals at weight 1.3")
		assert.Equal(t, 5, e.Events15m)
		assert.Equal(t, 3, e.UniqueUsers24, "three distinct actors")
		assert.Greater(t, e.Score, 0.0)
	}

	// Re-ingesting and refreshing again must not inflate anything.
	inserted, err = suite.store.InsertSignals(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	_, err = suite.job.Refresh(ctx)
	require.NoError(t, err)

	entries, err := suite.query.GetTrending(ctx, EntityHashtag, Window15m, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.InDelta(t, 6.5, entries[0].Count15m, 1e-9, "counts are stable across passes")
	assert.Equal(t, 5, entries[0].Events15m)
}

func (suite *TrendEngineTestSuite) TestWatermarkMonotonicAndExactlyOnce() {
	t := suite.T()
	ctx := context.Background()

	_, err := suite.store.InsertSignals(ctx, []SignalInput{
		hashtagSignal("demo", "post-1", "user-a", time.Now().UTC().Add(-20*time.Minute)),
	})
	require.NoError(t, err)

	_, err = suite.job.Refresh(ctx)
	require.NoError(t, err)
	first, err := suite.query.GetJobState(ctx)
	require.NoError(t, err)

	var weightAfterFirst float64
	suite.db.Model(&models.TrendMinuteBucket{}).
		Where("entity_key = ?", "demo").
		Select("COALESCE(SUM(signal_weight), 0)").Scan(&weightAfterFirst)
	assert.InDelta(t, WeightHashtag, weightAfterFirst, 1e-9)

	_, err = suite.job.Refresh(ctx)
	require.NoError(t, err)
	second, err := suite.query.GetJobState(ctx)
	require.NoError(t, err)

	assert.False(t, second.LastProcessedAt.Before(first.LastProcessedAt),
		"watermark never regresses")

	var weightAfterSecond float64
	suite.db.Model(&models.TrendMinuteBucket{}).
		Where("entity_key = ?", "demo").
		Select("COALESCE(SUM(signal_weight), 0)").Scan(&weightAfterSecond)
	assert.InDelta(t, weightAfterFirst, weightAfterSecond, 1e-9,
		"a signal is folded into buckets exactly once")
}

func (suite *TrendEngineTestSuite) TestLateSignalBehindWatermarkIsIgnored() {
	t := suite.T()
	ctx := context.Background()

	_, err := suite.job.Refresh(ctx)
	require.NoError(t, err)
	state, err := suite.query.GetJobState(ctx)
	require.NoError(t, err)

	// Arrives stamped before the watermark: aggregation never sees it.
	_, err = suite.store.InsertSignals(ctx, []SignalInput{
		hashtagSignal("stale", "post-1", "user-a", state.LastProcessedAt.Add(-time.Hour)),
	})
	require.NoError(t, err)

	_, err = suite.job.Refresh(ctx)
	require.NoError(t, err)

	var count int64
	suite.db.Model(&models.TrendMinuteBucket{}).Where("entity_key = ?", "stale").Count(&count)
	assert.Equal(t, int64(0), count)
}

func (suite *TrendEngineTestSuite) TestRefreshSkippedWhileLockHeld() {
	t := suite.T()

	holder := suite.db.Begin()
	require.NoError(t, holder.Error)
	defer holder.Rollback()

	var locked bool
	require.NoError(t, holder.Raw(
		"SELECT pg_try_advisory_xact_lock(hashtext(?))", suite.cfg.JobName,
	).Scan(&locked).Error)
	require.True(t, locked)

	result, err := suite.job.Refresh(context.Background())
	require.NoError(t, err, "a contended pass is not an error")
	assert.True(t, result.Skipped)

	var count int64
	suite.db.Model(&models.TrendJobState{}).Count(&count)
	assert.Equal(t, int64(0), count, "skipped pass must not touch job state")
}

func (suite *TrendEngineTestSuite) TestRefreshClearsStaleSnapshots() {
	t := suite.T()
	ctx := context.Background()

	// Seed a leftover snapshot with no backing activity.
	require.NoError(t, suite.db.Create(&models.TrendSnapshot{
		TimeWindow: Window15m,
		EntityType: EntityHashtag,
		Rank:       1,
		EntityKey:  "yesterday",
		Score:      99,
		ComputedAt: time.Now().UTC().Add(-2 * time.Hour),
	}).Error)

	_, err := suite.job.Refresh(ctx)
	require.NoError(t, err)

	entries, err := suite.query.GetTrending(ctx, EntityHashtag, Window15m, 10)
	require.NoError(t, err)
	assert.Empty(t, entries, "an empty candidate set still replaces the published set")
}

func (suite *TrendEngineTestSuite) TestCleanupPrunesExpiredRows() {
	t := suite.T()
	ctx := context.Background()
	now := time.Now().UTC()

	// Old enough that both the raw signal and the bucket the pass
	// derives from it fall past their retention cutoffs.
	expired := models.TrendSignal{
		EntityType:  EntityHashtag,
		EntityKey:   "ancient",
		SourceType:  SourcePost,
		SourceID:    "post-old",
		SignalKind:  KindHashtag,
		ActorUserID: "user-a",
		Weight:      1,
		CreatedAt:   now.AddDate(0, 0, -suite.cfg.BucketRetentionDays-2),
	}
	require.NoError(t, suite.db.Create(&expired).Error)
	require.NoError(t, suite.db.Create(&models.TrendMinuteBucket{
		BucketMinute: now.AddDate(0, 0, -suite.cfg.BucketRetentionDays-2).Truncate(time.Minute),
		EntityType:   EntityHashtag,
		EntityKey:    "ancient",
		SignalWeight: 1,
		EventCount:   1,
	}).Error)

	result, err := suite.job.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, result.CleanupRan, "first pass has no cleanup stamp and must clean")

	var signals, buckets int64
	suite.db.Model(&models.TrendSignal{}).Where("entity_key = ?", "ancient").Count(&signals)
	suite.db.Model(&models.TrendMinuteBucket{}).Where("entity_key = ?", "ancient").Count(&buckets)
	assert.Equal(t, int64(0), signals)
	assert.Equal(t, int64(0), buckets)

	result, err = suite.job.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, result.CleanupRan, "cleanup is gated until the interval elapses")
}

func (suite *TrendEngineTestSuite) TestTrendingUserEnrichment() {
	t := suite.T()
	ctx := context.Background()

	user := models.User{
		ID:          "11111111-1111-1111-1111-111111111111",
		Username:    "beatsmith",
		DisplayName: "Beat Smith",
	}
	require.NoError(t, suite.db.Create(&user).Error)

	at := time.Now().UTC().Add(-10 * time.Minute)
	_, err := suite.store.InsertSignals(ctx, []SignalInput{
		{
			EntityType:  EntityUser,
			EntityKey:   user.ID,
			SourceType:  SourcePost,
			SourceID:    "post-1",
			SignalKind:  KindMention,
			ActorUserID: "user-z",
			Weight:      WeightMention,
			OccurredAt:  at,
		},
		{
			EntityType:  EntityUser,
			EntityKey:   "99999999-9999-9999-9999-999999999999", // no profile row
			SourceType:  SourcePost,
			SourceID:    "post-2",
			SignalKind:  KindMention,
			ActorUserID: "user-z",
			Weight:      WeightMention,
			OccurredAt:  at,
		},
	})
	require.NoError(t, err)

	_, err = suite.job.Refresh(ctx)
	require.NoError(t, err)

	entries, err := suite.query.GetTrending(ctx, EntityUser, Window1h, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byKey := make(map[string]TrendingEntry)
	for _, e := range entries {
		byKey[e.EntityKey] = e
	}

	known := byKey[user.ID]
	assert.Equal(t, "Beat Smith", known.Label)
	require.NotNil(t, known.User)
	assert.Equal(t, "beatsmith", known.User.Username)
	assert.Equal(t, "Beat Smith", known.User.DisplayName)

	unknown := byKey["99999999-9999-9999-9999-999999999999"]
	assert.Equal(t, "User", unknown.Label, "missing profile labels the generic fallback")
	require.NotNil(t, unknown.User, "user entries always carry a user object")
	assert.Equal(t, unknown.EntityKey, unknown.User.ID, "id falls back to the entity key")
	assert.Equal(t, "User", unknown.User.DisplayName)
}

func (suite *TrendEngineTestSuite) TestGetTrendingAllReturnsEveryList() {
	t := suite.T()
	ctx := context.Background()
	at := time.Now().UTC().Add(-5 * time.Minute)

	_, err := suite.store.InsertSignals(ctx, BuildSignals(SourceEvent{
		SourceType:   SourcePost,
		SourceID:     "post-1",
		AuthorUserID: "author-1",
		Hashtags:     []string{"golang"},
		TextTokens:   []string{"concurrency"},
		OccurredAt:   at,
	}))
	require.NoError(t, err)

	_, err = suite.job.Refresh(ctx)
	require.NoError(t, err)

	set, err := suite.query.GetTrendingAll(ctx, Window1h, 10)
	require.NoError(t, err)
	assert.Equal(t, Window1h, set.Window)
	assert.Len(t, set.Hashtag, 1)
	assert.Len(t, set.User, 1, "the author signal puts the author on the user list")
	assert.Len(t, set.Text, 1)
}

func (suite *TrendEngineTestSuite) TestGetTrendingValidation() {
	t := suite.T()
	ctx := context.Background()

	_, err := suite.query.GetTrending(ctx, "playlist", Window1h, 10)
	assert.ErrorIs(t, err, ErrInvalidEntityType)

	_, err = suite.query.GetTrending(ctx, EntityHashtag, "7d", 10)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = suite.query.GetTrendingAll(ctx, "week", 10)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestTrendEngineSuite(t *testing.T) {
	if os.Getenv("SKIP_DB_TESTS") == "true" {
		t.Skip("Skipping database tests")
	}

	suite.Run(t, new(TrendEngineTestSuite))
}
