package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/pulsefeed/backend/internal/models"
	"github.com/zfogg/pulsefeed/backend/internal/trends"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newTestRouter wires the trend routes the way the server does, with no
// database behind them. Only paths that reject the request before
// touching storage are exercised here; the full pipeline is covered by
// the engine's database suite.
func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := NewHandlers(trends.NewStore(nil), nil, trends.NewQuery(nil, nil, 0))

	router := gin.New()
	v1 := router.Group("/api/v1")
	{
		v1.GET("/trending", h.GetTrending)
		v1.POST("/trending/signals", h.IngestSignals)
	}
	return router
}

// newSnapshotRouter backs the trending route with an in-memory SQLite
// database holding one published snapshot set, so response shapes can
// be asserted end to end.
func newSnapshotRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`
		CREATE TABLE trend_snapshots (
			id TEXT PRIMARY KEY,
			time_window TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			rank INTEGER NOT NULL,
			entity_key TEXT NOT NULL,
			score REAL NOT NULL,
			count15m REAL NOT NULL DEFAULT 0,
			count1h REAL NOT NULL DEFAULT 0,
			count24h REAL NOT NULL DEFAULT 0,
			events15m INTEGER NOT NULL DEFAULT 0,
			events1h INTEGER NOT NULL DEFAULT 0,
			events24h INTEGER NOT NULL DEFAULT 0,
			unique_users_24h INTEGER NOT NULL DEFAULT 0,
			computed_at DATETIME NOT NULL
		)
	`).Error)

	require.NoError(t, db.Create(&models.TrendSnapshot{
		ID:            "snap-1",
		TimeWindow:    trends.Window1h,
		EntityType:    trends.EntityHashtag,
		Rank:          1,
		EntityKey:     "golang",
		Score:         42.5,
		UniqueUsers24: 3,
		ComputedAt:    time.Now().UTC(),
	}).Error)

	h := NewHandlers(trends.NewStore(db), nil, trends.NewQuery(db, nil, 0))

	router := gin.New()
	router.GET("/api/v1/trending", h.GetTrending)
	return router
}

func TestGetTrendingSingleTypeReturnsFlatArray(t *testing.T) {
	router := newSnapshotRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/trending?type=hashtag&window=1h", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	// Single-type responses are the ranked array itself, not a wrapper
	// object around it.
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "hashtag", row["type"])
	assert.Equal(t, "golang", row["key"])
	assert.Equal(t, "#golang", row["label"])
	assert.Equal(t, float64(1), row["rank"])
	assert.Contains(t, row, "uniqueUsers24h")
	assert.Contains(t, row, "computedAt")
}

func TestGetTrendingRejectsInvalidWindow(t *testing.T) {
	router := newTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/trending?window=7d", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid window")
}

func TestGetTrendingRejectsInvalidType(t *testing.T) {
	router := newTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/trending?type=playlist&window=1h", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid type")
}

func TestIngestSignalsRejectsMalformedBody(t *testing.T) {
	router := newTestRouter()

	testCases := []struct {
		name string
		body string
	}{
		{"not json", "not-json"},
		{"object instead of array", `{"entity_type":"hashtag"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/trending/signals", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestIngestSignalsEmptyBatchIsNoOp(t *testing.T) {
	router := newTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/trending/signals", strings.NewReader("[]"))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"inserted": 0}`, w.Body.String())
}

func TestIngestSignalsAllInvalidRowsDropped(t *testing.T) {
	router := newTestRouter()

	// Valid JSON, but every row fails validation, so nothing reaches
	// the database and the batch succeeds with zero inserts.
	body := `[{"entity_type":"playlist","entity_key":"x","source_type":"post","source_id":"p1","signal_kind":"hashtag","actor_user_id":"u1"}]`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/trending/signals", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"inserted": 0}`, w.Body.String())
}
