package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/pulsefeed/backend/internal/trends"
	"github.com/zfogg/pulsefeed/backend/internal/util"
	"gorm.io/gorm"
)

// GetTrending serves GET /api/v1/trending.
// Query params: type (all|hashtag|user|text, default all),
// window (15m|1h|24h, default 1h), limit (1..100, default 20).
func (h *Handlers) GetTrending(c *gin.Context) {
	entityType := c.DefaultQuery("type", "all")
	window := c.DefaultQuery("window", trends.Window1h)
	limit := util.ParseInt(c.DefaultQuery("limit", "20"), 20)

	if !trends.IsValidWindow(window) {
		util.RespondBadRequest(c, "Invalid window. Use one of: 15m, 1h, 24h.")
		return
	}

	if entityType == "all" {
		set, err := h.query.GetTrendingAll(c.Request.Context(), window, limit)
		if err != nil {
			util.RespondInternalError(c, "Failed to load trending.")
			return
		}
		c.JSON(http.StatusOK, set)
		return
	}

	if !trends.IsValidEntityType(entityType) {
		util.RespondBadRequest(c, "Invalid type. Use one of: all, hashtag, user, text.")
		return
	}

	// A single type returns the flat ranked array; only type=all wraps
	// the lists in a keyed object.
	entries, err := h.query.GetTrending(c.Request.Context(), entityType, window, limit)
	if err != nil {
		util.RespondInternalError(c, "Failed to load trending.")
		return
	}
	c.JSON(http.StatusOK, entries)
}

// RecomputeTrends serves POST /api/v1/trending/recompute. It runs one
// refresh pass inline and reports what the pass did; a pass skipped on
// lock contention is still a 200.
func (h *Handlers) RecomputeTrends(c *gin.Context) {
	result, err := h.job.Refresh(c.Request.Context())
	if err != nil {
		util.RespondInternalError(c, "Failed to recompute trending.")
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetTrendJobState serves GET /api/v1/trending/job-state.
func (h *Handlers) GetTrendJobState(c *gin.Context) {
	state, err := h.query.GetJobState(c.Request.Context())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.RespondNotFound(c, "Trend job state")
			return
		}
		util.RespondInternalError(c, "Failed to load job state.")
		return
	}
	c.JSON(http.StatusOK, state)
}

// IngestSignals serves POST /api/v1/trending/signals. The body is a
// JSON array of signals; malformed rows and duplicates are dropped, and
// the response reports how many rows were actually inserted.
func (h *Handlers) IngestSignals(c *gin.Context) {
	var inputs []trends.SignalInput
	if err := c.ShouldBindJSON(&inputs); err != nil {
		util.RespondBadRequest(c, "Request body must be a JSON array of signals.")
		return
	}

	inserted, err := h.store.InsertSignals(c.Request.Context(), inputs)
	if err != nil {
		util.RespondInternalError(c, "Failed to ingest signals.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"inserted": inserted})
}
