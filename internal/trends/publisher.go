package trends

import (
	"time"

	"github.com/google/uuid"
	"github.com/zfogg/pulsefeed/backend/internal/models"
	"gorm.io/gorm"
)

// replaceSnapshots swaps the published set for one (window, entity type)
// pair: delete everything, insert the new ranking. Run inside the
// refresh transaction, readers only ever observe the old complete set or
// the new complete set. An empty ranking still clears stale rows.
func replaceSnapshots(tx *gorm.DB, entityType, window string, ranked []RankedEntity, computedAt time.Time) error {
	if err := tx.
		Where("time_window = ? AND entity_type = ?", window, entityType).
		Delete(&models.TrendSnapshot{}).Error; err != nil {
		return err
	}
	if len(ranked) == 0 {
		return nil
	}

	rows := make([]models.TrendSnapshot, 0, len(ranked))
	for _, r := range ranked {
		rows = append(rows, models.TrendSnapshot{
			ID:            uuid.New().String(),
			TimeWindow:    window,
			EntityType:    entityType,
			Rank:          r.Rank,
			EntityKey:     r.EntityKey,
			Score:         r.Score,
			Count15m:      r.Count15m,
			Count1h:       r.Count1h,
			Count24h:      r.Count24h,
			Events15m:     r.Events15m,
			Events1h:      r.Events1h,
			Events24h:     r.Events24h,
			UniqueUsers24: r.UniqueUsers24,
			ComputedAt:    computedAt,
		})
	}
	return tx.CreateInBatches(&rows, 200).Error
}
