package db

import (
	"context"
	"time"

	"github.com/as3contender/alex-orator-bot/pkg/logger"
	"gorm.io/gorm"
)

const FlowStateCleanupInterval = 10 * time.Minute

// CleanupExpiredFlowStates deletes keyed flow state whose TTL has passed.
func CleanupExpiredFlowStates(gdb *gorm.DB, now time.Time) (int64, error) {
	if gdb == nil {
		return 0, nil
	}
	res := gdb.Where("expires_at <= ?", now).Delete(&FlowState{})
	return res.RowsAffected, res.Error
}

func StartFlowStateCleanup(ctx context.Context, gdb *gorm.DB, interval time.Duration) {
	if interval <= 0 {
		interval = FlowStateCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := CleanupExpiredFlowStates(gdb, time.Now().UTC())
			if err != nil {
				logger.Error("failed to cleanup expired flow state", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Debug("expired flow state removed", "rows", deleted)
			}
		}
	}
}
