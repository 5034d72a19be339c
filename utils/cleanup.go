package utils

import (
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vinakademin/vinakademin-backend/models"
	"github.com/vinakademin/vinakademin-backend/services"
)

// CleanupExpiredTokens deletes password reset tokens that are expired or used.
func CleanupExpiredTokens(db *gorm.DB, logger *zap.Logger, now time.Time) {
	result := db.Where("expires_at < ? OR used = ?", now, true).
		Delete(&models.PasswordReset{})
	if result.Error != nil {
		logger.Error("Failed to delete password reset tokens", zap.Error(result.Error))
		return
	}
	if result.RowsAffected > 0 {
		logger.Info("Deleted stale password reset tokens", zap.Int64("count", result.RowsAffected))
	}
}

// ExpireStaleSessions marks overdue group sessions expired and hands their
// ids to onExpired.
func ExpireStaleSessions(db *gorm.DB, logger *zap.Logger, now time.Time, onExpired func(uuid.UUID)) {
	ids, err := services.ExpireSessions(db, now)
	if err != nil {
		logger.Error("Failed to expire sessions", zap.Error(err))
	}
	for _, id := range ids {
		logger.Info("Session expired", zap.String("session_id", id.String()))
		if onExpired != nil {
			onExpired(id)
		}
	}
}

// StartScheduler runs the background jobs and returns the running scheduler
// so the caller can stop it on shutdown.
func StartScheduler(db *gorm.DB, logger *zap.Logger, onExpired func(uuid.UUID)) (*cron.Cron, error) {
	logger = logger.Named("scheduler")
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(zap.NewStdLog(logger)))))

	if _, err := c.AddFunc("@every 1m", func() {
		ExpireStaleSessions(db, logger, time.Now().UTC(), onExpired)
	}); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc("@every 6h", func() {
		CleanupExpiredTokens(db, logger, time.Now().UTC())
	}); err != nil {
		return nil, err
	}

	// first pass at startup
	CleanupExpiredTokens(db, logger, time.Now().UTC())
	ExpireStaleSessions(db, logger, time.Now().UTC(), onExpired)

	c.Start()
	logger.Info("Scheduler started", zap.Int("jobs", len(c.Entries())))
	return c, nil
}
