package config

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vinakademin/vinakademin-backend/models"
)

var DB *gorm.DB

// GormConfig is shared by the Postgres connection and the test databases so
// timestamps are always written in UTC.
func GormConfig(level logger.LogLevel) *gorm.Config {
	return &gorm.Config{
		Logger:  logger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// InitDB connects to Postgres, configures pooling and runs migrations.
func InitDB(cfg *Config) error {
	level := logger.Info
	if cfg.IsProduction() {
		level = logger.Warn
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), GormConfig(level))
	if err != nil {
		return fmt.Errorf("kunde inte ansluta till databasen: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("kunde inte hämta sql.DB från gorm: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := Migrate(db); err != nil {
		return err
	}

	DB = db
	return nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.PasswordReset{},
		&models.Course{},
		&models.Module{},
		&models.Lesson{},
		&models.Quiz{},
		&models.Question{},
		&models.QuestionOption{},
		&models.QuizAttempt{},
		&models.Enrollment{},
		&models.LessonProgress{},
		&models.Order{},
		&models.Subscription{},
		&models.WebhookEvent{},
		&models.CourseSession{},
		&models.SessionParticipant{},
		&models.Wine{},
		&models.Review{},
		&models.BlogPost{},
	)
	if err != nil {
		return fmt.Errorf("autoMigrate misslyckades: %w", err)
	}
	return nil
}
