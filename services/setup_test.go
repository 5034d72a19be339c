package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vinakademin/vinakademin-backend/config"
	"github.com/vinakademin/vinakademin-backend/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), config.GormConfig(gormlogger.Silent))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the in-memory database alive and shared
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(db))
	return db
}

func createUser(t *testing.T, db *gorm.DB, name string, role models.UserRole) *models.User {
	t.Helper()
	u := &models.User{
		FullName: name,
		Email:    uuid.NewString()[:8] + "@example.se",
		Role:     role,
		Active:   true,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// createCourse builds a course with one module holding two lessons and a
// quiz. Only the first lesson is free.
func createCourse(t *testing.T, db *gorm.DB, price int64) *models.Course {
	t.Helper()
	c := &models.Course{
		Title:  "Bordeaux för nybörjare",
		Slug:   "bordeaux-" + uuid.NewString()[:8],
		Price:  decimal.NewFromInt(price),
		IsFree: price == 0,
		Status: models.CoursePublished,
	}
	require.NoError(t, db.Create(c).Error)

	m := &models.Module{CourseID: c.ID, Title: "Grunderna", Order: 1}
	require.NoError(t, db.Create(m).Error)

	lessons := []models.Lesson{
		{ModuleID: m.ID, Title: "Druvorna", Order: 1, IsFree: true, Body: "Merlot och Cabernet"},
		{ModuleID: m.ID, Title: "Klassificeringen", Order: 2, Body: "1855"},
	}
	require.NoError(t, db.Create(&lessons).Error)
	quiz := &models.Quiz{ModuleID: m.ID, Title: "Kontrollfrågor", Order: 3}
	require.NoError(t, db.Create(quiz).Error)

	course, err := LoadCourseTree(db, "id = ?", c.ID)
	require.NoError(t, err)
	return course
}

var testNow = time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)
