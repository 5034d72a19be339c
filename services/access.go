package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vinakademin/vinakademin-backend/models"
)

// HasCourseAccess reports whether the user may open every item of the course.
// userID may be uuid.Nil for anonymous visitors.
func HasCourseAccess(db *gorm.DB, userID uuid.UUID, role models.UserRole, course *models.Course) (bool, error) {
	if course.IsFree || role.IsStaff() {
		return true, nil
	}
	if userID == uuid.Nil {
		return false, nil
	}

	var count int64
	err := db.Model(&models.Enrollment{}).
		Where("user_id = ? AND course_id = ? AND status = ?", userID, course.ID, models.EnrollmentActive).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	return HasActiveSubscription(db, userID)
}

// HasActiveSubscription reports whether any of the user's subscriptions grants access now.
func HasActiveSubscription(db *gorm.DB, userID uuid.UUID) (bool, error) {
	var subs []models.Subscription
	if err := db.Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		return false, err
	}
	now := time.Now().UTC()
	for _, s := range subs {
		if s.GrantsAccess(now) {
			return true, nil
		}
	}
	return false, nil
}

// UpsertEnrollment grants the user an active enrollment. The unique
// (user_id, course_id) index makes concurrent calls converge on one row.
func UpsertEnrollment(db *gorm.DB, userID, courseID uuid.UUID, source models.EnrollmentSource, orderID *uuid.UUID) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := db.Transaction(func(tx *gorm.DB) error {
		row := models.Enrollment{
			UserID:   userID,
			CourseID: courseID,
			Status:   models.EnrollmentActive,
			Source:   source,
			OrderID:  orderID,
		}
		updates := []string{"status", "updated_at"}
		if orderID != nil {
			updates = append(updates, "source", "order_id")
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
			DoUpdates: clause.AssignmentColumns(updates),
		}).Create(&row).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? AND course_id = ?", userID, courseID).First(&enrollment).Error
	})
	if err != nil {
		return nil, fmt.Errorf("upsert enrollment: %w", err)
	}
	return &enrollment, nil
}

// FindActiveEnrollment returns the user's active enrollment, or ErrNotFound.
func FindActiveEnrollment(db *gorm.DB, userID, courseID uuid.UUID) (*models.Enrollment, error) {
	var e models.Enrollment
	err := db.Where("user_id = ? AND course_id = ? AND status = ?", userID, courseID, models.EnrollmentActive).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Progress summarises how far a user has come in a course.
type Progress struct {
	CourseID  uuid.UUID  `json:"course_id"`
	Completed int        `json:"completed"`
	Total     int        `json:"total"`
	Percent   int        `json:"percent"`
	Done      bool       `json:"done"`
	DoneAt    *time.Time `json:"done_at,omitempty"`
}

// CompletedLessons returns the set of lessons the user has finished in a course.
func CompletedLessons(db *gorm.DB, userID, courseID uuid.UUID) (map[uuid.UUID]bool, error) {
	var rows []models.LessonProgress
	if err := db.Where("user_id = ? AND course_id = ?", userID, courseID).Find(&rows).Error; err != nil {
		return nil, err
	}
	done := make(map[uuid.UUID]bool, len(rows))
	for _, r := range rows {
		done[r.LessonID] = true
	}
	return done, nil
}

// CourseProgress counts completed lessons over the course's lessons.
func CourseProgress(db *gorm.DB, userID uuid.UUID, course *models.Course) (*Progress, error) {
	done, err := CompletedLessons(db, userID, course.ID)
	if err != nil {
		return nil, err
	}
	ids := LessonIDs(course)
	p := &Progress{CourseID: course.ID, Total: len(ids)}
	for _, id := range ids {
		if done[id] {
			p.Completed++
		}
	}
	if p.Total > 0 {
		p.Percent = p.Completed * 100 / p.Total
	}
	p.Done = p.Total > 0 && p.Completed == p.Total
	return p, nil
}

// CompleteLesson records progress and stamps the enrollment as completed
// once every lesson is done.
func CompleteLesson(db *gorm.DB, userID uuid.UUID, course *models.Course, lessonID uuid.UUID) (*Progress, error) {
	if !CourseHasLesson(course, lessonID) {
		return nil, ErrNotFound
	}
	row := models.LessonProgress{UserID: userID, LessonID: lessonID, CourseID: course.ID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}

	p, err := CourseProgress(db, userID, course)
	if err != nil {
		return nil, err
	}
	if p.Done {
		now := time.Now().UTC()
		res := db.Model(&models.Enrollment{}).
			Where("user_id = ? AND course_id = ? AND completed_at IS NULL", userID, course.ID).
			Update("completed_at", now)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected > 0 {
			p.DoneAt = &now
		}
	}
	return p, nil
}
