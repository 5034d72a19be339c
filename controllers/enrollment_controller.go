package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vinakademin/vinakademin-backend/models"
	"github.com/vinakademin/vinakademin-backend/services"
)

// EnrollFree enrolls the caller in a free course. Paid courses answer 402
// with a hint to use checkout. Enrolling twice returns the same enrollment.
func EnrollFree(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var course models.Course
	if err := db.First(&course, "id = ? AND status = ?", id, models.CoursePublished).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Kursen hittades inte"})
		return
	}
	if course.Purchasable() {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":     "Kursen måste köpas",
			"course_id": course.ID,
			"checkout":  true,
		})
		return
	}

	enrollment, err := services.UpsertEnrollment(db, currentUserID(c), course.ID, models.SourceFree, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Du är nu inskriven på kursen", "enrollment": enrollment})
}

func MyEnrollments(c *gin.Context) {
	var enrollments []models.Enrollment
	err := getDB(c).Preload("Course").
		Where("user_id = ? AND status = ?", currentUserID(c), models.EnrollmentActive).
		Order("created_at DESC").
		Find(&enrollments).Error
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enrollments": enrollments})
}

// CompleteLesson records that the caller finished a lesson.
func CompleteLesson(c *gin.Context) {
	db := getDB(c)
	lessonID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var lesson models.Lesson
	if err := db.Select("id", "module_id", "is_free").First(&lesson, "id = ?", lessonID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Lektionen hittades inte"})
		return
	}
	var module models.Module
	if err := db.Select("id", "course_id").First(&module, "id = ?", lesson.ModuleID).Error; err != nil {
		respondError(c, err)
		return
	}
	course, err := services.LoadCourseTree(db, "id = ?", module.CourseID)
	if err != nil {
		respondError(c, err)
		return
	}

	userID := currentUserID(c)
	if !lesson.IsFree {
		hasAccess, err := services.HasCourseAccess(db, userID, currentRole(c), course)
		if err != nil {
			respondError(c, err)
			return
		}
		if !hasAccess {
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "Lektionen ingår i en betald kurs"})
			return
		}
	}

	progress, err := services.CompleteLesson(db, userID, course, lessonID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Lektionen är klar", "progress": progress})
}

func GetCourseProgress(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	course, err := services.LoadCourseTree(db, "id = ?", id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Kursen hittades inte"})
		return
	}
	progress, err := services.CourseProgress(db, currentUserID(c), course)
	if err != nil {
		respondError(c, err)
		return
	}

	enrollment, err := services.FindActiveEnrollment(db, currentUserID(c), course.ID)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		respondError(c, err)
		return
	}
	if enrollment != nil {
		progress.DoneAt = enrollment.CompletedAt
	}
	c.JSON(http.StatusOK, gin.H{"progress": progress, "enrolled": enrollment != nil})
}

type GrantEnrollmentInput struct {
	UserID   uuid.UUID `json:"user_id" binding:"required"`
	CourseID uuid.UUID `json:"course_id" binding:"required"`
}

// AdminGrantEnrollment gives a user access to a course without payment.
func AdminGrantEnrollment(c *gin.Context) {
	db := getDB(c)
	var input GrantEnrollmentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, check := range []struct {
		model interface{}
		id    uuid.UUID
	}{{&models.User{}, input.UserID}, {&models.Course{}, input.CourseID}} {
		if err := db.Select("id").First(check.model, "id = ?", check.id).Error; errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Användaren eller kursen hittades inte"})
			return
		} else if err != nil {
			respondError(c, err)
			return
		}
	}

	enrollment, err := services.UpsertEnrollment(db, input.UserID, input.CourseID, models.SourceAdmin, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Tillgång har getts", "enrollment": enrollment})
}

// AdminRevokeEnrollment cancels an enrollment.
func AdminRevokeEnrollment(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	res := getDB(c).Model(&models.Enrollment{}).
		Where("id = ? AND status = ?", id, models.EnrollmentActive).
		Update("status", models.EnrollmentCancelled)
	if res.Error != nil {
		respondError(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Aktiv inskrivning hittades inte"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Tillgången har tagits bort"})
}
