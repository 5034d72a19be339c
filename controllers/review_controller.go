package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vinakademin/vinakademin-backend/models"
	"github.com/vinakademin/vinakademin-backend/services"
)

// ReviewView is a review without the author's private fields.
type ReviewView struct {
	ID           uuid.UUID    `json:"id"`
	AuthorID     uuid.UUID    `json:"author_id"`
	AuthorName   string       `json:"author_name"`
	Expert       bool         `json:"expert"`
	CourseID     *uuid.UUID   `json:"course_id,omitempty"`
	WineID       *uuid.UUID   `json:"wine_id,omitempty"`
	SessionID    *uuid.UUID   `json:"session_id,omitempty"`
	Rating       int          `json:"rating"`
	Comment      string       `json:"comment"`
	TastingNotes string       `json:"tasting_notes,omitempty"`
	Wine         *models.Wine `json:"wine,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

func publicReviews(reviews []models.Review) []ReviewView {
	out := make([]ReviewView, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, ReviewView{
			ID:           r.ID,
			AuthorID:     r.AuthorID,
			AuthorName:   r.Author.FullName,
			Expert:       r.Author.Role.IsStaff(),
			CourseID:     r.CourseID,
			WineID:       r.WineID,
			SessionID:    r.SessionID,
			Rating:       r.Rating,
			Comment:      r.Comment,
			TastingNotes: r.TastingNotes,
			Wine:         r.Wine,
			CreatedAt:    r.CreatedAt,
		})
	}
	return out
}

// saveReview updates the review matching query or creates review.
func saveReview(db *gorm.DB, review models.Review, query string, args ...interface{}) (*models.Review, bool, error) {
	var existing models.Review
	err := db.Where(query, args...).First(&existing).Error
	switch {
	case err == nil:
		existing.Rating = review.Rating
		existing.Comment = review.Comment
		existing.TastingNotes = review.TastingNotes
		if err := db.Omit("Author", "Wine").Save(&existing).Error; err != nil {
			return nil, false, err
		}
		return &existing, false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := db.Omit("Author", "Wine").Create(&review).Error; err != nil {
			return nil, false, err
		}
		return &review, true, nil
	default:
		return nil, false, err
	}
}

type ReviewInput struct {
	Rating       int    `json:"rating" binding:"required,min=1,max=5"`
	Comment      string `json:"comment" binding:"max=2000"`
	TastingNotes string `json:"tasting_notes" binding:"max=2000"`
}

// UpsertCourseReview keeps one review per user and course. Only enrolled
// users may review.
func UpsertCourseReview(c *gin.Context) {
	db := getDB(c)
	courseID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var input ReviewInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := currentUserID(c)
	if _, err := services.FindActiveEnrollment(db, userID, courseID); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Du måste vara inskriven på kursen för att recensera den"})
			return
		}
		respondError(c, err)
		return
	}

	review, created, err := saveReview(db, models.Review{
		AuthorID: userID,
		CourseID: &courseID,
		Rating:   input.Rating,
		Comment:  input.Comment,
	}, "author_id = ? AND course_id = ? AND wine_id IS NULL", userID, courseID)
	if err != nil {
		respondError(c, err)
		return
	}
	services.Catalog.Invalidate(c.Request.Context())

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"message": "Tack för din recension", "review": review})
}

func ListCourseReviews(c *gin.Context) {
	db := getDB(c)
	courseID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	p := parsePagination(c, 20)

	query := db.Model(&models.Review{}).Where("course_id = ? AND wine_id IS NULL", courseID)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}
	var avg float64
	db.Model(&models.Review{}).
		Where("course_id = ? AND wine_id IS NULL", courseID).
		Select("COALESCE(AVG(rating), 0)").
		Scan(&avg)

	var reviews []models.Review
	err := query.Preload("Author").Order("created_at DESC").Offset(p.Offset).Limit(p.Limit).Find(&reviews).Error
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reviews":        publicReviews(reviews),
		"average_rating": avg,
		"pagination":     p.meta(total),
	})
}

// CreateWineReview stores the caller's review of a wine outside a session.
func CreateWineReview(c *gin.Context) {
	db := getDB(c)
	wineID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var input ReviewInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var wine models.Wine
	if err := db.First(&wine, "id = ?", wineID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vinet hittades inte"})
		return
	}

	userID := currentUserID(c)
	review, created, err := saveReview(db, models.Review{
		AuthorID:     userID,
		WineID:       &wine.ID,
		Rating:       input.Rating,
		Comment:      input.Comment,
		TastingNotes: input.TastingNotes,
	}, "author_id = ? AND wine_id = ? AND session_id IS NULL", userID, wine.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"message": "Tack för din recension", "review": review})
}

// DeleteReview lets authors remove their own review and staff remove any.
func DeleteReview(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var review models.Review
	if err := db.First(&review, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Recensionen hittades inte"})
		return
	}
	if review.AuthorID != currentUserID(c) && !currentRole(c).IsStaff() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Du kan bara ta bort dina egna recensioner"})
		return
	}
	if err := db.Delete(&review).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Recensionen har tagits bort"})
}
