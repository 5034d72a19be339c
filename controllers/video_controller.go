package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vinakademin/vinakademin-backend/config"
	"github.com/vinakademin/vinakademin-backend/logger"
	"github.com/vinakademin/vinakademin-backend/models"
	"github.com/vinakademin/vinakademin-backend/services"
)

// CreateLessonVideoUpload returns a Mux direct upload URL for a lesson.
// The Mux webhook attaches the finished asset to the lesson.
func CreateLessonVideoUpload(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	lesson, ok := editableLesson(c, db, id)
	if !ok {
		return
	}
	if services.Mux == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Videouppladdning är inte konfigurerad"})
		return
	}

	upload, err := services.Mux.CreateDirectUpload(c.Request.Context(), lesson.ID, config.AppConfig.FrontendURL)
	if err != nil {
		logger.FromGin(c).Error("Mux upload creation failed", zap.String("lesson_id", lesson.ID.String()), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Kunde inte förbereda videouppladdningen"})
		return
	}

	err = db.Model(lesson).Updates(map[string]interface{}{
		"mux_upload_id": upload.ID,
		"video_status":  models.VideoWaiting,
	}).Error
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":    "Uppladdningen är förberedd",
		"upload_id":  upload.ID,
		"upload_url": upload.URL,
	})
}
