package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vinakademin/vinakademin-backend/config"
	"github.com/vinakademin/vinakademin-backend/logger"
	"github.com/vinakademin/vinakademin-backend/models"
	"github.com/vinakademin/vinakademin-backend/services"
)

func getDB(c *gin.Context) *gorm.DB {
	if v, ok := c.Get("db"); ok {
		if db, ok := v.(*gorm.DB); ok {
			return db.WithContext(c.Request.Context())
		}
	}
	return config.DB.WithContext(c.Request.Context())
}

// currentUserID returns uuid.Nil for anonymous callers.
func currentUserID(c *gin.Context) uuid.UUID {
	id, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func currentRole(c *gin.Context) models.UserRole {
	return models.UserRole(c.GetString("role"))
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Ogiltigt ID"})
		return uuid.Nil, false
	}
	return id, true
}

type pagination struct {
	Page   int
	Limit  int
	Offset int
}

func parsePagination(c *gin.Context, defaultLimit int) pagination {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit < 1 {
		limit = defaultLimit
	}
	if limit > 100 {
		limit = 100
	}
	return pagination{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

func (p pagination) meta(total int64) gin.H {
	return gin.H{
		"page":       p.Page,
		"limit":      p.Limit,
		"total":      total,
		"totalPages": (total + int64(p.Limit) - 1) / int64(p.Limit),
	}
}

var errorResponses = []struct {
	err     error
	status  int
	message string
}{
	{gorm.ErrRecordNotFound, http.StatusNotFound, "Hittades inte"},
	{services.ErrNotFound, http.StatusNotFound, "Hittades inte"},
	{services.ErrForbidden, http.StatusForbidden, "Du har inte behörighet"},
	{services.ErrInvalidInput, http.StatusBadRequest, "Ogiltig förfrågan"},
	{services.ErrAlreadyOwned, http.StatusConflict, "Du har redan tillgång till kursen"},
	{services.ErrCourseNotPurchasable, http.StatusBadRequest, "Kursen kan inte köpas"},
	{services.ErrPaymentRequired, http.StatusPaymentRequired, "Kursen måste köpas"},
	{services.ErrJoinCodeExhausted, http.StatusServiceUnavailable, "Kunde inte skapa en anslutningskod, försök igen"},
	{services.ErrSessionNotFound, http.StatusNotFound, "Sessionen hittades inte"},
	{services.ErrSessionEnded, http.StatusGone, "Sessionen är avslutad"},
	{services.ErrSessionExpired, http.StatusGone, "Sessionen har gått ut"},
	{services.ErrSessionFull, http.StatusConflict, "Sessionen är full"},
	{services.ErrNotHost, http.StatusForbidden, "Endast värden kan göra detta"},
	{services.ErrNotParticipant, http.StatusForbidden, "Du deltar inte i den här sessionen"},
	{services.ErrNicknameRequired, http.StatusBadRequest, "Ange ett smeknamn på 2 till 40 tecken"},
	{services.ErrContentNotInCourse, http.StatusBadRequest, "Innehållet tillhör inte sessionens kurs"},
	{services.ErrInvalidSignature, http.StatusBadRequest, "Ogiltig signatur"},
}

// respondError maps service errors to a status and message. Anything
// unknown is logged and answered with 500.
func respondError(c *gin.Context, err error) {
	for _, r := range errorResponses {
		if errors.Is(err, r.err) {
			c.JSON(r.status, gin.H{"error": r.message})
			return
		}
	}
	logger.FromGin(c).Error("Request failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Ett oväntat fel inträffade"})
}
