package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vinakademin/vinakademin-backend/logger"
	"github.com/vinakademin/vinakademin-backend/middleware"
	"github.com/vinakademin/vinakademin-backend/models"
	"github.com/vinakademin/vinakademin-backend/services"
	"github.com/vinakademin/vinakademin-backend/utils"
	"github.com/vinakademin/vinakademin-backend/ws"
)

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

type CreateSessionInput struct {
	CourseID        uuid.UUID `json:"course_id" binding:"required"`
	Name            string    `json:"name" binding:"max=150"`
	DurationMinutes int       `json:"duration_minutes" binding:"omitempty,min=1"`
	MaxParticipants int       `json:"max_participants" binding:"omitempty,min=2,max=500"`
}

func participantToken(session *models.CourseSession, p *models.SessionParticipant) (string, error) {
	userID := ""
	if p.UserID != nil {
		userID = p.UserID.String()
	}
	return utils.GenerateParticipantToken(session.ID.String(), p.ID.String(), userID, session.ExpiresAt)
}

// CreateSession opens a group session. The host must have access to the course.
func CreateSession(c *gin.Context) {
	db := getDB(c)

	var input CreateSessionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var host models.User
	if err := db.First(&host, "id = ?", currentUserID(c)).Error; err != nil {
		respondError(c, err)
		return
	}
	var course models.Course
	if err := db.First(&course, "id = ?", input.CourseID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Kursen hittades inte"})
		return
	}
	if course.Status != models.CoursePublished && !host.Role.IsStaff() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Kursen hittades inte"})
		return
	}
	hasAccess, err := services.HasCourseAccess(db, host.ID, host.Role, &course)
	if err != nil {
		respondError(c, err)
		return
	}
	if !hasAccess {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":     "Du behöver tillgång till kursen för att starta en session",
			"course_id": course.ID,
			"checkout":  course.Purchasable(),
		})
		return
	}

	session, hostParticipant, err := services.CreateSession(db, &host, &course, services.SessionOptions{
		Name:            input.Name,
		Duration:        time.Duration(input.DurationMinutes) * time.Minute,
		MaxParticipants: input.MaxParticipants,
	}, now())
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := participantToken(session, hostParticipant)
	if err != nil {
		respondError(c, err)
		return
	}

	logger.FromGin(c).Info("Session created",
		zap.String("session_id", session.ID.String()),
		zap.String("course_id", course.ID.String()))
	services.Analytics.Capture(host.ID.String(), services.EventSessionCreated, map[string]interface{}{
		"session_id": session.ID.String(),
		"course_id":  course.ID.String(),
	})

	c.JSON(http.StatusCreated, gin.H{
		"message":           "Sessionen har startats",
		"session":           session,
		"join_code":         session.JoinCode,
		"participant":       hostParticipant,
		"participant_token": token,
	})
}

type JoinSessionInput struct {
	Code     string `json:"code" binding:"required"`
	Nickname string `json:"nickname" binding:"max=40,nickname"`
}

// JoinSession lets a registered user or a guest join with a code.
func JoinSession(c *gin.Context) {
	db := getDB(c)

	var input JoinSessionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var userID *uuid.UUID
	nickname := input.Nickname
	if id := currentUserID(c); id != uuid.Nil {
		userID = &id
		if nickname == "" {
			var user models.User
			if err := db.Select("id", "full_name").First(&user, "id = ?", id).Error; err == nil {
				nickname = user.FullName
			}
		}
	}

	session, participant, err := services.JoinSession(db, input.Code, userID, nickname, now())
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := participantToken(session, participant)
	if err != nil {
		respondError(c, err)
		return
	}

	ws.BroadcastSessionEvent(session.ID.String(), ws.EventParticipantJoined, participant)
	distinctID := participant.ID.String()
	if userID != nil {
		distinctID = userID.String()
	}
	services.Analytics.Capture(distinctID, services.EventSessionJoined, map[string]interface{}{
		"session_id": session.ID.String(),
		"guest":      userID == nil,
	})

	c.JSON(http.StatusOK, gin.H{
		"message":           "Du har anslutit till sessionen",
		"session":           session,
		"participant":       participant,
		"participant_token": token,
	})
}

// sessionParticipant resolves the caller inside the session from either a
// participant token or a user token.
func sessionParticipant(c *gin.Context, db *gorm.DB, session *models.CourseSession) (*models.SessionParticipant, error) {
	if claims := middleware.ClaimsFrom(c); claims != nil && claims.IsParticipantToken() {
		if claims.SessionID != session.ID.String() {
			return nil, services.ErrNotParticipant
		}
		pid, err := uuid.Parse(claims.ParticipantID)
		if err != nil {
			return nil, services.ErrNotParticipant
		}
		return services.FindParticipant(db, session.ID, pid)
	}
	if userID := currentUserID(c); userID != uuid.Nil {
		return services.FindUserParticipant(db, session.ID, userID)
	}
	return nil, services.ErrNotParticipant
}

func loadSessionParam(c *gin.Context, db *gorm.DB) (*models.CourseSession, bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return nil, false
	}
	session, err := services.LoadSession(db, id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return session, true
}

// GetSessionState is polled by participants. Ended and expired sessions
// are still returned so clients can show the final state.
func GetSessionState(c *gin.Context) {
	db := getDB(c)
	session, ok := loadSessionParam(c, db)
	if !ok {
		return
	}
	if _, err := sessionParticipant(c, db, session); err != nil && !currentRole(c).IsStaff() {
		respondError(c, err)
		return
	}

	err := services.EnsureOpen(db, session, now())
	if err != nil && !errors.Is(err, services.ErrSessionEnded) && !errors.Is(err, services.ErrSessionExpired) {
		respondError(c, err)
		return
	}

	state, err := services.LoadSessionState(db, session, now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func SessionHeartbeat(c *gin.Context) {
	db := getDB(c)
	session, ok := loadSessionParam(c, db)
	if !ok {
		return
	}
	p, err := sessionParticipant(c, db, session)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := services.Heartbeat(db, session, p.ID, now()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            session.Status,
		"current_lesson_id": session.CurrentLessonID,
		"current_quiz_id":   session.CurrentQuizID,
		"expires_at":        session.ExpiresAt,
	})
}

func LeaveSession(c *gin.Context) {
	db := getDB(c)
	session, ok := loadSessionParam(c, db)
	if !ok {
		return
	}
	p, err := sessionParticipant(c, db, session)
	if err != nil {
		respondError(c, err)
		return
	}
	wasPresent := p.LeftAt == nil
	p, err = services.Leave(db, session.ID, p.ID, now())
	if err != nil {
		respondError(c, err)
		return
	}
	if wasPresent {
		ws.BroadcastSessionEvent(session.ID.String(), ws.EventParticipantLeft, gin.H{
			"participant_id": p.ID,
			"nickname":       p.Nickname,
		})
	}
	c.JSON(http.StatusOK, gin.H{"message": "Du har lämnat sessionen"})
}

type NavigateInput struct {
	LessonID *uuid.UUID `json:"lesson_id"`
	QuizID   *uuid.UUID `json:"quiz_id"`
}

// NavigateSession moves every participant to a lesson or quiz. Host only.
func NavigateSession(c *gin.Context) {
	db := getDB(c)
	session, ok := loadSessionParam(c, db)
	if !ok {
		return
	}
	var input NavigateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := services.Navigate(db, session, currentUserID(c), input.LessonID, input.QuizID, now()); err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Ange antingen lesson_id eller quiz_id"})
			return
		}
		respondError(c, err)
		return
	}

	ws.BroadcastSessionEvent(session.ID.String(), ws.EventSessionNavigated, gin.H{
		"current_lesson_id": session.CurrentLessonID,
		"current_quiz_id":   session.CurrentQuizID,
	})
	c.JSON(http.StatusOK, gin.H{"message": "Sessionen har flyttats", "session": session})
}

func EndSession(c *gin.Context) {
	db := getDB(c)
	session, ok := loadSessionParam(c, db)
	if !ok {
		return
	}
	if err := services.EndSession(db, session, currentUserID(c), now()); err != nil {
		respondError(c, err)
		return
	}

	logger.FromGin(c).Info("Session ended", zap.String("session_id", session.ID.String()))
	ws.BroadcastSessionEvent(session.ID.String(), ws.EventSessionEnded, gin.H{"ended_at": session.EndedAt})
	c.JSON(http.StatusOK, gin.H{"message": "Sessionen är avslutad", "session": session})
}

// MySessions lists the caller's hosted sessions that are still running.
func MySessions(c *gin.Context) {
	var sessions []models.CourseSession
	err := getDB(c).Preload("Course").
		Where("host_id = ? AND status = ? AND expires_at > ?", currentUserID(c), models.SessionActive, now()).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		respondError(c, err)
		return
	}
	for i := range sessions {
		sessions[i].Course.Modules = nil
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

type SessionReviewInput struct {
	WineID       uuid.UUID `json:"wine_id" binding:"required"`
	Rating       int       `json:"rating" binding:"required,min=1,max=5"`
	Comment      string    `json:"comment" binding:"max=2000"`
	TastingNotes string    `json:"tasting_notes" binding:"max=2000"`
}

// CreateSessionReview stores a registered participant's wine review made
// during the session. Reviewing the same wine again updates the review.
func CreateSessionReview(c *gin.Context) {
	db := getDB(c)
	session, ok := loadSessionParam(c, db)
	if !ok {
		return
	}
	userID := currentUserID(c)
	p, err := services.FindUserParticipant(db, session.ID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if p.LeftAt != nil {
		respondError(c, services.ErrNotParticipant)
		return
	}
	if err := services.EnsureOpen(db, session, now()); err != nil {
		respondError(c, err)
		return
	}

	var input SessionReviewInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var wine models.Wine
	if err := db.First(&wine, "id = ?", input.WineID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vinet hittades inte"})
		return
	}

	sessionID := session.ID
	review, created, err := saveReview(db, models.Review{
		AuthorID:     userID,
		WineID:       &wine.ID,
		SessionID:    &sessionID,
		Rating:       input.Rating,
		Comment:      input.Comment,
		TastingNotes: input.TastingNotes,
	}, "author_id = ? AND wine_id = ? AND session_id = ?", userID, wine.ID, session.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"message": "Recensionen har sparats", "review": review})
}

// ListSessionReviews returns the wine reviews written in the session.
func ListSessionReviews(c *gin.Context) {
	db := getDB(c)
	session, ok := loadSessionParam(c, db)
	if !ok {
		return
	}
	if _, err := sessionParticipant(c, db, session); err != nil && !currentRole(c).IsStaff() {
		respondError(c, err)
		return
	}

	var reviews []models.Review
	err := db.Preload("Author").Preload("Wine").
		Where("session_id = ?", session.ID).
		Order("created_at DESC").
		Find(&reviews).Error
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": publicReviews(reviews)})
}
