package ws

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vinakademin/vinakademin-backend/config"
	"github.com/vinakademin/vinakademin-backend/logger"
	"github.com/vinakademin/vinakademin-backend/services"
	"github.com/vinakademin/vinakademin-backend/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// checkOrigin accepts the configured frontend and non-browser clients.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || config.AppConfig == nil || !config.AppConfig.IsProduction() {
		return true
	}
	want, err := url.Parse(config.AppConfig.FrontendURL)
	if err != nil {
		return false
	}
	got, err := url.Parse(origin)
	return err == nil && got.Scheme == want.Scheme && got.Host == want.Host
}

// HandleSessionWebSocket joins the caller to a session room. The token query
// parameter is either a participant token for this session or a user token
// of someone who has joined it.
func HandleSessionWebSocket(c *gin.Context) {
	log := logger.FromGin(c)

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Ogiltigt sessions-ID"})
		return
	}
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token saknas"})
		return
	}
	claims, err := utils.VerifyToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Ogiltig eller utgången token"})
		return
	}

	session, err := services.LoadSession(config.DB, sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sessionen hittades inte"})
		return
	}
	if err := services.EnsureOpen(config.DB, session, time.Now().UTC()); err != nil {
		c.JSON(http.StatusGone, gin.H{"error": "Sessionen är avslutad"})
		return
	}

	participantID, err := resolveParticipant(claims, sessionID)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Du deltar inte i den här sessionen"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := H.Register(sessionID.String(), participantID.String(), conn)
	log.Info("Session websocket connected",
		zap.String("session_id", sessionID.String()),
		zap.String("participant_id", participantID.String()))

	hello, _ := jsonEvent(EventConnected, sessionID.String(), gin.H{"participant_id": participantID})
	H.SendTo(sessionID.String(), client, hello)
}

func resolveParticipant(claims *utils.Claims, sessionID uuid.UUID) (uuid.UUID, error) {
	if claims.IsParticipantToken() {
		if claims.SessionID != sessionID.String() {
			return uuid.Nil, services.ErrNotParticipant
		}
		pid, err := uuid.Parse(claims.ParticipantID)
		if err != nil {
			return uuid.Nil, err
		}
		p, err := services.FindParticipant(config.DB, sessionID, pid)
		if err != nil {
			return uuid.Nil, err
		}
		if p.LeftAt != nil {
			return uuid.Nil, services.ErrNotParticipant
		}
		return p.ID, nil
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, errors.New("token has no user")
	}
	p, err := services.FindUserParticipant(config.DB, sessionID, userID)
	if err != nil {
		return uuid.Nil, err
	}
	if p.LeftAt != nil {
		return uuid.Nil, services.ErrNotParticipant
	}
	return p.ID, nil
}
