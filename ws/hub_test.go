package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vinakademin/vinakademin-backend/config"
	"github.com/vinakademin/vinakademin-backend/models"
	"github.com/vinakademin/vinakademin-backend/services"
	"github.com/vinakademin/vinakademin-backend/utils"
)

// addClient puts a client in a room without starting its pumps.
func addClient(h *Hub, sessionID string) *Client {
	c := &Client{Send: make(chan []byte, 1), ParticipantID: uuid.NewString()}
	h.Mutex.Lock()
	if h.Rooms[sessionID] == nil {
		h.Rooms[sessionID] = make(map[*Client]bool)
	}
	h.Rooms[sessionID][c] = true
	h.Mutex.Unlock()
	return c
}

func TestHubRooms(t *testing.T) {
	h := NewHub()
	a := addClient(h, "s1")
	b := addClient(h, "s1")
	other := addClient(h, "s2")

	assert.Equal(t, Stats{Rooms: 2, Clients: 3}, h.GetStats())

	h.Broadcast("s1", []byte("hej"))
	assert.Equal(t, "hej", string(<-a.Send))
	assert.Equal(t, "hej", string(<-b.Send))
	assert.Empty(t, other.Send)

	// a full buffer drops the message instead of blocking
	h.Broadcast("s1", []byte("1"))
	h.Broadcast("s1", []byte("2"))
	assert.Equal(t, "1", string(<-a.Send))

	h.Unregister("s1", a)
	_, open := <-a.Send
	assert.False(t, open)
	h.Unregister("s1", a)

	h.SendTo("s1", a, []byte("x"))
	<-b.Send
	h.SendTo("s1", b, []byte("direct"))
	assert.Equal(t, "direct", string(<-b.Send))

	h.CloseRoom("s1")
	_, open = <-b.Send
	assert.False(t, open)
	assert.Equal(t, Stats{Rooms: 1, Clients: 1}, h.GetStats())
}

func TestJSONEvent(t *testing.T) {
	raw, err := jsonEvent(EventSessionNavigated, "s1", map[string]string{"lesson_id": "l1"})
	require.NoError(t, err)

	var ev SessionEvent
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, EventSessionNavigated, ev.Type)
	assert.Equal(t, "s1", ev.SessionID)
	assert.False(t, ev.SentAt.IsZero())
}

func TestCheckOrigin(t *testing.T) {
	prev := config.AppConfig
	t.Cleanup(func() { config.AppConfig = prev })
	config.AppConfig = &config.Config{Env: "production", FrontendURL: "https://vinakademin.se"}

	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	assert.True(t, checkOrigin(req("")))
	assert.True(t, checkOrigin(req("https://vinakademin.se")))
	assert.False(t, checkOrigin(req("https://evil.example")))

	config.AppConfig.Env = "development"
	assert.True(t, checkOrigin(req("http://localhost:5173")))
}

func TestHandleSessionWebSocket(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open("file::memory:"), config.GormConfig(gormlogger.Silent))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, config.Migrate(db))

	prevDB, prevCfg := config.DB, config.AppConfig
	config.DB = db
	config.AppConfig = &config.Config{JWT: config.JWTConfig{Secret: "test-secret", Expiration: time.Hour}}
	t.Cleanup(func() {
		config.DB, config.AppConfig = prevDB, prevCfg
		_ = sqlDB.Close()
	})

	host := &models.User{FullName: "Värd", Email: "vard@example.se", Role: models.RoleUser, Active: true}
	require.NoError(t, db.Create(host).Error)
	course := &models.Course{Title: "Rhône", Slug: "rhone", IsFree: true, Status: models.CoursePublished}
	require.NoError(t, db.Create(course).Error)
	session, _, err := services.CreateSession(db, host, course, services.SessionOptions{}, time.Now().UTC())
	require.NoError(t, err)
	_, guest, err := services.JoinSession(db, session.JoinCode, nil, "Kalle", time.Now().UTC())
	require.NoError(t, err)

	r := gin.New()
	r.GET("/ws/sessions/:id", HandleSessionWebSocket)
	srv := httptest.NewServer(r)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/"

	t.Run("rejects a missing token", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(base+session.ID.String(), nil)
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects a token for another session", func(t *testing.T) {
		token, err := utils.GenerateParticipantToken(uuid.NewString(), guest.ID.String(), "", session.ExpiresAt)
		require.NoError(t, err)
		_, resp, err := websocket.DefaultDialer.Dial(base+session.ID.String()+"?token="+token, nil)
		require.Error(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	token, err := utils.GenerateParticipantToken(session.ID.String(), guest.ID.String(), "", session.ExpiresAt)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(base+session.ID.String()+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()

	readEvent := func() SessionEvent {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev SessionEvent
		require.NoError(t, conn.ReadJSON(&ev))
		return ev
	}

	assert.Equal(t, EventConnected, readEvent().Type)

	BroadcastSessionEvent(session.ID.String(), EventSessionNavigated, map[string]string{"lesson_id": "l1"})
	ev := readEvent()
	assert.Equal(t, EventSessionNavigated, ev.Type)
	assert.Equal(t, session.ID.String(), ev.SessionID)
}
