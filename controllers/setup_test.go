package controllers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vinakademin/vinakademin-backend/config"
	"github.com/vinakademin/vinakademin-backend/controllers"
	"github.com/vinakademin/vinakademin-backend/models"
	"github.com/vinakademin/vinakademin-backend/routes"
	"github.com/vinakademin/vinakademin-backend/services"
	"github.com/vinakademin/vinakademin-backend/utils"
)

const (
	stripeSecret = "whsec_test_secret"
	muxSecret    = "mux_test_secret"
)

type env struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, controllers.RegisterValidators())

	db, err := gorm.Open(sqlite.Open("file::memory:"), config.GormConfig(gormlogger.Silent))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, config.Migrate(db))

	prevDB, prevCfg := config.DB, config.AppConfig
	prevPayments, prevStore := services.Payments, services.Idempotency
	config.DB = db
	config.AppConfig = &config.Config{
		Env:         "test",
		FrontendURL: "https://vinakademin.se",
		JWT:         config.JWTConfig{Secret: "test-secret", Expiration: time.Hour},
		Stripe:      config.StripeConfig{WebhookSecret: stripeSecret, Currency: "sek"},
		Mux:         config.MuxConfig{WebhookSecret: muxSecret},
	}
	services.Payments = nil
	services.Idempotency = services.NewMemoryIdempotencyStore()
	t.Cleanup(func() {
		config.DB, config.AppConfig = prevDB, prevCfg
		services.Payments, services.Idempotency = prevPayments, prevStore
		_ = sqlDB.Close()
	})

	return &env{t: t, db: db, router: routes.SetupRouter(gin.New(), db)}
}

func (e *env) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	e.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		r = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(e.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (e *env) user(role models.UserRole, password string) (*models.User, string) {
	e.t.Helper()
	u := &models.User{
		FullName: "Test " + string(role),
		Email:    uuid.NewString()[:8] + "@example.se",
		Role:     role,
		Active:   true,
	}
	if password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(e.t, err)
		u.Password = string(hashed)
	}
	require.NoError(e.t, e.db.Create(u).Error)
	token, err := utils.GenerateToken(u.ID.String(), string(u.Role))
	require.NoError(e.t, err)
	return u, token
}

// course creates a published course with one module: a free lesson, a paid
// lesson and a quiz with one question.
func (e *env) course(price int64) *models.Course {
	e.t.Helper()
	c := &models.Course{
		Title:  "Vinprovning " + uuid.NewString()[:6],
		Price:  decimal.NewFromInt(price),
		IsFree: price == 0,
		Status: models.CoursePublished,
	}
	c.Slug = "kurs-" + uuid.NewString()[:8]
	require.NoError(e.t, e.db.Create(c).Error)

	m := &models.Module{CourseID: c.ID, Title: "Modul 1", Order: 1}
	require.NoError(e.t, e.db.Create(m).Error)
	lessons := []models.Lesson{
		{ModuleID: m.ID, Title: "Introduktion", Order: 1, IsFree: true, Body: "Välkommen"},
		{ModuleID: m.ID, Title: "Fördjupning", Order: 2, Body: "Betalt innehåll"},
	}
	require.NoError(e.t, e.db.Create(&lessons).Error)
	quiz := &models.Quiz{ModuleID: m.ID, Title: "Quiz", Order: 3, PassPercent: 100}
	require.NoError(e.t, e.db.Create(quiz).Error)
	q := &models.Question{QuizID: quiz.ID, Text: "Vilken druva?"}
	require.NoError(e.t, e.db.Create(q).Error)
	opts := []models.QuestionOption{
		{QuestionID: q.ID, Text: "Nebbiolo", IsCorrect: true},
		{QuestionID: q.ID, Text: "Merlot"},
	}
	require.NoError(e.t, e.db.Create(&opts).Error)

	full, err := services.LoadCourseTree(e.db, "id = ?", c.ID)
	require.NoError(e.t, err)
	return full
}
