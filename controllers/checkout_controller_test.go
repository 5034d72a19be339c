package controllers_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/vinakademin/vinakademin-backend/models"
	"github.com/vinakademin/vinakademin-backend/services"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, in services.CheckoutInput) (*services.CheckoutSession, error) {
	args := m.Called(ctx, in)
	if s, ok := args.Get(0).(*services.CheckoutSession); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) OpenSessionURL(ctx context.Context, sessionID string) (string, bool, error) {
	args := m.Called(ctx, sessionID)
	return args.String(0), args.Bool(1), args.Error(2)
}

func TestCheckoutUnavailable(t *testing.T) {
	e := newEnv(t)
	course := e.course(499)
	_, token := e.user(models.RoleUser, "")

	w := e.do(http.MethodPost, "/api/checkout", map[string]string{"course_id": course.ID.String()}, token)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCheckoutFlow(t *testing.T) {
	e := newEnv(t)
	gw := new(mockGateway)
	services.Payments = gw

	course := e.course(499)
	free := e.course(0)
	buyer, token := e.user(models.RoleUser, "")

	w := e.do(http.MethodPost, "/api/checkout", map[string]string{"course_id": free.ID.String()}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code, "free courses are not sold")

	gw.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(in services.CheckoutInput) bool {
		return in.CourseID == course.ID &&
			in.UserID == buyer.ID &&
			in.CustomerEmail == buyer.Email &&
			in.Amount.Equal(course.Price) &&
			in.Currency == "sek" &&
			strings.HasPrefix(in.SuccessURL, "https://vinakademin.se/kurser/"+course.Slug)
	})).Return(&services.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil).Once()

	w = e.do(http.MethodPost, "/api/checkout", map[string]string{"course_id": course.ID.String()}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", body["checkout_url"])

	var order models.Order
	require.NoError(t, e.db.First(&order, "id = ?", body["order_id"]).Error)
	assert.Equal(t, models.OrderPending, order.Status)
	require.NotNil(t, order.StripeCheckoutSessionID)
	assert.Equal(t, "cs_test_1", *order.StripeCheckoutSessionID)

	gw.On("OpenSessionURL", mock.Anything, "cs_test_1").
		Return("https://checkout.stripe.com/c/pay/cs_test_1", true, nil).Once()
	w = e.do(http.MethodPost, "/api/checkout", map[string]string{"course_id": course.ID.String()}, token)
	require.Equal(t, http.StatusOK, w.Code, "an open session is reused")
	assert.Equal(t, order.ID.String(), decode(t, w)["order_id"])

	gw.On("OpenSessionURL", mock.Anything, "cs_test_1").Return("", false, nil).Once()
	gw.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(&services.CheckoutSession{ID: "cs_test_2", URL: "https://checkout.stripe.com/c/pay/cs_test_2"}, nil).Once()
	w = e.do(http.MethodPost, "/api/checkout", map[string]string{"course_id": course.ID.String()}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NoError(t, e.db.First(&order, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderCancelled, order.Status, "the stale pending order is cancelled")

	gw.AssertExpectations(t)
}

func TestCheckoutStaleOrderCancelFails(t *testing.T) {
	e := newEnv(t)
	gw := new(mockGateway)
	services.Payments = gw

	course := e.course(499)
	buyer, token := e.user(models.RoleUser, "")
	sessionID := "cs_stale"
	stale := models.Order{
		UserID:                  buyer.ID,
		CourseID:                course.ID,
		Amount:                  course.Price,
		Currency:                "sek",
		Status:                  models.OrderPending,
		StripeCheckoutSessionID: &sessionID,
	}
	require.NoError(t, e.db.Create(&stale).Error)

	require.NoError(t, e.db.Callback().Update().Before("gorm:update").Register("fail_order_updates", func(tx *gorm.DB) {
		if tx.Statement.Table == "orders" {
			_ = tx.AddError(errors.New("database is read only"))
		}
	}))
	t.Cleanup(func() { _ = e.db.Callback().Update().Remove("fail_order_updates") })

	gw.On("OpenSessionURL", mock.Anything, sessionID).Return("", false, nil).Once()
	w := e.do(http.MethodPost, "/api/checkout", map[string]string{"course_id": course.ID.String()}, token)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var count int64
	require.NoError(t, e.db.Model(&models.Order{}).Where("user_id = ?", buyer.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count, "no second order while the stale one is still pending")
	gw.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
	gw.AssertExpectations(t)
}

func TestCheckoutAlreadyOwnedAndGatewayFailure(t *testing.T) {
	e := newEnv(t)
	gw := new(mockGateway)
	services.Payments = gw

	course := e.course(499)
	owner, ownerToken := e.user(models.RoleUser, "")
	_, token := e.user(models.RoleUser, "")
	_, err := services.UpsertEnrollment(e.db, owner.ID, course.ID, models.SourceAdmin, nil)
	require.NoError(t, err)

	w := e.do(http.MethodPost, "/api/checkout", map[string]string{"course_id": course.ID.String()}, ownerToken)
	assert.Equal(t, http.StatusConflict, w.Code)

	gw.On("CreateCheckoutSession", mock.Anything, mock.Anything).Return(nil, errors.New("stripe down")).Once()
	w = e.do(http.MethodPost, "/api/checkout", map[string]string{"course_id": course.ID.String()}, token)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var orders []models.Order
	require.NoError(t, e.db.Where("course_id = ?", course.ID).Find(&orders).Error)
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderCancelled, orders[0].Status)

	gw.AssertExpectations(t)
}

func TestAdminOrders(t *testing.T) {
	e := newEnv(t)
	course := e.course(499)
	buyer, buyerToken := e.user(models.RoleUser, "")
	_, adminToken := e.user(models.RoleAdmin, "")
	_, instructorToken := e.user(models.RoleInstructor, "")

	for _, status := range []models.OrderStatus{models.OrderPaid, models.OrderPending} {
		require.NoError(t, e.db.Create(&models.Order{
			UserID: buyer.ID, CourseID: course.ID, Amount: course.Price, Currency: "sek", Status: status,
		}).Error)
	}

	w := e.do(http.MethodGet, "/api/me/orders", nil, buyerToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["orders"], 2)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/api/admin/orders", nil, instructorToken).Code)

	w = e.do(http.MethodGet, "/api/admin/orders?status=paid", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rows := decode(t, w)["orders"].([]interface{})
	require.Len(t, rows, 1)
	assert.Equal(t, buyer.Email, rows[0].(map[string]interface{})["customer_email"])

	w = e.do(http.MethodGet, "/api/admin/orders/export", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer f.Close()
	rowsX, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	assert.Len(t, rowsX, 3, "header plus one row per order")
}
