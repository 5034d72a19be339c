package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vinakademin/vinakademin-backend/config"
	"github.com/vinakademin/vinakademin-backend/logger"
	"github.com/vinakademin/vinakademin-backend/models"
	"github.com/vinakademin/vinakademin-backend/services"
)

// Webhook bodies from Stripe and Mux are small.
const maxWebhookPayloadSize = 65536

type WebhookResponse struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Message   string `json:"message,omitempty"`
}

func readWebhookBody(c *gin.Context) ([]byte, bool) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayloadSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, WebhookResponse{Message: "Failed to read request body"})
		return nil, false
	}
	if len(payload) > maxWebhookPayloadSize {
		c.JSON(http.StatusRequestEntityTooLarge, WebhookResponse{Message: "Payload too large"})
		return nil, false
	}
	return payload, true
}

// runGuarded processes one event at most once. Processing failures are
// answered with 200 so the provider does not retry errors a retry cannot fix;
// the claim is released so a manual resend is processed again.
func runGuarded(c *gin.Context, provider, eventID, eventType string, process func(ctx context.Context) (string, error)) {
	log := logger.FromGin(c).With(
		zap.String("provider", provider),
		zap.String("event_id", eventID),
		zap.String("event_type", eventType),
	)
	ctx := c.Request.Context()
	resp := WebhookResponse{Received: true, EventID: eventID, EventType: eventType}

	guard := services.NewWebhookGuard(getDB(c), services.Idempotency, provider, eventID)
	if err := guard.Begin(ctx); err != nil {
		if errors.Is(err, services.ErrDuplicateEvent) {
			log.Info("Duplicate webhook event skipped")
			resp.Duplicate = true
			resp.Message = "Event already processed"
			c.JSON(http.StatusOK, resp)
			return
		}
		log.Error("Webhook idempotency check failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, WebhookResponse{Message: "Temporary failure"})
		return
	}

	message, err := process(ctx)
	if err != nil {
		guard.Abort(ctx)
		log.Error("Webhook processing failed", zap.Error(err))
		resp.Message = "Webhook received but processing encountered an issue"
		c.JSON(http.StatusOK, resp)
		return
	}

	if err := guard.Finish(eventType); err != nil {
		log.Error("Failed to record webhook event", zap.Error(err))
	}
	resp.Message = message
	c.JSON(http.StatusOK, resp)
}

// StripeWebhook receives Stripe events. It needs no authentication; the
// Stripe-Signature header is verified instead.
func StripeWebhook(c *gin.Context) {
	payload, ok := readWebhookBody(c)
	if !ok {
		return
	}
	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		c.JSON(http.StatusBadRequest, WebhookResponse{Message: "Missing Stripe-Signature header"})
		return
	}

	event, err := services.ConstructStripeEvent(payload, signature, config.AppConfig.Stripe.WebhookSecret)
	if err != nil {
		logger.FromGin(c).Warn("Stripe signature verification failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, WebhookResponse{Message: "Webhook signature verification failed"})
		return
	}

	runGuarded(c, "stripe", event.ID, string(event.Type), func(ctx context.Context) (string, error) {
		outcome, err := services.ProcessStripeEvent(ctx, getDB(c), event, logger.FromGin(c))
		if err != nil {
			return "", err
		}
		if outcome.PaidOrder != nil {
			announcePaidOrder(getDB(c), outcome.PaidOrder, logger.FromGin(c))
		}
		return outcome.Message, nil
	})
}

// announcePaidOrder sends the receipt mail and the analytics event without
// holding up the webhook response.
func announcePaidOrder(db *gorm.DB, order *models.Order, log *zap.Logger) {
	var user models.User
	var course models.Course
	if err := db.First(&user, "id = ?", order.UserID).Error; err != nil {
		log.Warn("Paid order has no user", zap.String("order_id", order.ID.String()), zap.Error(err))
		return
	}
	if err := db.First(&course, "id = ?", order.CourseID).Error; err != nil {
		log.Warn("Paid order has no course", zap.String("order_id", order.ID.String()), zap.Error(err))
		return
	}

	services.Analytics.Capture(user.ID.String(), services.EventOrderPaid, map[string]interface{}{
		"order_id":  order.ID.String(),
		"course_id": course.ID.String(),
		"amount":    order.Amount.String(),
		"currency":  order.Currency,
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := services.Email.SendOrderConfirmation(ctx, user.FullName, user.Email, course.Title, course.Slug); err != nil {
			log.Error("Failed to send order confirmation", zap.String("order_id", order.ID.String()), zap.Error(err))
		}
	}()
}

// MuxWebhook receives Mux video events signed with Mux-Signature.
func MuxWebhook(c *gin.Context) {
	payload, ok := readWebhookBody(c)
	if !ok {
		return
	}

	err := services.VerifyMuxSignature(c.GetHeader("Mux-Signature"), payload, config.AppConfig.Mux.WebhookSecret, time.Now())
	if err != nil {
		logger.FromGin(c).Warn("Mux signature verification failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, WebhookResponse{Message: "Webhook signature verification failed"})
		return
	}

	var event services.MuxEvent
	if err := json.Unmarshal(payload, &event); err != nil || event.ID == "" {
		c.JSON(http.StatusBadRequest, WebhookResponse{Message: "Invalid event payload"})
		return
	}

	runGuarded(c, "mux", event.ID, event.Type, func(ctx context.Context) (string, error) {
		if err := services.ProcessMuxEvent(ctx, getDB(c), event, logger.FromGin(c)); err != nil {
			return "", err
		}
		return "event processed", nil
	})
}
