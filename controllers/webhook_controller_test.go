package controllers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/vinakademin/vinakademin-backend/models"
	"github.com/vinakademin/vinakademin-backend/services"
)

func (e *env) webhook(path string, payload []byte, header, value string) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func stripePayload(t *testing.T, eventID, eventType string, object map[string]interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"id":          eventID,
		"object":      "event",
		"type":        eventType,
		"api_version": "2024-06-20",
		"created":     time.Now().Unix(),
		"data":        map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return raw
}

func stripeSignature(payload []byte, secret string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret}).Header
}

func TestStripeWebhookPaysOrder(t *testing.T) {
	e := newEnv(t)
	course := e.course(499)
	buyer, token := e.user(models.RoleUser, "")

	sessionID := "cs_test_" + uuid.NewString()[:8]
	order := models.Order{
		UserID:                  buyer.ID,
		CourseID:                course.ID,
		Amount:                  course.Price,
		Currency:                "sek",
		Status:                  models.OrderPending,
		StripeCheckoutSessionID: &sessionID,
	}
	require.NoError(t, e.db.Create(&order).Error)

	payload := stripePayload(t, "evt_paid_1", "checkout.session.completed", map[string]interface{}{
		"id":             sessionID,
		"object":         "checkout.session",
		"payment_status": "paid",
		"payment_intent": "pi_123",
		"metadata":       map[string]string{"order_id": order.ID.String()},
	})

	w := e.webhook("/api/webhooks/stripe", payload, "Stripe-Signature", stripeSignature(payload, stripeSecret))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["received"])
	assert.Equal(t, "evt_paid_1", body["event_id"])
	assert.Equal(t, "checkout processed", body["message"])

	var paid models.Order
	require.NoError(t, e.db.First(&paid, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderPaid, paid.Status)
	require.NotNil(t, paid.StripePaymentIntentID)
	assert.Equal(t, "pi_123", *paid.StripePaymentIntentID)

	lesson := lessonNamed(t, course, "Fördjupning")
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/lessons/"+lesson.ID.String(), nil, token).Code)

	w = e.webhook("/api/webhooks/stripe", payload, "Stripe-Signature", stripeSignature(payload, stripeSecret))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["duplicate"])

	var events int64
	e.db.Model(&models.WebhookEvent{}).Where("event_id = ?", "evt_paid_1").Count(&events)
	assert.EqualValues(t, 1, events)
}

func TestStripeWebhookRejectsBadSignatures(t *testing.T) {
	e := newEnv(t)
	payload := stripePayload(t, "evt_bad", "checkout.session.completed", map[string]interface{}{"id": "cs_x"})

	w := e.webhook("/api/webhooks/stripe", payload, "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.webhook("/api/webhooks/stripe", payload, "Stripe-Signature", stripeSignature(payload, "whsec_other"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	tampered := append([]byte(nil), payload...)
	header := stripeSignature(payload, stripeSecret)
	tampered = bytes.Replace(tampered, []byte("cs_x"), []byte("cs_y"), 1)
	w = e.webhook("/api/webhooks/stripe", tampered, "Stripe-Signature", header)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	big := make([]byte, 70000)
	w = e.webhook("/api/webhooks/stripe", big, "Stripe-Signature", "t=1,v1=x")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestStripeWebhookUnhandledType(t *testing.T) {
	e := newEnv(t)
	payload := stripePayload(t, "evt_other", "customer.created", map[string]interface{}{"id": "cus_1", "object": "customer"})

	w := e.webhook("/api/webhooks/stripe", payload, "Stripe-Signature", stripeSignature(payload, stripeSecret))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "event type not handled", decode(t, w)["message"])
}

func TestMuxWebhook(t *testing.T) {
	e := newEnv(t)
	course := e.course(0)
	lesson := lessonNamed(t, course, "Introduktion")
	uploadID := "upl_" + uuid.NewString()[:8]
	require.NoError(t, e.db.Model(&models.Lesson{}).Where("id = ?", lesson.ID).
		Updates(map[string]interface{}{"mux_upload_id": uploadID, "video_status": models.VideoWaiting}).Error)

	send := func(body []byte, secret string) *httptest.ResponseRecorder {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		return e.webhook("/api/webhooks/mux", body, "Mux-Signature", "t="+ts+",v1="+services.SignMuxPayload(ts, body, secret))
	}

	created, err := json.Marshal(map[string]interface{}{
		"id":   "mux_evt_1",
		"type": "video.upload.asset_created",
		"data": map[string]interface{}{"id": uploadID, "asset_id": "asset_1"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, send(created, "wrong").Code)

	w := send(created, muxSecret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	ready, err := json.Marshal(map[string]interface{}{
		"id":   "mux_evt_2",
		"type": "video.asset.ready",
		"data": map[string]interface{}{
			"id":           "asset_1",
			"upload_id":    uploadID,
			"passthrough":  lesson.ID.String(),
			"duration":     312.4,
			"playback_ids": []map[string]string{{"id": "play_1", "policy": "public"}},
		},
	})
	require.NoError(t, err)
	w = send(ready, muxSecret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got models.Lesson
	require.NoError(t, e.db.First(&got, "id = ?", lesson.ID).Error)
	assert.Equal(t, models.VideoReady, got.VideoStatus)
	require.NotNil(t, got.MuxPlaybackID)
	assert.Equal(t, "play_1", *got.MuxPlaybackID)

	w = send(ready, muxSecret)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["duplicate"])

	w = send([]byte(`{"type":"video.asset.ready"}`), muxSecret)
	assert.Equal(t, http.StatusBadRequest, w.Code, "events need an id")
}
