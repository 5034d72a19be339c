package services

import (
	"github.com/posthog/posthog-go"
	"go.uber.org/zap"
)

// Tracked product events.
const (
	EventUserSignedUp    = "user_signed_up"
	EventCheckoutStarted = "checkout_started"
	EventOrderPaid       = "order_paid"
	EventSessionCreated  = "session_created"
	EventSessionJoined   = "session_joined"
)

// Tracker captures product analytics. A nil Tracker drops every event.
type Tracker struct {
	client posthog.Client
	logger *zap.Logger
}

func NewTracker(apiKey, host string, logger *zap.Logger) (*Tracker, error) {
	client, err := posthog.NewWithConfig(apiKey, posthog.Config{Endpoint: host})
	if err != nil {
		return nil, err
	}
	return &Tracker{client: client, logger: logger}, nil
}

// Analytics is set at startup when POSTHOG_API_KEY is present.
var Analytics *Tracker

// Capture enqueues an event. posthog-go batches and sends in the background.
func (t *Tracker) Capture(distinctID, event string, props map[string]interface{}) {
	if t == nil || distinctID == "" {
		return
	}
	properties := posthog.NewProperties()
	for k, v := range props {
		properties.Set(k, v)
	}
	err := t.client.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      event,
		Properties: properties,
	})
	if err != nil {
		t.logger.Warn("Analytics enqueue failed", zap.String("event", event), zap.Error(err))
	}
}

// Close flushes queued events.
func (t *Tracker) Close() error {
	if t == nil {
		return nil
	}
	return t.client.Close()
}
