package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	checkoutsession "github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vinakademin/vinakademin-backend/models"
)

// CheckoutInput describes one course purchase.
type CheckoutInput struct {
	OrderID       uuid.UUID
	UserID        uuid.UUID
	CourseID      uuid.UUID
	CourseTitle   string
	CustomerEmail string
	Amount        decimal.Decimal
	Currency      string
	SuccessURL    string
	CancelURL     string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// CheckoutGateway creates hosted checkout pages.
type CheckoutGateway interface {
	CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutSession, error)
	// OpenSessionURL returns the URL of a checkout session that can still be paid.
	OpenSessionURL(ctx context.Context, sessionID string) (string, bool, error)
}

// Payments is set at startup. It is nil when Stripe is not configured.
var Payments CheckoutGateway

// StripeGateway talks to Stripe Checkout.
type StripeGateway struct {
	logger *zap.Logger
}

func NewStripeGateway(secretKey string, logger *zap.Logger) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{logger: logger}
}

// ToMinorUnits converts an amount in kronor to öre.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutSession, error) {
	metadata := map[string]string{
		"order_id":  in.OrderID.String(),
		"user_id":   in.UserID.String(),
		"course_id": in.CourseID.String(),
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(in.SuccessURL),
		CancelURL:         stripe.String(in.CancelURL),
		ClientReferenceID: stripe.String(in.OrderID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(in.Currency),
				UnitAmount: stripe.Int64(ToMinorUnits(in.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(in.CourseTitle),
				},
			},
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
		Metadata: metadata,
	}
	if in.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}
	params.Context = ctx

	s, err := checkoutsession.New(params)
	if err != nil {
		g.logger.Error("Failed to create Stripe checkout session",
			zap.String("order_id", in.OrderID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) OpenSessionURL(ctx context.Context, sessionID string) (string, bool, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := checkoutsession.Get(sessionID, params)
	if err != nil {
		return "", false, fmt.Errorf("stripe: get checkout session: %w", err)
	}
	return s.URL, s.Status == stripe.CheckoutSessionStatusOpen, nil
}

// ConstructStripeEvent verifies the Stripe-Signature header.
func ConstructStripeEvent(payload []byte, signature, secret string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

// StripeOutcome reports side effects the caller may want to announce.
type StripeOutcome struct {
	PaidOrder *models.Order
	Message   string
}

// ProcessStripeEvent applies one verified event to the database.
// Events that refer to unknown orders or customers are acknowledged and skipped.
func ProcessStripeEvent(ctx context.Context, db *gorm.DB, event stripe.Event, logger *zap.Logger) (*StripeOutcome, error) {
	logger = logger.With(zap.String("event_id", event.ID), zap.String("event_type", string(event.Type)))
	db = db.WithContext(ctx)

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("unmarshal checkout session: %w", err)
		}
		order, err := handleCheckoutCompleted(db, &cs, logger)
		if err != nil {
			return nil, err
		}
		return &StripeOutcome{PaidOrder: order, Message: "checkout processed"}, nil

	case "checkout.session.expired":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("unmarshal checkout session: %w", err)
		}
		res := db.Model(&models.Order{}).
			Where("stripe_checkout_session_id = ? AND status = ?", cs.ID, models.OrderPending).
			Update("status", models.OrderCancelled)
		if res.Error != nil {
			return nil, res.Error
		}
		logger.Info("Checkout session expired", zap.Int64("orders_cancelled", res.RowsAffected))
		return &StripeOutcome{Message: "checkout expired"}, nil

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("unmarshal charge: %w", err)
		}
		if err := handleChargeRefunded(db, &ch, logger); err != nil {
			return nil, err
		}
		return &StripeOutcome{Message: "refund processed"}, nil

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("unmarshal subscription: %w", err)
		}
		if err := upsertSubscription(db, &sub, logger); err != nil {
			return nil, err
		}
		return &StripeOutcome{Message: "subscription processed"}, nil
	}

	logger.Debug("Unhandled Stripe event type")
	return &StripeOutcome{Message: "event type not handled"}, nil
}

func handleCheckoutCompleted(db *gorm.DB, cs *stripe.CheckoutSession, logger *zap.Logger) (*models.Order, error) {
	if cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid &&
		cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
		logger.Info("Checkout completed without payment yet", zap.String("payment_status", string(cs.PaymentStatus)))
		return nil, nil
	}

	var order models.Order
	err := db.Where("stripe_checkout_session_id = ?", cs.ID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		id, perr := uuid.Parse(cs.Metadata["order_id"])
		if perr != nil {
			logger.Warn("Checkout session has no known order", zap.String("session_id", cs.ID))
			return nil, nil
		}
		err = db.First(&order, "id = ?", id).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Warn("Order not found for checkout session", zap.String("session_id", cs.ID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderRefunded {
		logger.Warn("Ignoring completion for refunded order", zap.String("order_id", order.ID.String()))
		return nil, nil
	}

	var paymentIntentID *string
	if cs.PaymentIntent != nil && cs.PaymentIntent.ID != "" {
		paymentIntentID = &cs.PaymentIntent.ID
	}

	newlyPaid := false
	err = db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status IN ?", order.ID, []models.OrderStatus{models.OrderPending, models.OrderCancelled}).
			Updates(map[string]interface{}{
				"status":                     models.OrderPaid,
				"paid_at":                    now,
				"stripe_payment_intent_id":   paymentIntentID,
				"stripe_checkout_session_id": cs.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		newlyPaid = res.RowsAffected > 0
		if newlyPaid {
			order.Status = models.OrderPaid
			order.PaidAt = &now
			order.StripePaymentIntentID = paymentIntentID
		}
		orderID := order.ID
		_, err := UpsertEnrollment(tx, order.UserID, order.CourseID, models.SourceOrder, &orderID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("mark order paid: %w", err)
	}

	logger.Info("Order paid",
		zap.String("order_id", order.ID.String()),
		zap.Bool("newly_paid", newlyPaid))
	if !newlyPaid {
		return nil, nil
	}
	return &order, nil
}

func handleChargeRefunded(db *gorm.DB, ch *stripe.Charge, logger *zap.Logger) error {
	if ch.PaymentIntent == nil || ch.PaymentIntent.ID == "" {
		logger.Warn("Refunded charge has no payment intent", zap.String("charge_id", ch.ID))
		return nil
	}
	if !ch.Refunded {
		logger.Info("Partial refund, access kept", zap.String("charge_id", ch.ID))
		return nil
	}

	var order models.Order
	err := db.Where("stripe_payment_intent_id = ?", ch.PaymentIntent.ID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Warn("Order not found for refunded charge", zap.String("payment_intent_id", ch.PaymentIntent.ID))
		return nil
	}
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Order{}).
			Where("id = ? AND status <> ?", order.ID, models.OrderRefunded).
			Update("status", models.OrderRefunded).Error; err != nil {
			return err
		}
		return tx.Model(&models.Enrollment{}).
			Where("order_id = ? AND status = ?", order.ID, models.EnrollmentActive).
			Update("status", models.EnrollmentRefunded).Error
	})
}

func upsertSubscription(db *gorm.DB, sub *stripe.Subscription, logger *zap.Logger) error {
	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}

	var user models.User
	err := gorm.ErrRecordNotFound
	if customerID != "" {
		err = db.Where("stripe_customer_id = ?", customerID).First(&user).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if id, perr := uuid.Parse(sub.Metadata["user_id"]); perr == nil {
			err = db.First(&user, "id = ?", id).Error
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Warn("User not found for subscription",
			zap.String("subscription_id", sub.ID),
			zap.String("customer_id", customerID))
		return nil
	}
	if err != nil {
		return err
	}

	var periodEnd *time.Time
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		periodEnd = &t
	}

	var row models.Subscription
	err = db.Where("stripe_subscription_id = ?", sub.ID).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = models.Subscription{StripeSubscriptionID: sub.ID}
	case err != nil:
		return err
	}
	row.UserID = user.ID
	row.StripeCustomerID = customerID
	row.Status = string(sub.Status)
	row.CurrentPeriodEnd = periodEnd
	row.CancelAtPeriodEnd = sub.CancelAtPeriodEnd

	if err := db.Save(&row).Error; err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	logger.Info("Subscription synced",
		zap.String("subscription_id", sub.ID),
		zap.String("status", row.Status))
	return nil
}
