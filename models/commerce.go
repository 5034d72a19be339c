package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
	EnrollmentRefunded  EnrollmentStatus = "refunded"
)

type EnrollmentSource string

const (
	SourceFree         EnrollmentSource = "free"
	SourceOrder        EnrollmentSource = "order"
	SourceSubscription EnrollmentSource = "subscription"
	SourceAdmin        EnrollmentSource = "admin"
)

type Enrollment struct {
	Base
	UserID      uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_enrollment_user_course" json:"user_id"`
	CourseID    uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_enrollment_user_course" json:"course_id"`
	Status      EnrollmentStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	Source      EnrollmentSource `gorm:"type:varchar(20);not null" json:"source"`
	OrderID     *uuid.UUID       `gorm:"type:uuid" json:"order_id,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`

	Course Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
	OrderRefunded  OrderStatus = "refunded"
)

type Order struct {
	Base
	UserID                  uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	CourseID                uuid.UUID       `gorm:"type:uuid;not null;index" json:"course_id"`
	Amount                  decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	Currency                string          `gorm:"size:3;not null;default:'sek'" json:"currency"`
	Status                  OrderStatus     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	StripeCheckoutSessionID *string         `gorm:"size:255;uniqueIndex" json:"-"`
	StripePaymentIntentID   *string         `gorm:"size:255;index" json:"-"`
	PaidAt                  *time.Time      `json:"paid_at,omitempty"`

	User   User   `gorm:"foreignKey:UserID" json:"-"`
	Course Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`
}

type Subscription struct {
	Base
	UserID               uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	StripeSubscriptionID string     `gorm:"size:255;uniqueIndex;not null" json:"-"`
	StripeCustomerID     string     `gorm:"size:255;index" json:"-"`
	Status               string     `gorm:"size:30;not null" json:"status"` // Stripe status: active | trialing | past_due | canceled ...
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `json:"cancel_at_period_end"`
}

// GrantsAccess reports whether the subscription currently unlocks paid courses.
func (s Subscription) GrantsAccess(now time.Time) bool {
	if s.Status != "active" && s.Status != "trialing" {
		return false
	}
	return s.CurrentPeriodEnd == nil || s.CurrentPeriodEnd.After(now)
}

// WebhookEvent records processed provider events.
type WebhookEvent struct {
	Base
	Provider    string    `gorm:"size:20;not null;uniqueIndex:idx_webhook_provider_event" json:"provider"`
	EventID     string    `gorm:"size:255;not null;uniqueIndex:idx_webhook_provider_event" json:"event_id"`
	Type        string    `gorm:"size:100" json:"type"`
	ProcessedAt time.Time `json:"processed_at"`
}
