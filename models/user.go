package models

import (
	"time"

	"github.com/google/uuid"
)

type UserRole string

const (
	RoleAdmin      UserRole = "admin"      // Administratör
	RoleInstructor UserRole = "instructor" // Kursledare, hanterar innehåll
	RoleUser       UserRole = "user"       // Vanlig kund
)

// IsStaff reports whether the role may manage content.
func (r UserRole) IsStaff() bool {
	return r == RoleAdmin || r == RoleInstructor
}

type User struct {
	Base
	FullName         string   `gorm:"size:150;not null" json:"full_name"`
	Email            string   `gorm:"size:150;uniqueIndex;not null" json:"email"`
	Password         string   `gorm:"type:text" json:"-"`
	Role             UserRole `gorm:"type:varchar(20);not null;default:'user'" json:"role"`
	Active           bool     `gorm:"not null;default:true" json:"active"`
	StripeCustomerID *string  `gorm:"size:100;uniqueIndex" json:"-"`
}

type PasswordReset struct {
	Base
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Token     string    `gorm:"size:128;uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	Used      bool      `gorm:"default:false" json:"used"`
}
