package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionEnded   SessionStatus = "ended"
	SessionExpired SessionStatus = "expired"
)

// CourseSession lets several people follow one course together.
type CourseSession struct {
	Base
	CourseID        uuid.UUID     `gorm:"type:uuid;not null;index" json:"course_id"`
	HostID          uuid.UUID     `gorm:"type:uuid;not null;index" json:"host_id"`
	Name            string        `gorm:"size:150" json:"name"`
	JoinCode        string        `gorm:"size:12;not null;uniqueIndex" json:"join_code"`
	Status          SessionStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	CurrentLessonID *uuid.UUID    `gorm:"type:uuid" json:"current_lesson_id,omitempty"`
	CurrentQuizID   *uuid.UUID    `gorm:"type:uuid" json:"current_quiz_id,omitempty"`
	MaxParticipants int           `gorm:"default:50" json:"max_participants"`
	ExpiresAt       time.Time     `gorm:"not null;index" json:"expires_at"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`

	Course       Course               `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	Participants []SessionParticipant `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE;" json:"participants,omitempty"`
}

type ParticipantRole string

const (
	ParticipantHost   ParticipantRole = "host"
	ParticipantMember ParticipantRole = "participant"
)

type SessionParticipant struct {
	Base
	SessionID  uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_participant_session_user" json:"session_id"`
	UserID     *uuid.UUID      `gorm:"type:uuid;uniqueIndex:idx_participant_session_user" json:"user_id,omitempty"`
	Nickname   string          `gorm:"size:60;not null" json:"nickname"`
	Role       ParticipantRole `gorm:"type:varchar(20);not null;default:'participant'" json:"role"`
	JoinedAt   time.Time       `json:"joined_at"`
	LastSeenAt time.Time       `gorm:"index" json:"last_seen_at"`
	LeftAt     *time.Time      `json:"left_at,omitempty"`
}
