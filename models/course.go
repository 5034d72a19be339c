package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CourseStatus string

const (
	CourseDraft     CourseStatus = "draft"
	CoursePublished CourseStatus = "published"
	CourseArchived  CourseStatus = "archived"
)

type Course struct {
	Base
	Title        string          `gorm:"size:255;not null" json:"title"`
	Slug         string          `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	Description  string          `gorm:"type:text" json:"description"`
	Level        string          `gorm:"size:30;default:'beginner'" json:"level"` // beginner | intermediate | advanced
	Price        decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"price"`
	IsFree       bool            `gorm:"default:false" json:"is_free"`
	Status       CourseStatus    `gorm:"type:varchar(20);default:'draft';index" json:"status"`
	ThumbnailURL string          `gorm:"type:text" json:"thumbnail_url"`
	InstructorID *uuid.UUID      `gorm:"type:uuid;index" json:"instructor_id,omitempty"`

	Modules []Module `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE;" json:"modules,omitempty"`
}

// Purchasable reports whether the course must be bought through checkout.
func (c Course) Purchasable() bool {
	return !c.IsFree && c.Price.IsPositive()
}

type Module struct {
	Base
	CourseID    uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Order       int       `gorm:"column:sort_order;default:0" json:"order"`

	Lessons []Lesson `gorm:"foreignKey:ModuleID;constraint:OnDelete:CASCADE;" json:"lessons,omitempty"`
	Quizzes []Quiz   `gorm:"foreignKey:ModuleID;constraint:OnDelete:CASCADE;" json:"quizzes,omitempty"`
}

type VideoStatus string

const (
	VideoNone      VideoStatus = "none"
	VideoWaiting   VideoStatus = "waiting"
	VideoPreparing VideoStatus = "preparing"
	VideoReady     VideoStatus = "ready"
	VideoErrored   VideoStatus = "errored"
)

type Lesson struct {
	Base
	ModuleID uuid.UUID `gorm:"type:uuid;not null;index" json:"module_id"`
	Title    string    `gorm:"size:255;not null" json:"title"`
	Slug     string    `gorm:"size:255;index" json:"slug"`
	Body     string    `gorm:"type:text" json:"body,omitempty"`
	Order    int       `gorm:"column:sort_order;default:0" json:"order"`
	IsFree   bool      `gorm:"default:false" json:"is_free"`

	MuxUploadID   *string     `gorm:"size:100;index" json:"-"`
	MuxAssetID    *string     `gorm:"size:100;index" json:"-"`
	MuxPlaybackID *string     `gorm:"size:100" json:"mux_playback_id,omitempty"`
	VideoStatus   VideoStatus `gorm:"type:varchar(20);default:'none'" json:"video_status"`
	DurationSec   int         `gorm:"default:0" json:"duration_sec"`
}

type LessonProgress struct {
	Base
	UserID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_progress_user_lesson" json:"user_id"`
	LessonID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_progress_user_lesson" json:"lesson_id"`
	CourseID uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
}
