package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WineType string

const (
	WineRed       WineType = "red"
	WineWhite     WineType = "white"
	WineRose      WineType = "rose"
	WineSparkling WineType = "sparkling"
	WineFortified WineType = "fortified"
	WineOrange    WineType = "orange"
)

type Wine struct {
	Base
	Name     string          `gorm:"size:255;not null" json:"name"`
	Producer string          `gorm:"size:255" json:"producer"`
	Vintage  *int            `json:"vintage,omitempty"`
	Country  string          `gorm:"size:100;index" json:"country"`
	Region   string          `gorm:"size:100" json:"region"`
	Grape    string          `gorm:"size:150" json:"grape"`
	Type     WineType        `gorm:"type:varchar(20);index" json:"type"`
	Price    decimal.Decimal `gorm:"type:numeric(10,2);default:0" json:"price"`
	ImageURL string          `gorm:"type:text" json:"image_url"`
}

// Review is written about a course or a wine, optionally during a group session.
type Review struct {
	Base
	AuthorID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"author_id"`
	CourseID     *uuid.UUID `gorm:"type:uuid;index" json:"course_id,omitempty"`
	WineID       *uuid.UUID `gorm:"type:uuid;index" json:"wine_id,omitempty"`
	SessionID    *uuid.UUID `gorm:"type:uuid;index" json:"session_id,omitempty"`
	Rating       int        `gorm:"not null" json:"rating"`
	Comment      string     `gorm:"type:text" json:"comment"`
	TastingNotes string     `gorm:"type:text" json:"tasting_notes,omitempty"`

	Author User  `gorm:"foreignKey:AuthorID" json:"author"`
	Wine   *Wine `gorm:"foreignKey:WineID" json:"wine,omitempty"`
}

type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostPublished PostStatus = "published"
)

type BlogPost struct {
	Base
	Title         string     `gorm:"size:255;not null" json:"title"`
	Slug          string     `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	Excerpt       string     `gorm:"type:text" json:"excerpt"`
	Body          string     `gorm:"type:text" json:"body,omitempty"`
	CoverImageURL string     `gorm:"type:text" json:"cover_image_url"`
	Status        PostStatus `gorm:"type:varchar(20);default:'draft';index" json:"status"`
	PublishedAt   *time.Time `gorm:"index" json:"published_at,omitempty"`
	AuthorID      uuid.UUID  `gorm:"type:uuid;not null" json:"author_id"`
}
