package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Quiz struct {
	Base
	ModuleID    uuid.UUID `gorm:"type:uuid;not null;index" json:"module_id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Order       int       `gorm:"column:sort_order;default:0" json:"order"`
	IsFree      bool      `gorm:"default:false" json:"is_free"`
	PassPercent int       `gorm:"default:70" json:"pass_percent"`

	Questions []Question `gorm:"foreignKey:QuizID;constraint:OnDelete:CASCADE;" json:"questions,omitempty"`
}

type Question struct {
	Base
	QuizID      uuid.UUID `gorm:"type:uuid;not null;index" json:"quiz_id"`
	Text        string    `gorm:"type:text;not null" json:"text"`
	Explanation string    `gorm:"type:text" json:"explanation,omitempty"`
	Order       int       `gorm:"column:sort_order;default:0" json:"order"`

	Options []QuestionOption `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE;" json:"options"`
}

type QuestionOption struct {
	Base
	QuestionID uuid.UUID `gorm:"type:uuid;not null;index" json:"question_id"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	IsCorrect  bool      `gorm:"default:false" json:"-"`
	Order      int       `gorm:"column:sort_order;default:0" json:"order"`
}

type QuizAttempt struct {
	Base
	UserID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	QuizID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"quiz_id"`
	Score   int            `json:"score"`
	Total   int            `json:"total"`
	Percent int            `json:"percent"`
	Passed  bool           `json:"passed"`
	Answers datatypes.JSON `json:"answers"`
}
