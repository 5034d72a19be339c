package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"github.com/vinakademin/vinakademin-backend/models"
	"github.com/vinakademin/vinakademin-backend/services"
)

// nextOrder returns one past the highest sort_order under parent.
func nextOrder(db *gorm.DB, model interface{}, parentColumn string, parentID uuid.UUID) int {
	var max int
	db.Model(model).Where(parentColumn+" = ?", parentID).Select("COALESCE(MAX(sort_order), 0)").Scan(&max)
	return max + 1
}

// editableModule loads a module and checks the caller may edit its course.
func editableModule(c *gin.Context, db *gorm.DB, id uuid.UUID) (*models.Module, bool) {
	var module models.Module
	if err := db.First(&module, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Modulen hittades inte"})
		return nil, false
	}
	if _, ok := loadEditableCourse(c, db, module.CourseID); !ok {
		return nil, false
	}
	return &module, true
}

type ModuleInput struct {
	Title       string `json:"title" binding:"required,max=255"`
	Description string `json:"description"`
	Order       *int   `json:"order"`
}

func CreateModule(c *gin.Context) {
	db := getDB(c)
	courseID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if _, ok := loadEditableCourse(c, db, courseID); !ok {
		return
	}

	var input ModuleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	module := models.Module{CourseID: courseID, Title: strings.TrimSpace(input.Title), Description: input.Description}
	if input.Order != nil {
		module.Order = *input.Order
	} else {
		module.Order = nextOrder(db, &models.Module{}, "course_id", courseID)
	}
	if err := db.Create(&module).Error; err != nil {
		respondError(c, err)
		return
	}
	services.Catalog.Invalidate(c.Request.Context())
	c.JSON(http.StatusCreated, gin.H{"message": "Modulen har skapats", "module": module})
}

func UpdateModule(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	module, ok := editableModule(c, db, id)
	if !ok {
		return
	}
	var input ModuleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	module.Title = strings.TrimSpace(input.Title)
	module.Description = input.Description
	if input.Order != nil {
		module.Order = *input.Order
	}
	if err := db.Omit("Lessons", "Quizzes").Save(module).Error; err != nil {
		respondError(c, err)
		return
	}
	services.Catalog.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Modulen har uppdaterats", "module": module})
}

func DeleteModule(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	module, ok := editableModule(c, db, id)
	if !ok {
		return
	}
	if err := db.Select("Lessons", "Quizzes").Delete(module).Error; err != nil {
		respondError(c, err)
		return
	}
	services.Catalog.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Modulen har tagits bort"})
}

type ReorderItem struct {
	Kind services.ItemKind `json:"kind" binding:"required,oneof=lesson quiz"`
	ID   uuid.UUID         `json:"id" binding:"required"`
}

type ReorderModuleInput struct {
	Items []ReorderItem `json:"items" binding:"required,min=1,dive"`
}

// ReorderModule gives the lessons and quizzes of a module one shared order
// following their position in the list.
func ReorderModule(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	module, ok := editableModule(c, db, id)
	if !ok {
		return
	}
	var input ReorderModuleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		for i, item := range input.Items {
			var model interface{} = &models.Lesson{}
			if item.Kind == services.KindQuiz {
				model = &models.Quiz{}
			}
			res := tx.Model(model).
				Where("id = ? AND module_id = ?", item.ID, module.ID).
				Update("sort_order", i+1)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return services.ErrInvalidInput
			}
		}
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	services.Catalog.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Ordningen har sparats"})
}

// ---- lessons ----

type LessonInput struct {
	Title  *string `json:"title" binding:"omitempty,max=255"`
	Body   *string `json:"body"`
	Order  *int    `json:"order"`
	IsFree *bool   `json:"is_free"`
}

func CreateLesson(c *gin.Context) {
	db := getDB(c)
	moduleID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	module, ok := editableModule(c, db, moduleID)
	if !ok {
		return
	}

	var input LessonInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.Title == nil || strings.TrimSpace(*input.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Titel krävs"})
		return
	}

	lesson := models.Lesson{ModuleID: module.ID, VideoStatus: models.VideoNone}
	applyLessonInput(&lesson, &input)
	if input.Order == nil {
		lesson.Order = nextOrder(db, &models.Lesson{}, "module_id", module.ID)
	}
	if err := db.Create(&lesson).Error; err != nil {
		respondError(c, err)
		return
	}
	services.Catalog.Invalidate(c.Request.Context())
	c.JSON(http.StatusCreated, gin.H{"message": "Lektionen har skapats", "lesson": lesson})
}

func applyLessonInput(lesson *models.Lesson, input *LessonInput) {
	if input.Title != nil {
		lesson.Title = strings.TrimSpace(*input.Title)
		lesson.Slug = slug.Make(lesson.Title)
	}
	if input.Body != nil {
		lesson.Body = *input.Body
	}
	if input.Order != nil {
		lesson.Order = *input.Order
	}
	if input.IsFree != nil {
		lesson.IsFree = *input.IsFree
	}
}

func editableLesson(c *gin.Context, db *gorm.DB, id uuid.UUID) (*models.Lesson, bool) {
	var lesson models.Lesson
	if err := db.First(&lesson, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Lektionen hittades inte"})
		return nil, false
	}
	if _, ok := editableModule(c, db, lesson.ModuleID); !ok {
		return nil, false
	}
	return &lesson, true
}

func UpdateLesson(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	lesson, ok := editableLesson(c, db, id)
	if !ok {
		return
	}
	var input LessonInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	applyLessonInput(lesson, &input)
	if err := db.Save(lesson).Error; err != nil {
		respondError(c, err)
		return
	}
	services.Catalog.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Lektionen har uppdaterats", "lesson": lesson})
}

func DeleteLesson(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	lesson, ok := editableLesson(c, db, id)
	if !ok {
		return
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("lesson_id = ?", lesson.ID).Delete(&models.LessonProgress{}).Error; err != nil {
			return err
		}
		return tx.Delete(lesson).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	services.Catalog.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Lektionen har tagits bort"})
}

// ---- quizzes ----

type QuizInput struct {
	Title       *string `json:"title" binding:"omitempty,max=255"`
	Description *string `json:"description"`
	Order       *int    `json:"order"`
	IsFree      *bool   `json:"is_free"`
	PassPercent *int    `json:"pass_percent" binding:"omitempty,min=1,max=100"`
}

func applyQuizInput(quiz *models.Quiz, input *QuizInput) {
	if input.Title != nil {
		quiz.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		quiz.Description = *input.Description
	}
	if input.Order != nil {
		quiz.Order = *input.Order
	}
	if input.IsFree != nil {
		quiz.IsFree = *input.IsFree
	}
	if input.PassPercent != nil {
		quiz.PassPercent = *input.PassPercent
	}
}

func CreateQuiz(c *gin.Context) {
	db := getDB(c)
	moduleID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	module, ok := editableModule(c, db, moduleID)
	if !ok {
		return
	}
	var input QuizInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.Title == nil || strings.TrimSpace(*input.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Titel krävs"})
		return
	}

	quiz := models.Quiz{ModuleID: module.ID, PassPercent: 70}
	applyQuizInput(&quiz, &input)
	if input.Order == nil {
		quiz.Order = nextOrder(db, &models.Quiz{}, "module_id", module.ID)
	}
	if err := db.Create(&quiz).Error; err != nil {
		respondError(c, err)
		return
	}
	services.Catalog.Invalidate(c.Request.Context())
	c.JSON(http.StatusCreated, gin.H{"message": "Quizet har skapats", "quiz": quiz})
}

func editableQuiz(c *gin.Context, db *gorm.DB, id uuid.UUID) (*models.Quiz, bool) {
	var quiz models.Quiz
	if err := db.First(&quiz, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Quizet hittades inte"})
		return nil, false
	}
	if _, ok := editableModule(c, db, quiz.ModuleID); !ok {
		return nil, false
	}
	return &quiz, true
}

func UpdateQuiz(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	quiz, ok := editableQuiz(c, db, id)
	if !ok {
		return
	}
	var input QuizInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	applyQuizInput(quiz, &input)
	if err := db.Omit("Questions").Save(quiz).Error; err != nil {
		respondError(c, err)
		return
	}
	services.Catalog.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Quizet har uppdaterats", "quiz": quiz})
}

func DeleteQuiz(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	quiz, ok := editableQuiz(c, db, id)
	if !ok {
		return
	}
	if err := db.Select("Questions").Delete(quiz).Error; err != nil {
		respondError(c, err)
		return
	}
	services.Catalog.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Quizet har tagits bort"})
}

type OptionInput struct {
	Text      string `json:"text" binding:"required"`
	IsCorrect bool   `json:"is_correct"`
}

type QuestionInput struct {
	Text        string        `json:"text" binding:"required"`
	Explanation string        `json:"explanation"`
	Order       *int          `json:"order"`
	Options     []OptionInput `json:"options" binding:"required,min=2,dive"`
}

// CreateQuestion adds a question with its options. At least one option
// must be correct.
func CreateQuestion(c *gin.Context) {
	db := getDB(c)
	quizID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	quiz, ok := editableQuiz(c, db, quizID)
	if !ok {
		return
	}
	var input QuestionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	question := models.Question{QuizID: quiz.ID, Text: input.Text, Explanation: input.Explanation}
	if input.Order != nil {
		question.Order = *input.Order
	} else {
		question.Order = nextOrder(db, &models.Question{}, "quiz_id", quiz.ID)
	}
	hasCorrect := false
	for i, o := range input.Options {
		hasCorrect = hasCorrect || o.IsCorrect
		question.Options = append(question.Options, models.QuestionOption{
			Text:      o.Text,
			IsCorrect: o.IsCorrect,
			Order:     i + 1,
		})
	}
	if !hasCorrect {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Minst ett svarsalternativ måste vara rätt"})
		return
	}

	if err := db.Create(&question).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Frågan har skapats", "question": question})
}

func DeleteQuestion(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var question models.Question
	if err := db.First(&question, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Frågan hittades inte"})
		return
	}
	if _, ok := editableQuiz(c, db, question.QuizID); !ok {
		return
	}
	if err := db.Select("Options").Delete(&question).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Frågan har tagits bort"})
}
