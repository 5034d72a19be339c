package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vinakademin/vinakademin-backend/models"
	"github.com/vinakademin/vinakademin-backend/services"
)

func loadQuizWithQuestions(db *gorm.DB, c *gin.Context) (*models.Quiz, *models.Course, bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return nil, nil, false
	}
	var quiz models.Quiz
	err := db.Preload("Questions", func(tx *gorm.DB) *gorm.DB { return tx.Order("sort_order") }).
		Preload("Questions.Options", func(tx *gorm.DB) *gorm.DB { return tx.Order("sort_order") }).
		First(&quiz, "id = ?", id).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Quizet hittades inte"})
		return nil, nil, false
	}
	course, err := courseForModule(db, quiz.ModuleID)
	if err != nil {
		respondError(c, err)
		return nil, nil, false
	}
	if course.Status != models.CoursePublished && !currentRole(c).IsStaff() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Quizet hittades inte"})
		return nil, nil, false
	}
	return &quiz, course, true
}

func quizAccessible(c *gin.Context, db *gorm.DB, quiz *models.Quiz, course *models.Course) bool {
	if quiz.IsFree {
		return true
	}
	hasAccess, err := services.HasCourseAccess(db, currentUserID(c), currentRole(c), course)
	if err != nil {
		respondError(c, err)
		return false
	}
	if !hasAccess {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":     "Quizet ingår i en betald kurs",
			"course_id": course.ID,
			"checkout":  course.Purchasable(),
		})
		return false
	}
	return true
}

// GetQuiz returns the questions without revealing the correct options.
func GetQuiz(c *gin.Context) {
	db := getDB(c)
	quiz, course, ok := loadQuizWithQuestions(db, c)
	if !ok || !quizAccessible(c, db, quiz, course) {
		return
	}
	// explanations are part of the graded result
	for i := range quiz.Questions {
		quiz.Questions[i].Explanation = ""
	}
	c.JSON(http.StatusOK, gin.H{"quiz": quiz, "course_id": course.ID})
}

type SubmitQuizInput struct {
	Answers []services.Answer `json:"answers" binding:"required,dive"`
}

func SubmitQuizAttempt(c *gin.Context) {
	db := getDB(c)
	quiz, course, ok := loadQuizWithQuestions(db, c)
	if !ok || !quizAccessible(c, db, quiz, course) {
		return
	}

	var input SubmitQuizInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := services.ScoreQuiz(quiz, input.Answers)
	answers, err := json.Marshal(input.Answers)
	if err != nil {
		respondError(c, err)
		return
	}

	attempt := models.QuizAttempt{
		UserID:  currentUserID(c),
		QuizID:  quiz.ID,
		Score:   result.Score,
		Total:   result.Total,
		Percent: result.Percent,
		Passed:  result.Passed,
		Answers: datatypes.JSON(answers),
	}
	if err := db.Create(&attempt).Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":    "Svaren har rättats",
		"attempt_id": attempt.ID,
		"result":     result,
	})
}

func MyQuizAttempts(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var attempts []models.QuizAttempt
	err := getDB(c).Where("user_id = ? AND quiz_id = ?", currentUserID(c), id).
		Order("created_at DESC").
		Find(&attempts).Error
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}
