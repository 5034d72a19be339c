package controllers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vinakademin/vinakademin-backend/logger"
	"github.com/vinakademin/vinakademin-backend/models"
	"github.com/vinakademin/vinakademin-backend/services"
	"github.com/vinakademin/vinakademin-backend/utils"
)

// CourseSummary is a catalog entry with its free-preview counts.
type CourseSummary struct {
	models.Course
	FreeItems  int `json:"free_items"`
	TotalItems int `json:"total_items"`
}

func summarize(course *models.Course) CourseSummary {
	free, total := services.CountFreeItems(course)
	s := CourseSummary{Course: *course, FreeItems: free, TotalItems: total}
	s.Modules = nil
	return s
}

// uniqueSlug appends -2, -3, ... until the slug is unused in table.
func uniqueSlug(db *gorm.DB, model interface{}, title string, exceptID uuid.UUID) (string, error) {
	base := slug.Make(title)
	if base == "" {
		base = "post"
	}
	candidate := base
	for i := 2; ; i++ {
		var n int64
		if err := db.Model(model).Where("slug = ? AND id <> ?", candidate, exceptID).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

type catalogPage struct {
	Courses    []CourseSummary `json:"courses"`
	Pagination gin.H           `json:"pagination"`
}

// ListCourses returns published courses.
func ListCourses(c *gin.Context) {
	db := getDB(c)
	p := parsePagination(c, 12)
	search := strings.TrimSpace(c.Query("search"))
	level := c.Query("level")

	cacheKey := fmt.Sprintf("p%d:l%d:s=%s:lv=%s", p.Page, p.Limit, strings.ToLower(search), level)
	var cached catalogPage
	if services.Catalog.Get(c.Request.Context(), cacheKey, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	query := db.Model(&models.Course{}).Where("status = ?", models.CoursePublished)
	if search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	if level != "" {
		query = query.Where("level = ?", level)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}

	var courses []models.Course
	err := query.Preload("Modules").Preload("Modules.Lessons").Preload("Modules.Quizzes").
		Order("created_at DESC").
		Offset(p.Offset).Limit(p.Limit).
		Find(&courses).Error
	if err != nil {
		respondError(c, err)
		return
	}

	page := catalogPage{Courses: make([]CourseSummary, 0, len(courses)), Pagination: p.meta(total)}
	for i := range courses {
		page.Courses = append(page.Courses, summarize(&courses[i]))
	}
	services.Catalog.Set(c.Request.Context(), cacheKey, page)

	c.JSON(http.StatusOK, page)
}

func loadVisibleCourse(c *gin.Context, db *gorm.DB) (*models.Course, bool) {
	course, err := services.LoadCourseTree(db, "slug = ?", c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Kursen hittades inte"})
		return nil, false
	}
	if course.Status != models.CoursePublished && !currentRole(c).IsStaff() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Kursen hittades inte"})
		return nil, false
	}
	return course, true
}

// GetCourse returns one course with its counts and the caller's access.
func GetCourse(c *gin.Context) {
	db := getDB(c)
	course, ok := loadVisibleCourse(c, db)
	if !ok {
		return
	}
	hasAccess, err := services.HasCourseAccess(db, currentUserID(c), currentRole(c), course)
	if err != nil {
		respondError(c, err)
		return
	}

	var rating struct {
		Avg   float64
		Count int64
	}
	db.Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS count").
		Where("course_id = ?", course.ID).
		Scan(&rating)

	c.JSON(http.StatusOK, gin.H{
		"course":         summarize(course),
		"has_access":     hasAccess,
		"purchasable":    course.Purchasable(),
		"average_rating": rating.Avg,
		"review_count":   rating.Count,
	})
}

// GetCourseContent returns the ordered module/item tree. Items the caller
// cannot open come back locked.
func GetCourseContent(c *gin.Context) {
	db := getDB(c)
	course, ok := loadVisibleCourse(c, db)
	if !ok {
		return
	}
	userID := currentUserID(c)
	hasAccess, err := services.HasCourseAccess(db, userID, currentRole(c), course)
	if err != nil {
		respondError(c, err)
		return
	}

	completed := map[uuid.UUID]bool{}
	if userID != uuid.Nil {
		if completed, err = services.CompletedLessons(db, userID, course.ID); err != nil {
			respondError(c, err)
			return
		}
	}

	free, total := services.CountFreeItems(course)
	c.JSON(http.StatusOK, gin.H{
		"course_id":   course.ID,
		"has_access":  hasAccess,
		"free_items":  free,
		"total_items": total,
		"modules":     services.OrderedContent(course, hasAccess, completed),
	})
}

// GetLesson returns a lesson if it is free or the caller has access.
func GetLesson(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var lesson models.Lesson
	if err := db.First(&lesson, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Lektionen hittades inte"})
		return
	}
	course, err := courseForModule(db, lesson.ModuleID)
	if err != nil {
		respondError(c, err)
		return
	}
	if course.Status != models.CoursePublished && !currentRole(c).IsStaff() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Lektionen hittades inte"})
		return
	}

	if !lesson.IsFree {
		hasAccess, err := services.HasCourseAccess(db, currentUserID(c), currentRole(c), course)
		if err != nil {
			respondError(c, err)
			return
		}
		if !hasAccess {
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error":     "Lektionen ingår i en betald kurs",
				"course_id": course.ID,
				"checkout":  course.Purchasable(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"lesson": lesson, "course_id": course.ID})
}

func courseForModule(db *gorm.DB, moduleID uuid.UUID) (*models.Course, error) {
	var module models.Module
	if err := db.Select("id", "course_id").First(&module, "id = ?", moduleID).Error; err != nil {
		return nil, err
	}
	var course models.Course
	if err := db.First(&course, "id = ?", module.CourseID).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

// ---- admin ----

type CourseInput struct {
	Title       *string          `json:"title" binding:"omitempty,min=2,max=255"`
	Description *string          `json:"description"`
	Level       *string          `json:"level" binding:"omitempty,oneof=beginner intermediate advanced"`
	Price       *decimal.Decimal `json:"price"`
	IsFree      *bool            `json:"is_free"`
	Status      *string          `json:"status" binding:"omitempty,oneof=draft published archived"`
}

func AdminListCourses(c *gin.Context) {
	db := getDB(c)
	p := parsePagination(c, 20)

	query := db.Model(&models.Course{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(search)+"%")
	}
	if currentRole(c) == models.RoleInstructor {
		query = query.Where("instructor_id = ?", currentUserID(c))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}
	var courses []models.Course
	if err := query.Order("created_at DESC").Offset(p.Offset).Limit(p.Limit).Find(&courses).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses, "pagination": p.meta(total)})
}

func AdminGetCourse(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	course, err := services.LoadCourseTree(getDB(c), "id = ?", id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Kursen hittades inte"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"course":  course,
		"content": services.OrderedContent(course, true, nil),
	})
}

func CreateCourse(c *gin.Context) {
	db := getDB(c)

	var input CourseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.Title == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Titel krävs"})
		return
	}

	course := models.Course{Title: strings.TrimSpace(*input.Title), Status: models.CourseDraft, Level: "beginner"}
	applyCourseInput(&course, &input)
	if course.Price.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Priset kan inte vara negativt"})
		return
	}
	if currentRole(c) == models.RoleInstructor {
		uid := currentUserID(c)
		course.InstructorID = &uid
	}

	s, err := uniqueSlug(db, &models.Course{}, course.Title, uuid.Nil)
	if err != nil {
		respondError(c, err)
		return
	}
	course.Slug = s

	if err := db.Create(&course).Error; err != nil {
		respondError(c, err)
		return
	}
	services.Catalog.Invalidate(c.Request.Context())

	c.JSON(http.StatusCreated, gin.H{"message": "Kursen har skapats", "course": course})
}

func applyCourseInput(course *models.Course, input *CourseInput) {
	if input.Title != nil {
		course.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		course.Description = *input.Description
	}
	if input.Level != nil {
		course.Level = *input.Level
	}
	if input.Price != nil {
		course.Price = *input.Price
	}
	if input.IsFree != nil {
		course.IsFree = *input.IsFree
	}
	if input.Status != nil {
		course.Status = models.CourseStatus(*input.Status)
	}
}

// loadEditableCourse loads a course the caller may change. Instructors may
// only change their own courses.
func loadEditableCourse(c *gin.Context, db *gorm.DB, id uuid.UUID) (*models.Course, bool) {
	var course models.Course
	if err := db.First(&course, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Kursen hittades inte"})
		return nil, false
	}
	if currentRole(c) == models.RoleInstructor &&
		(course.InstructorID == nil || *course.InstructorID != currentUserID(c)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Du kan bara ändra dina egna kurser"})
		return nil, false
	}
	return &course, true
}

func UpdateCourse(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	course, ok := loadEditableCourse(c, db, id)
	if !ok {
		return
	}

	var input CourseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	oldTitle := course.Title
	applyCourseInput(course, &input)
	if course.Price.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Priset kan inte vara negativt"})
		return
	}
	if course.Title != oldTitle {
		s, err := uniqueSlug(db, &models.Course{}, course.Title, course.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		course.Slug = s
	}

	if err := db.Omit("Modules").Save(course).Error; err != nil {
		respondError(c, err)
		return
	}
	services.Catalog.Invalidate(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{"message": "Kursen har uppdaterats", "course": course})
}

func DeleteCourse(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	course, ok := loadEditableCourse(c, db, id)
	if !ok {
		return
	}

	var paid int64
	db.Model(&models.Order{}).Where("course_id = ? AND status = ?", course.ID, models.OrderPaid).Count(&paid)
	if paid > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Kursen har sålts och kan bara arkiveras"})
		return
	}

	if err := db.Select("Modules").Delete(course).Error; err != nil {
		respondError(c, err)
		return
	}
	if course.ThumbnailURL != "" {
		if err := utils.DeleteFileFromSupabase(course.ThumbnailURL); err != nil {
			logger.FromGin(c).Warn("Failed to delete course thumbnail", zap.Error(err))
		}
	}
	services.Catalog.Invalidate(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{"message": "Kursen har tagits bort"})
}

func UploadCourseThumbnail(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	course, ok := loadEditableCourse(c, db, id)
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Ingen fil bifogad"})
		return
	}
	url, err := utils.UploadImageToSupabase(file, "courses", course.ID.String())
	if err != nil {
		logger.FromGin(c).Error("Thumbnail upload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Kunde inte ladda upp bilden"})
		return
	}

	if err := db.Model(course).Update("thumbnail_url", url).Error; err != nil {
		respondError(c, err)
		return
	}
	services.Catalog.Invalidate(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{"message": "Bilden har laddats upp", "thumbnail_url": url})
}

type ReorderInput struct {
	IDs []uuid.UUID `json:"ids" binding:"required,min=1"`
}

// ReorderCourseModules sets module order to the position in the given list.
func ReorderCourseModules(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	course, ok := loadEditableCourse(c, db, id)
	if !ok {
		return
	}
	var input ReorderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		for i, moduleID := range input.IDs {
			res := tx.Model(&models.Module{}).
				Where("id = ? AND course_id = ?", moduleID, course.ID).
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
