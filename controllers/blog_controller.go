package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vinakademin/vinakademin-backend/logger"
	"github.com/vinakademin/vinakademin-backend/models"
	"github.com/vinakademin/vinakademin-backend/utils"
)

// ListPosts returns published posts, newest first, without bodies.
func ListPosts(c *gin.Context) {
	db := getDB(c)
	p := parsePagination(c, 10)

	query := db.Model(&models.BlogPost{}).Where("status = ?", models.PostPublished)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}
	var posts []models.BlogPost
	err := query.Omit("body").
		Order("published_at DESC").
		Offset(p.Offset).Limit(p.Limit).
		Find(&posts).Error
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "pagination": p.meta(total)})
}

func GetPost(c *gin.Context) {
	var post models.BlogPost
	err := getDB(c).Where("slug = ? AND status = ?", c.Param("slug"), models.PostPublished).First(&post).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Inlägget hittades inte"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post})
}

func AdminListPosts(c *gin.Context) {
	db := getDB(c)
	p := parsePagination(c, 20)
	query := db.Model(&models.BlogPost{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}
	var posts []models.BlogPost
	if err := query.Order("created_at DESC").Offset(p.Offset).Limit(p.Limit).Find(&posts).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "pagination": p.meta(total)})
}

type PostInput struct {
	Title   *string `json:"title" binding:"omitempty,min=2,max=255"`
	Excerpt *string `json:"excerpt"`
	Body    *string `json:"body"`
	Status  *string `json:"status" binding:"omitempty,oneof=draft published"`
}

// applyPostInput sets PublishedAt the first time a post is published.
func applyPostInput(post *models.BlogPost, in *PostInput) {
	if in.Title != nil {
		post.Title = strings.TrimSpace(*in.Title)
	}
	if in.Excerpt != nil {
		post.Excerpt = *in.Excerpt
	}
	if in.Body != nil {
		post.Body = *in.Body
	}
	if in.Status != nil {
		post.Status = models.PostStatus(*in.Status)
	}
	if post.Status == models.PostPublished && post.PublishedAt == nil {
		t := time.Now().UTC()
		post.PublishedAt = &t
	}
}

func CreatePost(c *gin.Context) {
	db := getDB(c)
	var input PostInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.Title == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Titel krävs"})
		return
	}

	post := models.BlogPost{Status: models.PostDraft, AuthorID: currentUserID(c)}
	applyPostInput(&post, &input)
	s, err := uniqueSlug(db, &models.BlogPost{}, post.Title, uuid.Nil)
	if err != nil {
		respondError(c, err)
		return
	}
	post.Slug = s

	if err := db.Create(&post).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Inlägget har skapats", "post": post})
}

func UpdatePost(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var post models.BlogPost
	if err := db.First(&post, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Inlägget hittades inte"})
		return
	}
	var input PostInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	oldTitle := post.Title
	applyPostInput(&post, &input)
	// published slugs stay stable so shared links keep working
	if post.Title != oldTitle && post.PublishedAt == nil {
		s, err := uniqueSlug(db, &models.BlogPost{}, post.Title, post.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		post.Slug = s
	}
	if err := db.Save(&post).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Inlägget har uppdaterats", "post": post})
}

func DeletePost(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var post models.BlogPost
	if err := db.First(&post, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Inlägget hittades inte"})
		return
	}
	if err := db.Delete(&post).Error; err != nil {
		respondError(c, err)
		return
	}
	if post.CoverImageURL != "" {
		if err := utils.DeleteFileFromSupabase(post.CoverImageURL); err != nil {
			logger.FromGin(c).Warn("Failed to delete cover image", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Inlägget har tagits bort"})
}

func UploadPostCover(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var post models.BlogPost
	if err := db.First(&post, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Inlägget hittades inte"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Ingen fil bifogad"})
		return
	}
	url, err := utils.UploadImageToSupabase(file, "blog", post.ID.String())
	if err != nil {
		logger.FromGin(c).Error("Cover upload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Kunde inte ladda upp bilden"})
		return
	}
	if err := db.Model(&post).Update("cover_image_url", url).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Bilden har laddats upp", "cover_image_url": url})
}
