package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vinakademin/vinakademin-backend/logger"
	"github.com/vinakademin/vinakademin-backend/models"
	"github.com/vinakademin/vinakademin-backend/services"
	"github.com/vinakademin/vinakademin-backend/utils"
)

func wineListParams(c *gin.Context) services.WineListParams {
	p := services.WineListParams{
		Type:           c.Query("type"),
		Country:        c.Query("country"),
		Grape:          c.Query("grape"),
		Search:         c.Query("search"),
		Sort:           c.DefaultQuery("sort", "rating"),
		IncludeUnrated: c.Query("include_unrated") == "true",
	}
	if v, err := strconv.Atoi(c.Query("min_rating")); err == nil && v > 0 {
		p.MinRating = v
	}
	if v, err := decimal.NewFromString(c.Query("max_price")); err == nil {
		p.MaxPrice = &v
	}
	return p
}

// ListWines returns the deduplicated wine list: one entry per wine carrying
// its best review, labelled mine/expert/community for the caller.
func ListWines(c *gin.Context) {
	db := getDB(c)
	params := wineListParams(c)

	reviews, err := services.LoadWineReviews(db)
	if err != nil {
		respondError(c, err)
		return
	}

	var unrated []models.Wine
	if params.IncludeUnrated {
		err := db.Where("NOT EXISTS (SELECT 1 FROM reviews WHERE reviews.wine_id = wines.id)").
			Order("name").
			Limit(services.WineListLimit).
			Find(&unrated).Error
		if err != nil {
			respondError(c, err)
			return
		}
	}

	entries := services.BuildWineList(reviews, unrated, currentUserID(c), params)
	c.JSON(http.StatusOK, gin.H{"wines": entries, "total": len(entries)})
}

func GetWine(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var wine models.Wine
	if err := db.First(&wine, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vinet hittades inte"})
		return
	}

	var reviews []models.Review
	err := db.Preload("Author").
		Where("wine_id = ?", wine.ID).
		Order("rating DESC, created_at DESC").
		Limit(50).
		Find(&reviews).Error
	if err != nil {
		respondError(c, err)
		return
	}

	viewer := currentUserID(c)
	views := publicReviews(reviews)
	classes := make([]services.ReviewClass, len(reviews))
	for i := range reviews {
		classes[i] = services.ClassifyReview(&reviews[i], viewer)
	}
	c.JSON(http.StatusOK, gin.H{"wine": wine, "reviews": views, "classes": classes})
}

type WineInput struct {
	Name     *string          `json:"name" binding:"omitempty,min=1,max=255"`
	Producer *string          `json:"producer"`
	Vintage  *int             `json:"vintage" binding:"omitempty,min=1800,max=2100"`
	Country  *string          `json:"country"`
	Region   *string          `json:"region"`
	Grape    *string          `json:"grape"`
	Type     *string          `json:"type" binding:"omitempty,oneof=red white rose sparkling fortified orange"`
	Price    *decimal.Decimal `json:"price"`
}

func applyWineInput(w *models.Wine, in *WineInput) {
	if in.Name != nil {
		w.Name = strings.TrimSpace(*in.Name)
	}
	if in.Producer != nil {
		w.Producer = *in.Producer
	}
	if in.Vintage != nil {
		w.Vintage = in.Vintage
	}
	if in.Country != nil {
		w.Country = *in.Country
	}
	if in.Region != nil {
		w.Region = *in.Region
	}
	if in.Grape != nil {
		w.Grape = *in.Grape
	}
	if in.Type != nil {
		w.Type = models.WineType(*in.Type)
	}
	if in.Price != nil {
		w.Price = *in.Price
	}
}

func CreateWine(c *gin.Context) {
	var input WineInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.Name == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Namn krävs"})
		return
	}
	wine := models.Wine{Type: models.WineRed}
	applyWineInput(&wine, &input)
	if err := getDB(c).Create(&wine).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Vinet har skapats", "wine": wine})
}

func UpdateWine(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var wine models.Wine
	if err := db.First(&wine, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vinet hittades inte"})
		return
	}
	var input WineInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	applyWineInput(&wine, &input)
	if err := db.Save(&wine).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Vinet har uppdaterats", "wine": wine})
}

func DeleteWine(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var wine models.Wine
	if err := db.First(&wine, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vinet hittades inte"})
		return
	}
	if err := db.Where("wine_id = ?", wine.ID).Delete(&models.Review{}).Error; err != nil {
		respondError(c, err)
		return
	}
	if err := db.Delete(&wine).Error; err != nil {
		respondError(c, err)
		return
	}
	if wine.ImageURL != "" {
		if err := utils.DeleteFileFromSupabase(wine.ImageURL); err != nil {
			logger.FromGin(c).Warn("Failed to delete wine image", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Vinet har tagits bort"})
}

func UploadWineImage(c *gin.Context) {
	db := getDB(c)
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var wine models.Wine
	if err := db.First(&wine, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vinet hittades inte"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Ingen fil bifogad"})
		return
	}
	url, err := utils.UploadImageToSupabase(file, "wines", uuid.NewString())
	if err != nil {
		logger.FromGin(c).Error("Wine image upload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Kunde inte ladda upp bilden"})
		return
	}
	old := wine.ImageURL
	if err := db.Model(&wine).Update("image_url", url).Error; err != nil {
		respondError(c, err)
		return
	}
	if old != "" {
		if err := utils.DeleteFileFromSupabase(old); err != nil {
			logger.FromGin(c).Warn("Failed to delete previous wine image", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Bilden har laddats upp", "image_url": url})
}
