package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vinakademin/vinakademin-backend/config"
	"github.com/vinakademin/vinakademin-backend/logger"
	"github.com/vinakademin/vinakademin-backend/models"
	"github.com/vinakademin/vinakademin-backend/services"
)

type CheckoutInput struct {
	CourseID uuid.UUID `json:"course_id" binding:"required"`
}

// CreateCheckout starts a Stripe Checkout for a paid course. A pending order
// whose Stripe session is still open is reused.
func CreateCheckout(c *gin.Context) {
	db := getDB(c)
	log := logger.FromGin(c)

	var input CheckoutInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if services.Payments == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Betalningar är inte tillgängliga just nu"})
		return
	}

	var course models.Course
	if err := db.First(&course, "id = ? AND status = ?", input.CourseID, models.CoursePublished).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Kursen hittades inte"})
		return
	}
	if !course.Purchasable() {
		respondError(c, services.ErrCourseNotPurchasable)
		return
	}

	userID := currentUserID(c)
	if _, err := services.FindActiveEnrollment(db, userID, course.ID); err == nil {
		respondError(c, services.ErrAlreadyOwned)
		return
	} else if !errors.Is(err, services.ErrNotFound) {
		respondError(c, err)
		return
	}

	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		respondError(c, err)
		return
	}

	var pending models.Order
	err := db.Where("user_id = ? AND course_id = ? AND status = ? AND stripe_checkout_session_id IS NOT NULL",
		userID, course.ID, models.OrderPending).
		Order("created_at DESC").
		First(&pending).Error
	if err == nil {
		url, open, err := services.Payments.OpenSessionURL(c.Request.Context(), *pending.StripeCheckoutSessionID)
		if err != nil {
			log.Warn("Could not look up pending checkout session", zap.String("order_id", pending.ID.String()), zap.Error(err))
		} else if open {
			c.JSON(http.StatusOK, gin.H{"checkout_url": url, "order_id": pending.ID})
			return
		}
		if err := db.Model(&pending).Where("status = ?", models.OrderPending).Update("status", models.OrderCancelled).Error; err != nil {
			log.Error("Could not cancel stale pending order", zap.String("order_id", pending.ID.String()), zap.Error(err))
			respondError(c, err)
			return
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, err)
		return
	}

	currency := config.AppConfig.Stripe.Currency
	order := models.Order{
		UserID:   userID,
		CourseID: course.ID,
		Amount:   course.Price,
		Currency: currency,
		Status:   models.OrderPending,
	}
	if err := db.Create(&order).Error; err != nil {
		respondError(c, err)
		return
	}

	frontend := config.AppConfig.FrontendURL
	session, err := services.Payments.CreateCheckoutSession(c.Request.Context(), services.CheckoutInput{
		OrderID:       order.ID,
		UserID:        userID,
		CourseID:      course.ID,
		CourseTitle:   course.Title,
		CustomerEmail: user.Email,
		Amount:        course.Price,
		Currency:      currency,
		SuccessURL:    fmt.Sprintf("%s/kurser/%s?kop=klart&order=%s", frontend, course.Slug, order.ID),
		CancelURL:     fmt.Sprintf("%s/kurser/%s?kop=avbrutet", frontend, course.Slug),
	})
	if err != nil {
		if cerr := db.Model(&order).Update("status", models.OrderCancelled).Error; cerr != nil {
			log.Error("Could not cancel order after failed checkout", zap.String("order_id", order.ID.String()), zap.Error(cerr))
		}
		log.Error("Checkout session creation failed", zap.String("order_id", order.ID.String()), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Kunde inte starta betalningen"})
		return
	}

	if err := db.Model(&order).Update("stripe_checkout_session_id", session.ID).Error; err != nil {
		respondError(c, err)
		return
	}

	services.Analytics.Capture(userID.String(), services.EventCheckoutStarted, map[string]interface{}{
		"course_id": course.ID.String(),
		"amount":    course.Price.String(),
	})

	c.JSON(http.StatusCreated, gin.H{"checkout_url": session.URL, "order_id": order.ID})
}

func MyOrders(c *gin.Context) {
	var orders []models.Order
	err := getDB(c).Preload("Course").
		Where("user_id = ?", currentUserID(c)).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func adminOrdersQuery(c *gin.Context) *gorm.DB {
	query := getDB(c).Model(&models.Order{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if from, err := time.Parse("2006-01-02", c.Query("from")); err == nil {
		query = query.Where("created_at >= ?", from)
	}
	if to, err := time.Parse("2006-01-02", c.Query("to")); err == nil {
		query = query.Where("created_at < ?", to.AddDate(0, 0, 1))
	}
	return query
}

func AdminListOrders(c *gin.Context) {
	p := parsePagination(c, 25)
	query := adminOrdersQuery(c)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}
	var orders []models.Order
	err := query.Preload("Course").Preload("User").
		Order("created_at DESC").
		Offset(p.Offset).Limit(p.Limit).
		Find(&orders).Error
	if err != nil {
		respondError(c, err)
		return
	}

	rows := make([]gin.H, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, gin.H{
			"order":          o,
			"customer_name":  o.User.FullName,
			"customer_email": o.User.Email,
		})
	}
	c.JSON(http.StatusOK, gin.H{"orders": rows, "pagination": p.meta(total)})
}

// ExportOrders streams the filtered orders as an xlsx workbook.
func ExportOrders(c *gin.Context) {
	var orders []models.Order
	err := adminOrdersQuery(c).Preload("Course").Preload("User").
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		respondError(c, err)
		return
	}

	buf, err := services.OrdersWorkbook(orders)
	if err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("ordrar-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
