package controllers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/auth/credentials/idtoken"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/vinakademin/vinakademin-backend/config"
	"github.com/vinakademin/vinakademin-backend/logger"
	"github.com/vinakademin/vinakademin-backend/models"
	"github.com/vinakademin/vinakademin-backend/services"
	"github.com/vinakademin/vinakademin-backend/utils"
)

const passwordResetTTL = time.Hour

type RegisterInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name" binding:"required,max=150"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func userPayload(u *models.User) gin.H {
	return gin.H{
		"id":        u.ID,
		"email":     u.Email,
		"full_name": u.FullName,
		"role":      u.Role,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func Register(c *gin.Context) {
	db := getDB(c)

	var input RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := normalizeEmail(input.Email)

	var existing models.User
	if err := db.Where("email = ?", email).First(&existing).Error; err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "E-postadressen används redan"})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Kunde inte kryptera lösenordet"})
		return
	}

	newUser := models.User{
		FullName: strings.TrimSpace(input.FullName),
		Email:    email,
		Password: string(hashed),
		Role:     models.RoleUser,
		Active:   true,
	}
	if err := db.Create(&newUser).Error; err != nil {
		respondError(c, err)
		return
	}

	token, err := utils.GenerateToken(newUser.ID.String(), string(newUser.Role))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Kunde inte skapa token"})
		return
	}

	services.Analytics.Capture(newUser.ID.String(), services.EventUserSignedUp, map[string]interface{}{"method": "password"})

	c.JSON(http.StatusCreated, gin.H{
		"message": "Registreringen lyckades",
		"token":   token,
		"user":    userPayload(&newUser),
	})
}

func Login(c *gin.Context) {
	db := getDB(c)

	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := db.Where("email = ?", normalizeEmail(input.Email)).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Fel e-post eller lösenord"})
		return
	}
	if user.Password == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Kontot använder Google-inloggning"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Fel e-post eller lösenord"})
		return
	}
	if !user.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "Kontot är spärrat"})
		return
	}

	token, err := utils.GenerateToken(user.ID.String(), string(user.Role))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Kunde inte skapa token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Inloggningen lyckades",
		"token":   token,
		"user":    userPayload(&user),
	})
}

type GoogleLoginInput struct {
	IDToken string `json:"id_token" binding:"required"`
}

func GoogleLogin(c *gin.Context) {
	db := getDB(c)

	var input GoogleLoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload, err := idtoken.Validate(c.Request.Context(), input.IDToken, config.AppConfig.GoogleClientID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Ogiltig Google-token"})
		return
	}

	email, _ := payload.Claims["email"].(string)
	fullName, _ := payload.Claims["name"].(string)
	if verified, ok := payload.Claims["email_verified"].(bool); email == "" || (ok && !verified) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Google-kontot saknar verifierad e-post"})
		return
	}
	email = normalizeEmail(email)

	var user models.User
	err = db.Where("email = ?", email).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			Email:    email,
			FullName: fullName,
			Role:     models.RoleUser,
			Active:   true,
		}
		if err := db.Create(&user).Error; err != nil {
			respondError(c, err)
			return
		}
		services.Analytics.Capture(user.ID.String(), services.EventUserSignedUp, map[string]interface{}{"method": "google"})
	case err != nil:
		respondError(c, err)
		return
	}
	if !user.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "Kontot är spärrat"})
		return
	}

	token, err := utils.GenerateToken(user.ID.String(), string(user.Role))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Kunde inte skapa token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  userPayload(&user),
	})
}

func Me(c *gin.Context) {
	var user models.User
	if err := getDB(c).First(&user, "id = ?", currentUserID(c)).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

type ChangePasswordInput struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

func ChangePassword(c *gin.Context) {
	db := getDB(c)

	var input ChangePasswordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := db.First(&user, "id = ?", currentUserID(c)).Error; err != nil {
		respondError(c, err)
		return
	}

	// Google accounts set their first password without an old one
	if user.Password != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.OldPassword)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Nuvarande lösenord är fel"})
			return
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Kunde inte kryptera lösenordet"})
		return
	}
	if err := db.Model(&user).Update("password", string(hashed)).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Lösenordet har ändrats"})
}

type ForgotPasswordInput struct {
	Email string `json:"email" binding:"required,email"`
}

// ForgotPassword answers the same way whether or not the address exists.
func ForgotPassword(c *gin.Context) {
	db := getDB(c)
	log := logger.FromGin(c)

	var input ForgotPasswordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reply := gin.H{"message": "Om adressen finns har vi skickat en länk för att återställa lösenordet"}

	var user models.User
	if err := db.Where("email = ? AND active = ?", normalizeEmail(input.Email), true).First(&user).Error; err != nil {
		c.JSON(http.StatusOK, reply)
		return
	}

	token, err := randomToken()
	if err != nil {
		respondError(c, err)
		return
	}
	reset := models.PasswordReset{
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(passwordResetTTL),
	}
	if err := db.Create(&reset).Error; err != nil {
		respondError(c, err)
		return
	}

	go func(name, email string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := services.Email.SendPasswordReset(ctx, name, email, token); err != nil {
			log.Error("Failed to send password reset email", zap.Error(err))
		}
	}(user.FullName, user.Email)

	c.JSON(http.StatusOK, reply)
}

type ResetPasswordInput struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

func ResetPassword(c *gin.Context) {
	db := getDB(c)

	var input ResetPasswordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Kunde inte kryptera lösenordet"})
		return
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		// claiming the token first makes a second use of it fail
		res := tx.Model(&models.PasswordReset{}).
			Where("token = ? AND used = ? AND expires_at > ?", input.Token, false, time.Now().UTC()).
			Update("used", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return services.ErrInvalidInput
		}
		var reset models.PasswordReset
		if err := tx.Where("token = ?", input.Token).First(&reset).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", reset.UserID).Update("password", string(hashed)).Error
	})
	if errors.Is(err, services.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Länken är ogiltig eller har gått ut"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Lösenordet har återställts"})
}

type CreateInstructorInput struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// AdminCreateInstructor creates a staff account that can manage courses.
func AdminCreateInstructor(c *gin.Context) {
	db := getDB(c)

	var input CreateInstructorInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := normalizeEmail(input.Email)

	var existing models.User
	if err := db.Where("email = ?", email).First(&existing).Error; err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "E-postadressen används redan"})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Kunde inte kryptera lösenordet"})
		return
	}

	newUser := models.User{
		FullName: input.FullName,
		Email:    email,
		Password: string(hashed),
		Role:     models.RoleInstructor,
		Active:   true,
	}
	if err := db.Create(&newUser).Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Kursledaren har skapats",
		"user":    userPayload(&newUser),
	})
}

type SetUserActiveInput struct {
	Active *bool `json:"active" binding:"required"`
}

// AdminSetUserActive blocks or unblocks an account.
func AdminSetUserActive(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var input SetUserActiveInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if id == currentUserID(c) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Du kan inte spärra ditt eget konto"})
		return
	}

	res := getDB(c).Model(&models.User{}).Where("id = ?", id).Update("active", *input.Active)
	if res.Error != nil {
		respondError(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Användaren hittades inte"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Kontot har uppdaterats", "active": *input.Active})
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
