package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vinakademin/vinakademin-backend/config"
)

// Claims is carried by user tokens and by session participant tokens.
// Participant tokens set SessionID and ParticipantID; UserID is empty for guests.
type Claims struct {
	UserID        string `json:"user_id,omitempty"`
	Role          string `json:"role,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	ParticipantID string `json:"participant_id,omitempty"`
	jwt.RegisteredClaims
}

// IsParticipantToken reports whether the token was issued for a group session.
func (c *Claims) IsParticipantToken() bool {
	return c.SessionID != "" && c.ParticipantID != ""
}

func secret() []byte {
	return []byte(config.AppConfig.JWT.Secret)
}

// GenerateToken signs a login token for a user.
func GenerateToken(userID, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(config.AppConfig.JWT.Expiration)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret())
}

// GenerateParticipantToken signs a token scoped to one session participant.
// It expires together with the session.
func GenerateParticipantToken(sessionID, participantID, userID string, expiresAt time.Time) (string, error) {
	claims := Claims{
		UserID:        userID,
		SessionID:     sessionID,
		ParticipantID: participantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   participantID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret())
}

// VerifyToken parses and validates a token signed by this service.
func VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret(), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
