package internal

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMissingSecret = errors.New("JWT secret is not configured")

type JWTManager struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

func NewJWTManager(secret string, ttlHours int) (*JWTManager, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttlHours <= 0 {
		ttlHours = 24
	}
	return &JWTManager{
		secretKey: []byte(secret),
		ttl:       time.Duration(ttlHours) * time.Hour,
		now:       time.Now,
	}, nil
}

func (jm *JWTManager) GenerateToken(userID, email string) (string, error) {
	now := jm.now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(jm.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "benfordscan-api",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(jm.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

func (jm *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jm.secretKey, nil
	}, jwt.WithTimeFunc(jm.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
