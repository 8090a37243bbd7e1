package gateway

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/types"
)

// TokenValidator implements JWT token validation
type TokenValidator struct {
	jwtSecret []byte
}

// JWTClaims are the platform token claims carrying actor identity
type JWTClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// NewTokenValidator creates a new token validator
func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{
		jwtSecret: []byte(secret),
	}
}

// ValidateJWT validates a JWT token and returns the caller's access context
func (tv *TokenValidator) ValidateJWT(tokenString string) (*types.AccessContext, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tv.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	if claims.UserID == "" {
		return nil, fmt.Errorf("token carries no user identity")
	}

	return &types.AccessContext{
		ActorID:   claims.UserID,
		ActorRole: types.UserRole(claims.Role),
	}, nil
}
