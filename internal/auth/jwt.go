package auth

import (
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the claims in our call token
type JWTClaims struct {
	CallerID string `json:"caller_id"`
	Role     string `json:"role"` // always "caller" for now
	jwt.RegisteredClaims
}

// Call tokens are short-lived: one token covers one browsing session.
const callTokenTTL = 24 * time.Hour

var jwtSecret = []byte(secretFromEnv())

func secretFromEnv() string {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		return secret
	}
	return "development-secret"
}

// GenerateCallToken generates a JWT token authorizing WebSocket call access
func GenerateCallToken(callerID string) (string, error) {
	claims := &JWTClaims{
		CallerID: callerID,
		Role:     "caller",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(callTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrInvalidKey
}
