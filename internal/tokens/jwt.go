package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims for the control API bearer tokens. Subject identifies the
// operator or integration that holds the token.
type Claims struct {
	Role string `json:"role"` // "operator" or "viewer"
	jwt.RegisteredClaims
}

type Manager struct {
	signingKey []byte
}

func NewManager(signingKey string) *Manager {
	return &Manager{signingKey: []byte(signingKey)}
}

// GenerateToken issues a token carrying the given role: "operator" for
// full control, "viewer" for read-only integrations that poll detection
// state.
func (m *Manager) GenerateToken(subject, role string, duration time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(), // jti
			Subject:   subject,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	// Add Kid for future key rotation support, even if using single key now
	token.Header["kid"] = "v1"

	return token.SignedString(m.signingKey)
}

func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		// In a real rotation scenario, we'd look up key by kid
		return m.signingKey, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
