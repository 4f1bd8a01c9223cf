package httpapi

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/moguard/panel/internal/domain/admin"
)

// adminClaims is the JWT payload issued to an authenticated admin session,
// grounded on the teacher's infrastructure/auth.Claims shape but trimmed to
// this system's single-token model (no refresh-token rotation: §6 only
// describes one bearer token per session).
type adminClaims struct {
	AdminID int64     `json:"admin_id"`
	Role    admin.Role `json:"role"`
	jwt.RegisteredClaims
}

// jwtService issues and verifies the admin bearer tokens §6's
// "Authorization: Bearer <JWT>" auth describes.
type jwtService struct {
	secret []byte
	ttl    time.Duration
}

func newJWTService(secret string, ttl time.Duration) *jwtService {
	return &jwtService{secret: []byte(secret), ttl: ttl}
}

func (s *jwtService) issue(a *admin.Admin) (string, error) {
	now := time.Now().UTC()
	claims := &adminClaims{
		AdminID: a.ID(),
		Role:    a.Role(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *jwtService) verify(tokenString string) (*adminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &adminClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*adminClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
