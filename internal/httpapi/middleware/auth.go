// Package middleware provides the gin request pipeline's cross-cutting
// concerns: recovery/logging (grounded on the teacher's interfaces/http
// middleware) and admin authentication.
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/moguard/panel/internal/domain/admin"
	"github.com/moguard/panel/internal/shared/logger"
)

// adminContextKey is the gin context key the authenticated admin is stored
// under once RequireAuth succeeds.
const adminContextKey = "authenticated_admin"

// Verifier resolves a bearer JWT or API key into the Admin it belongs to.
// Implemented by internal/httpapi's jwtService plus a direct repository
// lookup, injected so this package stays decoupled from gorm/jwt.
type Verifier interface {
	VerifyBearer(token string) (*admin.Admin, error)
	VerifyAPIKey(apiKey string) (*admin.Admin, error)
}

// RequireAuth resolves either `Authorization: Bearer <JWT>` or `X-API-Key`
// into an Admin and aborts with 401 if neither resolves (§6 dual auth model).
func RequireAuth(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := resolveAdmin(c, v)
		if err != nil || a == nil {
			c.AbortWithStatusJSON(401, gin.H{"detail": "not authenticated"})
			return
		}
		c.Set(adminContextKey, a)
		c.Next()
	}
}

func resolveAdmin(c *gin.Context, v Verifier) (*admin.Admin, error) {
	if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
		return v.VerifyAPIKey(apiKey)
	}
	authz := c.GetHeader("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return v.VerifyBearer(strings.TrimPrefix(authz, "Bearer "))
	}
	return nil, nil
}

// CurrentAdmin retrieves the admin RequireAuth attached to the context.
func CurrentAdmin(c *gin.Context) *admin.Admin {
	v, ok := c.Get(adminContextKey)
	if !ok {
		return nil
	}
	a, _ := v.(*admin.Admin)
	return a
}

// RequireOwner rejects any request whose authenticated admin is not OWNER
// (§6 "OWNER-only for create/remove").
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		a := CurrentAdmin(c)
		if a == nil || a.Role() != admin.RoleOwner {
			c.AbortWithStatusJSON(403, gin.H{"detail": "owner role required"})
			return
		}
		c.Next()
	}
}

// Recovery logs a panic with a stack trace and returns 500, matching the
// teacher's recovery middleware behavior.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Get().Error("panic recovered", zap.Any("error", r), zap.String("path", c.Request.URL.Path))
				c.AbortWithStatusJSON(500, gin.H{"detail": "internal server error"})
			}
		}()
		c.Next()
	}
}

// RequestLogger logs each request's method/path/status/latency at Info.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Get().Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
