package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"transient-broker/backend/internal/security"
	"transient-broker/backend/internal/store"
	userdomain "transient-broker/backend/internal/user/domain"
)

// userIDKey is the gin context key carrying the authenticated user's ID.
const userIDKey = "auth_user_id"

// UserID returns the authenticated user's ID set by AuthRequired.
func UserID(c *gin.Context) int64 {
	id, _ := c.Get(userIDKey)
	v, _ := id.(int64)
	return v
}

// UserLoader resolves users for role checks.
type UserLoader interface {
	UserByID(ctx context.Context, id int64) (*userdomain.User, error)
}

// StoreUsers loads users through short read-only sessions.
type StoreUsers struct {
	DB *store.DB
}

func (s StoreUsers) UserByID(ctx context.Context, id int64) (*userdomain.User, error) {
	sess, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)
	return sess.UserByID(ctx, id)
}

// AuthRequired validates the bearer token and stores the user ID on the
// context. Requests without a valid token get a 401.
func AuthRequired(tokens *security.TokenProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			Error(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := tokens.ValidateAccess(raw)
		if err != nil {
			Error(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// RequireRole rejects requests whose user lacks the given role.
func RequireRole(users UserLoader, role string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := users.UserByID(c.Request.Context(), UserID(c))
		if err != nil {
			logger.Error("load user for role check", zap.Error(err))
			Error(c, http.StatusInternalServerError, "internal error")
			return
		}
		if user == nil || !user.HasRole(role) {
			Error(c, http.StatusUnauthorized, "insufficient permissions")
			return
		}
		c.Next()
	}
}

// RequestLogger logs one line per request the way the rest of the service
// logs: structured, with latency and status.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
