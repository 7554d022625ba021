// Package server assembles the HTTP surface: routing, auth middleware, and the
// standard response envelope.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"transient-broker/backend/internal/security"
	userdomain "transient-broker/backend/internal/user/domain"
)

// RouteRegistrar registers a handler's routes on the authenticated API group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// ManagedRouteRegistrar registers routes that need a role-gating middleware
// for mutations.
type ManagedRouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup, requireManage gin.HandlerFunc)
}

// Pinger reports backing-store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config carries everything the router needs.
type Config struct {
	Logger *zap.Logger
	Tokens *security.TokenProvider
	Users  UserLoader
	DB     Pinger

	Robots ManagedRouteRegistrar
	TNS    RouteRegistrar
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(cfg Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestLogger(cfg.Logger))

	engine.GET("/healthz", healthz(cfg.DB))
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api", AuthRequired(cfg.Tokens))
	cfg.Robots.RegisterRoutes(api, RequireRole(cfg.Users, userdomain.RoleManageTNSRobots, cfg.Logger))
	cfg.TNS.RegisterRoutes(api)

	return engine
}

func healthz(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
