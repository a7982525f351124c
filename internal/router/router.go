package router

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"bridge-backend/internal/config"
	"bridge-backend/internal/handlers"
	"bridge-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept, X-Request-ID"
)

// Handlers everything the router mounts
type Handlers struct {
	Views     *handlers.BridgeViewHandler
	Actions   *handlers.ActionHandler
	WebSocket *handlers.WebSocketHandler
	Health    *handlers.HealthHandler
}

// corsMiddleware CORS middleware
// Priority: CORS_ALLOWED_ORIGINS env > YAML config > allow all
func corsMiddleware(cfg config.CORSConfig, logger *logrus.Logger) gin.HandlerFunc {
	allowedOrigins := cfg.AllowedOrigins
	allowCredentials := cfg.AllowCredentials
	if env := os.Getenv("CORS_ALLOWED_ORIGINS"); env != "" {
		allowedOrigins = nil
		for _, o := range strings.Split(env, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				allowedOrigins = append(allowedOrigins, trimmed)
			}
		}
		allowCredentials = true
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 3600
	}
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"

	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "":
			if _, ok := allowed[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			} else {
				logger.WithFields(logrus.Fields{
					"request_origin": origin,
					"path":           c.Request.URL.Path,
				}).Warn("🚫 CORS: Origin not in whitelist")
			}
		}

		c.Header("Access-Control-Allow-Methods", corsAllowMethods)
		c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
		if allowCredentials && !allowAll {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// SetupRouter builds the gin engine for the bridge API
func SetupRouter(cfg *config.Config, h Handlers, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(corsMiddleware(cfg.CORS, logger))

	auth := middleware.NewAuthMiddleware(cfg.Auth, logger)
	metricsGuard := middleware.NewLocalhostOnly(logger, cfg.Server.MetricsAllowedIPs)

	r.GET("/ping", handlers.PingHandler)
	r.GET("/health", h.Health.Health)
	r.GET("/metrics", metricsGuard.Restrict(), gin.WrapH(promhttp.Handler()))
	r.GET("/ws", h.WebSocket.HandleWebSocket)

	api := r.Group("/api")
	{
		api.GET("/chains", h.Views.ListChains)

		chain := api.Group("/chains/:chainId")
		chain.GET("/deposits", h.Views.GetDeposits)
		chain.GET("/withdraws", h.Views.GetWithdraws)
		chain.GET("/registry", h.Views.GetRegistry)
		chain.GET("/tokens/:address", h.Views.GetTokenMetadata)

		operator := chain.Group("", auth.RequireOperator())
		operator.POST("/deposits/:hash/approve", h.Actions.ApproveWithdraw)
		operator.POST("/withdraws/:hash/execute", h.Actions.ExecuteWithdraw)
		operator.POST("/refresh", h.Actions.RefreshChain)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Endpoint not found",
			"details": gin.H{"path": c.Request.URL.Path},
		})
	})

	return r
}
