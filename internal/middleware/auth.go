package middleware

import (
	"net/http"
	"strings"

	"bridge-backend/internal/config"
	"bridge-backend/internal/handlers"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AuthMiddleware operator JWT
type AuthMiddleware struct {
	secret string
	issuer string
	logger *logrus.Logger
}

// NewAuthMiddleware creates the operator JWT middleware
func NewAuthMiddleware(cfg config.AuthConfig, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		secret: cfg.JWTSecret,
		issuer: cfg.Issuer,
		logger: logger,
	}
}

// RequireOperator rejects requests without a valid operator token
func (a *AuthMiddleware) RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		fields := logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}

		if a.secret == "" {
			a.logger.WithFields(fields).Warn("JWT secret not configured, operator endpoints disabled")
			a.reject(c, http.StatusServiceUnavailable, "Operator actions disabled", "No JWT secret is configured on this server.", "AUTH_DISABLED")
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			a.logger.WithFields(fields).Warn("JWT failed - missing Authorization header")
			a.reject(c, http.StatusUnauthorized, "Authentication required", "Missing Authorization header. Please provide a valid JWT token.", "MISSING_AUTH_HEADER")
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			a.logger.WithFields(fields).Warn("JWT failed - malformed Authorization header")
			a.reject(c, http.StatusUnauthorized, "Invalid authorization format", "Authorization header must be in format: Bearer <token>", "INVALID_AUTH_FORMAT")
			return
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if tokenString == "" {
			a.logger.WithFields(fields).Warn("JWT failed - empty token")
			a.reject(c, http.StatusUnauthorized, "Empty token", "Token cannot be empty", "EMPTY_TOKEN")
			return
		}

		claims, err := handlers.ValidateOperatorToken(a.secret, a.issuer, tokenString)
		if err != nil {
			fields["error"] = err.Error()
			a.logger.WithFields(fields).Warn("JWT failed - token verification failed")
			a.reject(c, http.StatusUnauthorized, "Invalid or expired token", err.Error(), "INVALID_TOKEN")
			return
		}

		c.Set("operator", claims.Operator)
		fields["operator"] = claims.Operator
		a.logger.WithFields(fields).Debug("JWT success")

		c.Next()
	}
}

func (a *AuthMiddleware) reject(c *gin.Context, status int, errType, message, code string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   errType,
		"message": message,
		"details": gin.H{"code": code},
	})
}
