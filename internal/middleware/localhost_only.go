package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LocalhostOnly allows loopback plus whitelisted IPs or CIDR ranges
type LocalhostOnly struct {
	logger  *logrus.Logger
	allowed []*net.IPNet
	exact   []net.IP
}

// NewLocalhostOnly parses allowedIPs; invalid entries are logged and skipped
func NewLocalhostOnly(logger *logrus.Logger, allowedIPs []string) *LocalhostOnly {
	l := &LocalhostOnly{logger: logger}
	for _, raw := range allowedIPs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			_, ipNet, err := net.ParseCIDR(raw)
			if err != nil {
				logger.WithField("allowed", raw).Warn("Invalid CIDR in allowedIPs")
				continue
			}
			l.allowed = append(l.allowed, ipNet)
			continue
		}
		ip := net.ParseIP(raw)
		if ip == nil {
			logger.WithField("allowed", raw).Warn("Invalid IP in allowedIPs")
			continue
		}
		l.exact = append(l.exact, ip)
	}
	return l
}

// Restrict aborts with 403 unless the client is allowed
func (l *LocalhostOnly) Restrict() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !l.isAllowedIP(clientIP) {
			l.logger.WithFields(logrus.Fields{
				"client_ip": clientIP,
				"path":      c.Request.URL.Path,
			}).Warn("Reject non-whitelisted access")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "This endpoint is only accessible from allowed IP addresses",
				"details": gin.H{"code": "IP_NOT_ALLOWED"},
			})
			return
		}
		c.Next()
	}
}

func (l *LocalhostOnly) isAllowedIP(raw string) bool {
	ip := net.ParseIP(raw)
	if ip == nil {
		return raw == "localhost"
	}
	if ip.IsLoopback() {
		return true
	}
	for _, e := range l.exact {
		if e.Equal(ip) {
			return true
		}
	}
	for _, n := range l.allowed {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
