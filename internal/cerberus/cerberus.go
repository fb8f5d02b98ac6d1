// Package cerberus enforces block decisions on incoming requests.
package cerberus

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Wikid82/aegis/internal/logger"
	"github.com/Wikid82/aegis/internal/metrics"
	"github.com/Wikid82/aegis/internal/models"
)

// refreshInterval bounds how stale the cached rules may get when decisions
// change outside this process (another instance, a manual edit).
const refreshInterval = 30 * time.Second

// Cerberus is the request gate. Executed BlockIP actions land here as
// SecurityDecision rows and take effect on the next request.
type Cerberus struct {
	db      *gorm.DB
	enabled bool

	mu       sync.RWMutex
	rules    []rule
	loadedAt time.Time
	now      func() time.Time
}

type rule struct {
	decision models.SecurityDecision
	ip       net.IP
	cidr     *net.IPNet
}

// New creates a new Cerberus instance
func New(db *gorm.DB, enabled bool) *Cerberus {
	return &Cerberus{db: db, enabled: enabled, now: time.Now}
}

// IsEnabled returns whether the gate is active.
func (c *Cerberus) IsEnabled() bool {
	return c.enabled && c.db != nil
}

// Invalidate drops the cached rules; the next request reloads them.
func (c *Cerberus) Invalidate() {
	c.mu.Lock()
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}

// Blocked reports whether ip matches an active block decision, and which.
func (c *Cerberus) Blocked(ip string) (bool, *models.SecurityDecision) {
	client := net.ParseIP(ip)
	if client == nil {
		return false, nil
	}

	rules, err := c.load()
	if err != nil {
		logger.Log().WithError(err).Warn("Cerberus: failed to load decisions; allowing request")
		return false, nil
	}
	for i := range rules {
		if rules[i].matches(client) {
			d := rules[i].decision
			return true, &d
		}
	}
	return false, nil
}

func (c *Cerberus) load() ([]rule, error) {
	c.mu.RLock()
	if !c.loadedAt.IsZero() && c.now().Sub(c.loadedAt) < refreshInterval {
		rules := c.rules
		c.mu.RUnlock()
		return rules, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loadedAt.IsZero() && c.now().Sub(c.loadedAt) < refreshInterval {
		return c.rules, nil
	}

	var decisions []models.SecurityDecision
	if err := c.db.Where("action = ?", "block").Find(&decisions).Error; err != nil {
		return nil, err
	}
	rules := make([]rule, 0, len(decisions))
	for _, d := range decisions {
		r := rule{decision: d}
		if strings.Contains(d.IP, "/") {
			if _, cidr, err := net.ParseCIDR(d.IP); err == nil {
				r.cidr = cidr
			}
		} else {
			r.ip = net.ParseIP(d.IP)
		}
		if r.cidr == nil && r.ip == nil {
			continue
		}
		rules = append(rules, r)
	}
	c.rules = rules
	c.loadedAt = c.now()
	return rules, nil
}

func (r rule) matches(ip net.IP) bool {
	if r.cidr != nil {
		return r.cidr.Contains(ip)
	}
	return r.ip.Equal(ip)
}

// Middleware returns a Gin middleware that rejects blocked client IPs.
func (c *Cerberus) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !c.IsEnabled() {
			ctx.Next()
			return
		}

		clientIP := ctx.ClientIP()
		if blocked, d := c.Blocked(clientIP); blocked {
			logger.Log().WithFields(map[string]interface{}{
				"source":        "cerberus",
				"decision":      "block",
				"decision_uuid": d.UUID,
				"ip":            clientIP,
				"path":          ctx.Request.URL.Path,
			}).Warn("Cerberus blocked request")
			metrics.IncGateBlocked()
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Blocked by security decision"})
			return
		}

		ctx.Next()
	}
}
