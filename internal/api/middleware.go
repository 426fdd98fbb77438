package api

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/mvdwal/meditrack/internal/metrics"
)

func (s *Server) authMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing authorization header"})
		}

		claims, err := s.issuer.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}

		c.Locals("userID", claims.Subject)
		c.Locals("username", claims.Username)
		return c.Next()
	}
}

// userID returns the authenticated user id set by authMiddleware.
func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("userID").(string)
	return id
}

func (s *Server) metricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		route := c.Route().Path
		metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(c.Response().StatusCode())).Inc()
		return err
	}
}

// ==================== Login throttle ====================

// loginThrottle rate-limits login attempts per client address to blunt
// credential stuffing. One limiter per IP, pruned when idle.
type loginThrottle struct {
	mu      sync.Mutex
	clients map[string]*throttleEntry
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLoginThrottle() *loginThrottle {
	t := &loginThrottle{clients: make(map[string]*throttleEntry)}
	go t.cleanupLoop()
	return t
}

func (t *loginThrottle) limiterFor(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.clients[ip]
	if !ok {
		// One attempt per two seconds, bursting to five.
		entry = &throttleEntry{limiter: rate.NewLimiter(rate.Every(2*time.Second), 5)}
		t.clients[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (t *loginThrottle) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		t.mu.Lock()
		for ip, entry := range t.clients {
			if time.Since(entry.lastSeen) > 30*time.Minute {
				delete(t.clients, ip)
			}
		}
		t.mu.Unlock()
	}
}

func (t *loginThrottle) middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !t.limiterFor(c.IP()).Allow() {
			metrics.LoginThrottledTotal.Inc()
			return c.Status(429).JSON(fiber.Map{"error": "too many login attempts, slow down"})
		}
		return c.Next()
	}
}
