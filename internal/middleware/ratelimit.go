package middleware

import (
	"log/slog"
	"math"
	"mime"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"resale-insights/internal/config"
	"resale-insights/internal/errors"
	"resale-insights/internal/observability"
)

const clientIdleTTL = 5 * time.Minute

// ClientLimiter keeps one token bucket per client key. Buckets idle for
// longer than clientIdleTTL are swept on later calls.
type ClientLimiter struct {
	limit   rate.Limit
	burst   int
	enabled bool
	now     func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastSweep time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewClientLimiter(limit rate.Limit, burst int, enabled bool) *ClientLimiter {
	return &ClientLimiter{
		limit:   limit,
		burst:   burst,
		enabled: enabled,
		now:     time.Now,
		clients: make(map[string]*clientBucket),
	}
}

// NewRateLimiter is the general per-client budget for every route.
func NewRateLimiter(cfg config.SecurityConfig) *ClientLimiter {
	return NewClientLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, cfg.EnableRateLimit)
}

// NewIngestLimiter is the per-client budget for uploads.
func NewIngestLimiter(cfg config.SecurityConfig) *ClientLimiter {
	perMinute := max(cfg.IngestRatePerMinute, 1)
	return NewClientLimiter(rate.Every(time.Minute/time.Duration(perMinute)), max(cfg.IngestBurst, 1), cfg.EnableRateLimit)
}

func (l *ClientLimiter) Allow(key string) bool {
	if !l.enabled {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > clientIdleTTL {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > clientIdleTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[key]
	if !ok {
		c = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Clients is the number of tracked client buckets.
func (l *ClientLimiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// retryAfter is the whole seconds until one token refills.
func (l *ClientLimiter) retryAfter() string {
	if l.limit <= 0 || l.limit == rate.Inf {
		return "1"
	}
	// Trim float noise so a one-per-minute limit reads 60, not 61.
	return strconv.Itoa(int(math.Ceil(1/float64(l.limit) - 1e-9)))
}

func RateLimit(limiter *ClientLimiter, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !limiter.Allow(ip) {
				requestID := observability.GetRequestID(r.Context())
				logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path, "request_id", requestID)
				w.Header().Set("Retry-After", limiter.retryAfter())
				errors.WriteError(w, logger, errors.RateLimit("Too many requests"), requestID)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IngestGuard fronts the upload route. Requests that are not multipart, or
// that declare a body above maxBytes, are refused before they spend the
// client's upload budget. A zero maxBytes skips the size check.
func IngestGuard(limiter *ClientLimiter, maxBytes int64, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := observability.GetRequestID(r.Context())

			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mediaType != "multipart/form-data" {
				errors.WriteError(w, logger, errors.UnsupportedMediaType("Upload must be multipart/form-data"), requestID)
				return
			}

			if maxBytes > 0 && r.ContentLength > maxBytes {
				appErr := errors.PayloadTooLarge("Upload exceeds the size limit").
					WithDetails(strconv.FormatInt(maxBytes, 10) + " bytes allowed")
				errors.WriteError(w, logger, appErr, requestID)
				return
			}

			ip := clientIP(r)
			if !limiter.Allow(ip) {
				logger.Warn("ingest rate limit exceeded", "ip", ip, "request_id", requestID)
				w.Header().Set("Retry-After", limiter.retryAfter())
				errors.WriteError(w, logger, errors.RateLimit("Too many uploads, retry later"), requestID)
				return
			}

			logger.Info("upload accepted", "ip", ip, "content_length", r.ContentLength, "request_id", requestID)
			next.ServeHTTP(w, r)
		})
	}
}
