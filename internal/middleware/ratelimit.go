package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/chargefix/portal/internal/model"
)

// RateLimiterConfig holds the rate limit settings.
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // general API rate (req/sec) per technician
	GeneralBurst    int           // general burst size
	OTPRate         rate.Limit    // OTP dispatch rate (req/sec) per client IP
	OTPBurst        int           // OTP dispatch burst size
	CleanupInterval time.Duration // stale-entry cleanup interval
}

// DefaultRateLimiterConfig returns the default limits:
// general API 120 req/min per technician, OTP dispatch 5 req/min per IP.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0),
		GeneralBurst:    120,
		OTPRate:         rate.Limit(5.0 / 60.0),
		OTPBurst:        5,
		CleanupInterval: 5 * time.Minute,
	}
}

// keyLimiter pairs a limiter with its last access time for cleanup.
type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter manages per-key token buckets: a general limiter keyed by
// technician id and a stricter OTP-dispatch limiter keyed by client IP
// (OTP dispatch runs before any session exists).
type RateLimiter struct {
	config RateLimiterConfig

	generalMu       sync.RWMutex
	generalLimiters map[string]*keyLimiter

	otpMu       sync.RWMutex
	otpLimiters map[string]*keyLimiter

	stopCh chan struct{}
}

// NewRateLimiter builds a RateLimiter and starts its background cleanup.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:          config,
		generalLimiters: make(map[string]*keyLimiter),
		otpLimiters:     make(map[string]*keyLimiter),
		stopCh:          make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop halts the background cleanup goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware returns the general API limiter. It requires the
// technician in the request context (place it after the session guard).
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tech, err := TechnicianFromContext(r.Context())
			if err != nil {
				WriteAPIError(w, model.NewUnauthenticatedError())
				return
			}

			limiter := rl.getOrCreate(&rl.generalMu, rl.generalLimiters, tech.IdentityID, rl.config.GeneralRate, rl.config.GeneralBurst)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.GeneralRate)
				slog.Warn("rate limit exceeded",
					slog.String("technician_id", tech.IdentityID),
					slog.String("limit_type", "general"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// OTPDispatchMiddleware returns the OTP-dispatch limiter, keyed by client
// IP. It runs on the auth routes, independent of the general limiter.
func (rl *RateLimiter) OTPDispatchMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)

			limiter := rl.getOrCreate(&rl.otpMu, rl.otpLimiters, key, rl.config.OTPRate, rl.config.OTPBurst)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.OTPRate)
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", key),
					slog.String("limit_type", "otp_dispatch"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount returns the number of tracked general limiters.
// For tests and metrics.
func (rl *RateLimiter) GeneralLimiterCount() int {
	rl.generalMu.RLock()
	defer rl.generalMu.RUnlock()
	return len(rl.generalLimiters)
}

// OTPLimiterCount returns the number of tracked OTP limiters.
// For tests and metrics.
func (rl *RateLimiter) OTPLimiterCount() int {
	rl.otpMu.RLock()
	defer rl.otpMu.RUnlock()
	return len(rl.otpLimiters)
}

// getOrCreate fetches or creates the limiter for a key.
func (rl *RateLimiter) getOrCreate(mu *sync.RWMutex, limiters map[string]*keyLimiter, key string, r rate.Limit, burst int) *rate.Limiter {
	mu.RLock()
	kl, exists := limiters[key]
	mu.RUnlock()

	if exists {
		mu.Lock()
		kl.lastAccess = time.Now()
		mu.Unlock()
		return kl.limiter
	}

	mu.Lock()
	defer mu.Unlock()

	// double check
	if kl, exists := limiters[key]; exists {
		kl.lastAccess = time.Now()
		return kl.limiter
	}

	limiter := rate.NewLimiter(r, burst)
	limiters[key] = &keyLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop periodically drops stale limiter entries.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup removes entries idle for more than twice the cleanup interval.
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()

	rl.generalMu.Lock()
	for key, kl := range rl.generalLimiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(rl.generalLimiters, key)
		}
	}
	rl.generalMu.Unlock()

	rl.otpMu.Lock()
	for key, kl := range rl.otpLimiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(rl.otpLimiters, key)
		}
	}
	rl.otpMu.Unlock()
}

// clientIP extracts the remote host, ignoring the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse writes a 429 with a Retry-After hint.
func writeRateLimitResponse(w http.ResponseWriter, limit rate.Limit) {
	retryAfter := int(math.Ceil(1 / float64(limit)))
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]string{
		"code":    "RATE_LIMITED",
		"message": "Demasiadas solicitudes. Espera un momento antes de reintentar.",
	})
}
