package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/labstack/echo/v4"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// MaxClients bounds the number of tracked client buckets; the least
	// recently seen client is forgotten first.
	MaxClients int
	// Skipper exempts requests, e.g. health checks.
	Skipper func(c echo.Context) bool
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
		MaxClients:        10000,
	}
}

// tokenBucket implements a token bucket rate limiter.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastRefill: time.Now(),
	}
}

// take consumes a token. When none is left it reports the seconds until the
// next one.
func (b *tokenBucket) take() (ok bool, retryAfter int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if b.refillRate <= 0 {
		return false, 1
	}
	return false, int((1-b.tokens)/b.refillRate) + 1
}

// bucketStore maps client keys to buckets, bounded by an LRU.
type bucketStore struct {
	mu      sync.Mutex
	buckets *lru.Cache[string, *tokenBucket]
	config  RateLimitConfig
}

func newBucketStore(cfg RateLimitConfig) *bucketStore {
	size := cfg.MaxClients
	if size <= 0 {
		size = DefaultRateLimitConfig().MaxClients
	}
	// lru.New only fails for a non-positive size.
	cache, _ := lru.New[string, *tokenBucket](size)
	return &bucketStore{buckets: cache, config: cfg}
}

func (s *bucketStore) get(key string) *tokenBucket {
	if b, ok := s.buckets.Get(key); ok {
		return b
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buckets.Get(key); ok {
		return b
	}
	b := newTokenBucket(s.config.RequestsPerSecond, s.config.BurstSize)
	s.buckets.Add(key, b)
	return b
}

// RateLimit limits requests per client IP.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newBucketStore(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			if ok, retryAfter := store.get(c.RealIP()).take(); !ok {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
