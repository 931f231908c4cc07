package throttle

import (
	"hash/fnv"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxKeyLength is the maximum allowed length for a subject key before
// hashing, to keep the registry's key space compact.
const maxKeyLength = 64

// KeyFunc extracts the rate-limited subject from the request.
type KeyFunc func(r *http.Request) string

// Composite combines multiple key functions into one. Long keys (>64 chars)
// are hashed with FNV-1a for storage efficiency.
func Composite(keyFuncs ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(keyFuncs))
		for _, fn := range keyFuncs {
			if key := fn(r); key != "" {
				parts = append(parts, key)
			}
		}

		if len(parts) == 0 {
			return ""
		}
		if len(parts) == 1 && len(parts[0]) <= maxKeyLength {
			return parts[0]
		}

		combined := strings.Join(parts, ":")
		if len(combined) > maxKeyLength {
			h := fnv.New64a()
			h.Write([]byte(combined))
			// Base36 keeps the hashed key around 13 chars.
			return strconv.FormatUint(h.Sum64(), 36)
		}
		return combined
	}
}

// MiddlewareOption configures middleware behavior.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	cost     int64
	skipFunc func(r *http.Request) bool
	onDenied func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration)
	log      *slog.Logger
}

// WithRequestCost sets how many tokens a single request consumes.
// Non-positive values are ignored; the default is 1.
func WithRequestCost(cost int64) MiddlewareOption {
	return func(c *middlewareConfig) {
		if cost > 0 {
			c.cost = cost
		}
	}
}

// WithSkipFunc sets a predicate that exempts matching requests from limiting.
func WithSkipFunc(fn func(r *http.Request) bool) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.skipFunc = fn
	}
}

// WithDeniedHandler sets a custom handler for denied requests.
func WithDeniedHandler(fn func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration)) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.onDenied = fn
	}
}

// WithMiddlewareLogger sets the logger for internal middleware errors.
// Nil is ignored.
func WithMiddlewareLogger(log *slog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		if log != nil {
			c.log = log
		}
	}
}

// Middleware creates HTTP middleware that throttles requests per subject key
// using one bucket per key from the registry. Requests without a key and
// internal errors fail open so a limiter defect cannot take the service down.
func Middleware(reg *Registry, keyFunc KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if keyFunc == nil {
		panic("throttle.Middleware: keyFunc is required")
	}

	config := &middlewareConfig{
		cost: 1,
		log:  slog.New(slog.DiscardHandler),
		onDenied: func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		},
	}
	for _, opt := range opts {
		opt(config)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.skipFunc != nil && config.skipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			bucket := reg.Bucket(key)
			granted, err := bucket.TryConsume(config.cost)
			if err != nil {
				config.log.Error("throttle middleware check failed", slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(bucket.Capacity(), 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(bucket.Available(), 10))

			if !granted {
				retryAfter, waitErr := bucket.EstimateWait(config.cost)
				if waitErr != nil {
					retryAfter = time.Second
				}
				config.onDenied(w, r, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
