package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kraklabs/repoanalyzer/internal/apperror"
)

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// requestID middleware stamps every request with an X-Request-Id, reusing
// one supplied by the caller so traces survive a proxy hop.
func requestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-Id")
			if id == "" {
				id = fmt.Sprintf("%d", time.Now().UnixNano())
			}
			w.Header().Set("X-Request-Id", id)
			ctx := context.WithValue(r.Context(), contextKeyRequestID, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// recovery turns a panic inside a handler into a 500 instead of crashing the
// worker goroutine serving the request.
func recovery(logger *slog.Logger, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("api.panic_recovered", "path", r.URL.Path, "panic", rec)
					writeError(w, apperror.NewInternal(fmt.Sprintf("%v", rec), nil), env)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// requestLog logs one line per request after it completes, in the style of
// flyingrobots-go-redis-work-queue's audit middleware but unconditional rather than limited to
// destructive operations.
func requestLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Info("api.request",
				"method", r.Method, "path", r.URL.Path,
				"status", sw.status, "duration_ms", time.Since(start).Milliseconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// auth checks the flat x-api-key header against the configured shared
// secret. An empty configured key disables the check (the development
// bypass the external interfaces design calls for).
func auth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if r.Header.Get("x-api-key") != apiKey {
				writeError(w, apperror.NewUnauthorized("missing or invalid x-api-key", nil), "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateBucket is a single caller's token bucket, grounded on
// flyingrobots-go-redis-work-queue/internal/admin-api/middleware.go's
// rateBucket/consume pair.
type rateBucket struct {
	mu        sync.Mutex
	tokens    float64
	lastFill  time.Time
	maxTokens int
	fillRate  float64 // tokens per second
}

func (b *rateBucket) consume() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens = minFloat(float64(b.maxTokens), b.tokens+elapsed*b.fillRate)
	b.lastFill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// rateLimiter buckets callers by client IP and enforces one window. It is
// used twice: once for the global limiter (every route) and once more,
// separately keyed, as the strict limiter in front of POST /analyze.
type rateLimiter struct {
	buckets   sync.Map
	maxTokens int
	fillRate  float64
	windowSec int
}

// newRateLimiter builds a limiter allowing maxRequests per window.
func newRateLimiter(maxRequests int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		maxTokens: maxRequests,
		fillRate:  float64(maxRequests) / window.Seconds(),
		windowSec: int(window.Seconds()),
	}
}

func (l *rateLimiter) middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			val, _ := l.buckets.LoadOrStore(key, &rateBucket{
				tokens:    float64(l.maxTokens),
				lastFill:  time.Now(),
				maxTokens: l.maxTokens,
				fillRate:  l.fillRate,
			})
			bucket := val.(*rateBucket)

			if !bucket.consume() {
				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", l.maxTokens))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", l.windowSec))
				writeError(w, apperror.NewRateLimited("rate limit exceeded", nil), "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		parts := strings.Split(ip, ",")
		return strings.TrimSpace(parts[0])
	}
	return r.RemoteAddr
}
