package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/metrics"
	"github.com/saltoriousSIG/peeples-pins-generator/pkg/logger"
)

// openPaths are served without authentication.
var openPaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

// WrapWithAuth enforces static bearer token auth on every route except the
// open paths. Tokens are compared in constant time.
func WrapWithAuth(next http.Handler, tokens []string, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if openPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if presented == "" || presented == r.Header.Get("Authorization") {
			writeError(w, http.StatusUnauthorized, errMissingToken)
			return
		}
		for _, token := range tokens {
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}
		log.Warnf("rejected request to %s: bad token", r.URL.Path)
		writeError(w, http.StatusUnauthorized, errBadToken)
	})
}

// WithRateLimit applies a global token-bucket limit across all callers. The
// open paths are exempt so health checks and scrapes never starve.
func WithRateLimit(next http.Handler, rps float64, burst int) http.Handler {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if openPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if !limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithMetrics records request counts, latency, and in-flight gauge per route.
func WithMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		metrics.RequestStarted()
		defer metrics.RequestFinished()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.RecordRequest(routeLabel(r.URL.Path), strconv.Itoa(rec.status), time.Since(start).Seconds())
	})
}

// WithCORS answers preflight requests and marks responses for browser use.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// routeLabel collapses paths with embedded ids to their route prefix so the
// metric cardinality stays bounded.
func routeLabel(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.Index(trimmed, "/"); i >= 0 {
		trimmed = trimmed[:i]
	}
	if trimmed == "" {
		return "/"
	}
	return "/" + trimmed
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

var (
	errMissingToken = apiError("missing bearer token")
	errBadToken     = apiError("invalid bearer token")
	errRateLimited  = apiError("rate limit exceeded")
)

type apiError string

func (e apiError) Error() string { return string(e) }
