package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/querylens/intent-platform/pkg/logging"
)

// RequestLogger emits structured logs for every HTTP request. Tenant
// traffic carries its org id so per-tenant volume can be read straight
// off the logs.
func RequestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			logger.Info("request started",
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", reqID,
				"remote_ip", r.RemoteAddr,
			)
			next.ServeHTTP(w, r)

			fields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", reqID,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if orgID := strings.TrimSpace(r.Header.Get("X-Org-Id")); orgID != "" {
				fields = append(fields, "org_id", orgID)
			}
			logger.Info("request completed", fields...)
		})
	}
}
