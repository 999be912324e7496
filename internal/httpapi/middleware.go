package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/processlens/engine/pkg/logger"
)

// requestTimeout bounds every handler; mining/rules trigger endpoints get
// their own longer deadline via the orchestrator's own job lifecycle instead
// of blocking the HTTP request.
const requestTimeout = 10 * time.Second

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs each request with a trace id, mirroring the
// teacher's LoggingMiddleware trace-id-plus-wrapped-writer shape.
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			traceID := r.Header.Get("X-Trace-ID")
			if traceID == "" {
				traceID = uuid.NewString()
			}
			w.Header().Set("X-Trace-ID", traceID)

			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			log.WithFields(logrus.Fields{
				"trace_id": traceID,
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   wrapped.status,
				"duration": time.Since(start),
			}).Info("http request")
		})
	}
}

// corsMiddleware allows the dashboard to call the API from any origin and
// short-circuits preflight requests, following httpapi/service.go's
// wrapWithCORS in the teacher.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// timeoutMiddleware bounds every request to requestTimeout using the
// standard library's handler, matching the teacher's ReadTimeout/
// WriteTimeout server-level bound but applied per middleware chain so the
// websocket watch endpoint can opt out.
func timeoutMiddleware(next http.Handler) http.Handler {
	return http.TimeoutHandler(next, requestTimeout, `{"error":{"code":"internal","message":"request timed out"}}`)
}
