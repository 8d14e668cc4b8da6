package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/task"
	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-tasks-go/pkg/utilities"
)

const requestIDHeader = "X-Request-ID"

// Deps are the handlers mounted by RegisterRoutes.
type Deps struct {
	Guard       *auth.Guard
	Users       *user.Handler
	Tasks       *task.Handler
	CORSOrigins []string
}

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs each request at debug level and records it in the HTTP metrics,
// labelled by the route template matched in routes. It also assigns X-Request-ID.
func LoggingMiddleware(logger *zap.SugaredLogger, routes *mux.Router) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = utilities.NewKSUID()
			}
			w.Header().Set(requestIDHeader, reqID)

			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}

			route := routeTemplate(routes, r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(dur.Seconds())

			logger.Debugw("http request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// routeTemplate keeps metric labels bounded: /api/tasks/{id}, never the raw id.
func routeTemplate(routes *mux.Router, r *http.Request) string {
	var match mux.RouteMatch
	if routes == nil || !routes.Match(r, &match) || match.Route == nil {
		return "unmatched"
	}
	tpl, err := match.Route.GetPathTemplate()
	if err != nil {
		return "unmatched"
	}
	return tpl
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Cache-Control", "no-store")

			// HSTS only makes sense over TLS
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

type recoveryLogger struct {
	logger *zap.SugaredLogger
}

func (l recoveryLogger) Println(v ...any) {
	l.logger.Errorln(append([]any{"panic recovered:"}, v...)...)
}

// RegisterRoutes mounts every endpoint on a gorilla/mux router and wraps it with
// recovery, logging, security headers and CORS, outermost first.
func RegisterRoutes(logger *zap.SugaredLogger, d Deps) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("API Working"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	guarded := func(fn http.HandlerFunc) http.Handler {
		return d.Guard.Require(fn)
	}

	api := r.PathPrefix("/api").Subrouter()

	// user routes
	api.HandleFunc("/user/register", d.Users.Register).Methods(http.MethodPost)
	api.HandleFunc("/user/login", d.Users.Login).Methods(http.MethodPost)
	api.Handle("/user/me", guarded(d.Users.Me)).Methods(http.MethodGet)
	api.Handle("/user/profile", guarded(d.Users.UpdateProfile)).Methods(http.MethodPut)
	api.Handle("/user/password", guarded(d.Users.ChangePassword)).Methods(http.MethodPut)

	// task routes
	api.Handle("/tasks", guarded(d.Tasks.Create)).Methods(http.MethodPost)
	api.Handle("/tasks", guarded(d.Tasks.List)).Methods(http.MethodGet)
	api.Handle("/tasks/{id}", guarded(d.Tasks.GetOne)).Methods(http.MethodGet)
	api.Handle("/tasks/{id}", guarded(d.Tasks.Update)).Methods(http.MethodPut)
	api.Handle("/tasks/{id}", guarded(d.Tasks.Delete)).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusNotFound, httpx.Envelope{Success: false, Message: "route not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusMethodNotAllowed, httpx.Envelope{Success: false, Message: "method not allowed"})
	})

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", requestIDHeader}),
		handlers.ExposedHeaders([]string{requestIDHeader}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: logger}),
		handlers.PrintRecoveryStack(true),
	)

	return recovery(LoggingMiddleware(logger, r)(SecurityHeadersMiddleware()(cors(r))))
}
