package mux

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/sepich/mhtml-cache/pkg/service"
)

const requestIDHeader = "X-Request-Id"

type Options struct {
	MountPrefix string
	MetricsPath string
	// Metrics serves MetricsPath when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

func NewRouter(services service.Service, opts Options) *mux.Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	prefix := "/" + strings.Trim(opts.MountPrefix, "/")

	r := mux.NewRouter()
	// resource keys are path-escaped URLs; match and clean nothing on the decoded form
	r.UseEncodedPath()
	r.SkipClean(true)
	logged := requestLogger(logger)
	r.Use(logged)
	// middleware only runs for matched routes
	r.NotFoundHandler = logged(http.NotFoundHandler())
	r.MethodNotAllowedHandler = logged(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet, http.MethodHead)

	if opts.Metrics != nil && opts.MetricsPath != "" {
		r.Handle(opts.MetricsPath, opts.Metrics).Methods(http.MethodGet)
	}

	r.HandleFunc("/archive", func(w http.ResponseWriter, r *http.Request) {
		// a missing path is rejected by the service with the usual JSON body
		write(w, r, services.Archive(r.Context(), r.URL.Query().Get("path")))
	}).Methods(http.MethodGet)

	r.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		write(w, r, services.Clear())
	}).Methods(http.MethodDelete)

	r.PathPrefix(prefix+"/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		write(w, r, services.Resource(r.URL.EscapedPath()))
	}).Methods(http.MethodGet, http.MethodHead)

	return r
}

func write(w http.ResponseWriter, r *http.Request, resp service.Response) {
	if resp.ETag != "" {
		w.Header().Set("ETag", resp.ETag)
		if resp.Status == http.StatusOK && etagMatches(r.Header.Get("If-None-Match"), resp.ETag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.Status)
	if r.Method != http.MethodHead {
		w.Write(resp.Body)
	}
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			logger.Debug("handled request",
				"id", id,
				"method", r.Method,
				"path", r.URL.EscapedPath(),
				"status", rec.status,
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			)
		})
	}
}
