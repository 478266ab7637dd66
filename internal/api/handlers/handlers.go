package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/foundry/artifactview/internal/adapters/auth"
	"github.com/foundry/artifactview/internal/core/models"
	"github.com/foundry/artifactview/internal/core/services"
	"github.com/foundry/artifactview/internal/core/views"
	"github.com/foundry/artifactview/internal/util/logging"
	"github.com/foundry/artifactview/internal/util/metrics"
)

// Options tunes the router middleware.
type Options struct {
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit      int
	Compress       bool
	AllowedOrigins []string
	ServiceName    string
}

// Handler holds all HTTP handlers and their dependencies.
type Handler struct {
	view     *views.View
	auth     services.Authenticator
	gatherer prometheus.Gatherer
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	opts     Options
}

// New creates a new Handler. gatherer backs /metrics and may be nil.
func New(view *views.View, authenticator services.Authenticator, gatherer prometheus.Gatherer, m *metrics.Metrics, logger zerolog.Logger, opts Options) *Handler {
	if gatherer == nil {
		gatherer = prometheus.NewRegistry()
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "artifactview"
	}
	return &Handler{
		view:     view,
		auth:     authenticator,
		gatherer: gatherer,
		metrics:  m,
		logger:   logger,
		opts:     opts,
	}
}

// Router returns the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.requestIDMiddleware)
	r.Use(h.loggingMiddleware)
	if len(h.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization"},
			ExposedHeaders: []string{"Location", "X-Request-ID"},
			MaxAge:         int((10 * time.Minute).Seconds()),
		}))
	}
	if h.opts.RateLimit > 0 {
		r.Use(httprate.LimitByIP(h.opts.RateLimit, time.Minute))
	}

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/projects/{project}/packages/{package}", func(r chi.Router) {
		r.Use(h.authMiddleware)
		r.Get("/revisions", h.Revisions)
		r.Get("/rdiff", h.Rdiff)
		r.Get("/builds/{repository}/{arch}/log", h.LiveBuildLog)
		r.Get("/builds/{repository}/{arch}/log/poll", h.PollBuildLog)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	var handler http.Handler = r
	if h.opts.Compress {
		handler = gzhttp.GzipHandler(handler)
	}
	return otelhttp.NewHandler(handler, h.opts.ServiceName)
}

// requestIDMiddleware adds a unique request ID to each request.
func (h *Handler) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		ctx := logging.WithRequestID(r.Context(), id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs each request.
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logging.LogRequest(h.logger, r.Context(), r.Method, r.URL.Path, rw.status, rw.written, time.Since(start))
	})
}

// authMiddleware validates the bearer token.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing or invalid authorization header")
			return
		}
		if !h.auth.ValidateToken(token) {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Revisions handles GET .../revisions
func (h *Handler) Revisions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := parsePage(q.Get("page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := h.view.Revisions(r.Context(), views.RevisionsRequest{
		Project: param(r, "project"),
		Package: param(r, "package"),
		Rev:     q.Get("rev"),
		Page:    page,
		ShowAll: parseBool(q.Get("show_all")),
	})
	writeResult(h, w, r, "revisions", res)
}

// Rdiff handles GET .../rdiff
func (h *Handler) Rdiff(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := views.RdiffRequest{
		Project:    param(r, "project"),
		Package:    param(r, "package"),
		OldRev:     q.Get("orev"),
		OldProject: q.Get("oproject"),
		OldPackage: q.Get("opackage"),
		FullDiff:   parseBool(q.Get("full_diff")),
	}
	if q.Has("rev") {
		rev := q.Get("rev")
		req.Rev = &rev
	}
	writeResult(h, w, r, "rdiff", h.view.Rdiff(r.Context(), req))
}

// LiveBuildLog handles GET .../builds/{repository}/{arch}/log
func (h *Handler) LiveBuildLog(w http.ResponseWriter, r *http.Request) {
	res := h.view.LiveBuildLog(r.Context(), buildLogRequest(r))
	if res.Outcome == views.OutcomeSuccess {
		h.metrics.AddLogBytes(len(res.Model.Log))
	}
	w.Header().Set("Cache-Control", "no-store")
	writeResult(h, w, r, "live_build_log", res)
}

// PollBuildLog handles GET .../builds/{repository}/{arch}/log/poll
func (h *Handler) PollBuildLog(w http.ResponseWriter, r *http.Request) {
	req := views.PollRequest{BuildLogRequest: buildLogRequest(r)}
	w.Header().Set("Cache-Control", "no-store")

	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			msg := fmt.Sprintf("Invalid offset: %s", raw)
			writeResult(h, w, r, "poll_build_log", views.Result[views.PollPage]{
				Outcome: views.OutcomeInlineError,
				Model: views.PollPage{
					Project:     req.Project,
					Package:     req.Package,
					PackageName: req.Package,
					Repository:  req.Repository,
					Arch:        req.Arch,
					Errors:      msg,
				},
				Message: msg,
				Err:     fmt.Errorf("%w: offset %q", services.ErrValidation, raw),
			})
			return
		}
		req.Offset = offset
	}

	res := h.view.PollBuildLog(r.Context(), req)
	h.metrics.AddLogBytes(len(res.Model.LogChunk))
	writeResult(h, w, r, "poll_build_log", res)
}

// writeResult renders a view result. Redirects become 303 See Other with the
// fallback page in Location; inline errors keep a 200 and carry the message
// in the model.
func writeResult[T any](h *Handler, w http.ResponseWriter, r *http.Request, view string, res views.Result[T]) {
	h.metrics.CountView(view, string(res.Outcome))

	switch res.Outcome {
	case views.OutcomeRedirect:
		location := res.Redirect.Path()
		logging.For(h.logger, r.Context()).Info().
			Err(res.Err).
			Str("view", view).
			Str("redirect_to", location).
			Msg(res.Message)
		w.Header().Set("Location", location)
		writeJSON(w, http.StatusSeeOther, models.RedirectResponse{
			Error:      errorCode(res.Err),
			Message:    res.Message,
			RedirectTo: location,
		})
	case views.OutcomeInlineError:
		logging.For(h.logger, r.Context()).Info().
			Err(res.Err).
			Str("view", view).
			Msg(res.Message)
		writeJSON(w, http.StatusOK, res.Model)
	default:
		writeJSON(w, http.StatusOK, res.Model)
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, services.ErrValidation):
		return "validation_error"
	case errors.Is(err, services.ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, services.ErrNotFound):
		return "not_found"
	case errors.Is(err, services.ErrBackendUnavailable):
		return "backend_unavailable"
	default:
		return "error"
	}
}

func buildLogRequest(r *http.Request) views.BuildLogRequest {
	return views.BuildLogRequest{
		Project:    param(r, "project"),
		Package:    param(r, "package"),
		Repository: param(r, "repository"),
		Arch:       param(r, "arch"),
	}
}

// param returns the decoded URL parameter. chi matches on the raw path when
// the request carried escapes, otherwise the value is already decoded.
func param(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}
	if decoded, err := url.PathUnescape(v); err == nil {
		return decoded
	}
	return v
}

func parsePage(s string) (int, error) {
	if s == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid page %q", s)
	}
	return max(n, 1), nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{
		Error:   http.StatusText(status),
		Code:    status,
		Message: msg,
	})
}

// responseWriter wraps http.ResponseWriter to capture status and bytes written.
type responseWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
