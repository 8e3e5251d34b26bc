package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"surfsense/internal/metrics"
	"surfsense/internal/ratelimit"
	"surfsense/internal/security"
	"surfsense/internal/util"
	"surfsense/services/api/internal/app"
	"surfsense/services/api/internal/chatws"
)

const maxJSONBytes = 10 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Gateway        *chatws.Handler
	SignupLimiter  ratelimit.Limiter
	LoginLimiter   ratelimit.Limiter
	Alerter        *security.AuditAlerter
	TrustedProxies *util.TrustedProxies
	CORSOrigins    []string
	MaxUploadBytes int64
}

// Server exposes the HTTP and WebSocket endpoints.
type Server struct {
	app            *app.App
	gateway        *chatws.Handler
	signupLimiter  ratelimit.Limiter
	loginLimiter   ratelimit.Limiter
	alerter        *security.AuditAlerter
	trusted        *util.TrustedProxies
	corsOrigins    []string
	maxUploadBytes int64
	validate       *validator.Validate
	router         chi.Router
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil || cfg.Gateway == nil {
		return nil, fmt.Errorf("app and gateway required")
	}
	if cfg.SignupLimiter == nil || cfg.LoginLimiter == nil {
		return nil, fmt.Errorf("rate limiters required")
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 50 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		gateway:        cfg.Gateway,
		signupLimiter:  cfg.SignupLimiter,
		loginLimiter:   cfg.LoginLimiter,
		alerter:        cfg.Alerter,
		trusted:        cfg.TrustedProxies,
		corsOrigins:    cfg.CORSOrigins,
		maxUploadBytes: maxUpload,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(util.WithRequestID)
	r.Use(util.WithClientIP(s.trusted))
	r.Use(util.WithRequestLog)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(util.WithSecurityHeaders)
	r.Use(util.WithCORS(s.corsOrigins))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	// auth
	r.Post("/register", s.handleRegister)
	r.Post("/token", s.handleLogin)
	r.Post("/logout", s.handleLogout)
	r.Get("/verify-token/{token}", s.handleVerifyToken)

	// search spaces and documents
	r.Post("/user/create/searchspace/", s.handleCreateSearchSpace)
	r.Get("/user/{token}/searchspaces/", s.handleListSearchSpaces)
	r.Get("/user/{token}/searchspace/{searchSpaceID}/", s.handleGetSearchSpace)
	r.Delete("/user/{token}/searchspace/{searchSpaceID}/", s.handleDeleteSearchSpace)
	r.Get("/user/{token}/searchspace/{searchSpaceID}/documents/", s.handleListDocuments)
	r.Post("/user/save/", s.handleSaveDocuments)
	r.Post("/user/uploadfiles/", s.handleUploadFiles)
	r.Post("/searchspace/{searchSpaceID}/delete/docs", s.handleDeleteDocuments)

	// chats
	r.Post("/searchspace/{searchSpaceID}/chat/create", s.handleCreateChat)
	r.Post("/searchspace/{searchSpaceID}/chat/update", s.handleUpdateChat)
	r.Get("/searchspace/{searchSpaceID}/chat/delete/{token}/{chatID}", s.handleDeleteChat)
	r.Get("/searchspace/{searchSpaceID}/chat/{token}/{chatID}", s.handleGetChat)
	r.Get("/searchspace/{searchSpaceID}/chats/{token}", s.handleListChats)

	// podcasts
	r.Route("/searchspace/{searchSpaceID}/podcasts", func(r chi.Router) {
		r.Post("/", s.bearer(s.handleCreatePodcast))
		r.Get("/", s.bearer(s.handleListPodcasts))
		r.Get("/{podcastID}", s.bearer(s.handleGetPodcast))
		r.Put("/{podcastID}", s.bearer(s.handleUpdatePodcast))
		r.Delete("/{podcastID}", s.bearer(s.handleDeletePodcast))
		r.Get("/{podcastID}/download", s.bearer(s.handleDownloadPodcast))
	})
	r.Post("/user/{token}/searchspace/{searchSpaceID}/create-podcast", s.pathToken(s.handleLegacyCreatePodcast))
	r.Get("/user/{token}/searchspace/{searchSpaceID}/podcasts", s.pathToken(s.handleListPodcasts))
	r.Get("/user/{token}/searchspace/{searchSpaceID}/download-podcast/{podcastID}", s.pathToken(s.handleDownloadPodcast))

	// websockets
	r.Get("/beta/chat/{searchSpaceID}/{token}", s.gateway.Chat)
	r.Get("/user/upload/{searchSpaceID}/{token}", s.gateway.Upload)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// tokenHandler receives the caller's raw token.
type tokenHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) bearer(next tokenHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next(w, r, token)
	}
}

func (s *Server) pathToken(next tokenHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next(w, r, chi.URLParam(r, "token"))
	}
}

// decodeJSON reads a JSON body into dst and validates it. It writes a 422
// and returns false on failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "invalid "+name)
		return 0, false
	}
	return id, true
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeAppError maps application errors to status codes. Unknown errors are
// logged and returned as 500 with their message.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrUnauthorized), errors.Is(err, app.ErrBadCredentials):
		if errors.Is(err, app.ErrBadCredentials) {
			w.Header().Set("WWW-Authenticate", "Bearer")
		}
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrInvalidToken):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrUserNotFound),
		errors.Is(err, app.ErrSearchSpaceNotFound),
		errors.Is(err, app.ErrChatNotFound),
		errors.Is(err, app.ErrPodcastNotFound),
		errors.Is(err, app.ErrPodcastFileMissing):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrEmailTaken):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrCredentialsRequired),
		errors.Is(err, app.ErrInvalidPodcastState),
		errors.Is(err, app.ErrInvalidChatList):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request_failed", "route", util.RoutePattern(r), "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIPFromRequest(r)
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := s.clientIP(r)
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"route", util.RoutePattern(r),
		"method", r.Method,
		"ip", ip,
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)

	res, err := s.alerter.Observe(r.Context(), event, outcome, ip)
	if err != nil {
		logger.Warn("security_alert_observe_failed", "event", event, "err", err)
		return
	}
	if res.Triggered {
		logger.Log(r.Context(), slog.LevelError, "security_alert",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", res.Count,
			"threshold", res.Threshold,
			"window", res.Window.String(),
		)
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter, msg string) bool {
	key := r.URL.Path + "|" + s.clientIP(r)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(limiter.RetryAfter().Seconds()))))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}
