package adapthttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gorilla/mux"
	"golang.org/x/oauth2"

	"bmitracker/internal/app"
	"bmitracker/internal/domain"
	"bmitracker/internal/metrics"
)

// OIDCConfig holds the single sign-on provider. Enabled is false when SSO is
// not configured.
type OIDCConfig struct {
	Enabled      bool
	Provider     *oidc.Provider
	OAuth2Config oauth2.Config
}

// Server is the driving HTTP adapter that routes requests to application
// services.
type Server struct {
	bmi     *app.BMIService
	charts  *app.ChartsService
	authSvc *app.AuthService
	webDir  string

	oidcConfig       OIDCConfig
	metrics          *metrics.Collector
	logger           *slog.Logger
	trustForwardAuth bool
	healthCheck      func(context.Context) error

	disableAuth bool
	fixedUser   domain.User
}

// New creates a Server wired to the given application services.
func New(bs *app.BMIService, cs *app.ChartsService, as *app.AuthService, webDir string) *Server {
	return &Server{bmi: bs, charts: cs, authSvc: as, webDir: webDir}
}

// WithOIDC enables the SSO endpoints.
func (s *Server) WithOIDC(cfg OIDCConfig) *Server {
	s.oidcConfig = cfg
	return s
}

// WithMetrics records request metrics and exposes them at /metrics.
func (s *Server) WithMetrics(m *metrics.Collector) *Server {
	s.metrics = m
	return s
}

// WithLogger sets the request logger. slog.Default is used otherwise.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	s.logger = l
	return s
}

// WithHealthCheck makes /api/health report 503 while check fails.
func (s *Server) WithHealthCheck(check func(context.Context) error) *Server {
	s.healthCheck = check
	return s
}

// WithForwardAuth trusts the Remote-User header set by a fronting proxy.
func (s *Server) WithForwardAuth(trust bool) *Server {
	s.trustForwardAuth = trust
	return s
}

// WithoutAuth bypasses authentication and serves every request as u. Tests only.
func (s *Server) WithoutAuth(u domain.User) *Server {
	s.disableAuth = true
	s.fixedUser = u
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.healthCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.healthCheck(ctx); err != nil {
			s.log().WarnContext(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "storage unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	if s.metrics != nil {
		r.Use(s.metricsMiddleware)
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/config", s.handleConfig).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", s.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/sso/login", s.handleSSOLogin).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/sso/callback", s.handleSSOCallback).Methods(http.MethodGet)
	r.Handle("/api/auth/me", s.authMiddleware(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)

	protected := func(path string, h http.HandlerFunc, method string) {
		r.Handle(path, s.authMiddleware(h)).Methods(method)
	}
	protected("/api/bmi/categories", s.handleCategories, http.MethodGet)
	protected("/api/bmi/evaluate", s.handleEvaluate, http.MethodPost)
	protected("/api/bmi/records", s.handleRecordCreate, http.MethodPost)
	protected("/api/bmi/history", s.handleHistory, http.MethodGet)
	protected("/api/bmi/history.csv", s.handleHistoryCSV, http.MethodGet)
	protected("/api/bmi/stats", s.handleStats, http.MethodGet)
	protected("/api/charts/trends", s.handleChartsTrends, http.MethodGet)

	r.NotFoundHandler = spaFromDisk(s.webDir)

	return s.requestIDMiddleware(s.loggingMiddleware(withNoCache(r)))
}
