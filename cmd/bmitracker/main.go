package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	adapthttp "bmitracker/internal/adapter/http"
	"bmitracker/internal/adapter/memory"
	"bmitracker/internal/adapter/postgres"
	"bmitracker/internal/adapter/sqlite"
	"bmitracker/internal/app"
	"bmitracker/internal/config"
	"bmitracker/internal/domain"
	"bmitracker/internal/metrics"
)

type storage struct {
	records  domain.RecordRepository
	users    domain.UserRepository
	sessions domain.SessionRepository
	ping     func(context.Context) error
	close    func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("bmitracker stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() { _ = store.close() }()
	logger.Info("storage ready", "driver", cfg.Storage.Driver)

	collector := metrics.NewCollector("bmitracker")
	bmiSvc := app.NewBMIService(store.records, collector)
	chartsSvc := app.NewChartsService(store.records)
	authSvc := app.NewAuthService(store.users, store.sessions, cfg.Session.TTL)

	srv := adapthttp.New(bmiSvc, chartsSvc, authSvc, cfg.WebDir).
		WithMetrics(collector).
		WithLogger(logger).
		WithForwardAuth(cfg.Auth.TrustForwardAuth)
	if store.ping != nil {
		srv.WithHealthCheck(store.ping)
	}

	if cfg.Auth.OIDC.Enabled() {
		oc, err := setupOIDC(ctx, cfg.Auth.OIDC)
		if err != nil {
			return fmt.Errorf("oidc: %w", err)
		}
		srv.WithOIDC(oc)
		logger.Info("sso enabled", "issuer", cfg.Auth.OIDC.Issuer)
	}

	go authSvc.RunSessionJanitor(ctx, cfg.Session.PurgeInterval, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("bmitracker shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func openStorage(cfg config.StorageConfig) (*storage, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &storage{records: db, users: db, sessions: postgres.NewSessionRepo(db), ping: db.Ping, close: db.Close}, nil
	case config.DriverSQLite:
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &storage{records: st, users: st, sessions: sqlite.NewSessionRepo(st), ping: st.Ping, close: st.Close}, nil
	case config.DriverMemory:
		db := memory.New()
		return &storage{records: db, users: db, sessions: db.NewSessionRepo(), close: func() error { return nil }}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

func setupOIDC(ctx context.Context, cfg config.OIDCConfig) (adapthttp.OIDCConfig, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return adapthttp.OIDCConfig{}, err
	}
	return adapthttp.OIDCConfig{
		Enabled:  true,
		Provider: provider,
		OAuth2Config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
