package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"venue-ledger-api/internal/cache"
	"venue-ledger-api/internal/config"
	"venue-ledger-api/internal/database"
	"venue-ledger-api/internal/events"
	"venue-ledger-api/internal/features"
	"venue-ledger-api/internal/handler"
	"venue-ledger-api/internal/middleware"
	"venue-ledger-api/internal/service"
	"venue-ledger-api/internal/tracing"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

const shutdownTimeout = 15 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

// app is everything the server owns and must release on shutdown.
type app struct {
	db      *database.DB
	replay  cache.Cache
	svc     *service.Service
	limiter *middleware.RateLimiter
	router  http.Handler
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger store: %w", err)
	}

	a := &app{db: db, replay: cache.New(ctx, cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})}
	a.svc = service.NewService(db,
		service.WithPolicy(policyFrom(cfg)),
		service.WithReplayCache(cache.NewOrderReplay(a.replay, cfg.ReplayCacheTTL)),
		service.WithFeatures(featuresFrom(cfg)),
		service.WithEvents(events.NewManager(true)),
	)
	if cfg.RateLimitEnabled {
		a.limiter = middleware.NewRateLimiter(cfg.RateLimitRate, cfg.RateLimitWindow)
	}
	a.router = a.routes(cfg)
	return a, nil
}

func (a *app) routes(cfg *config.Config) http.Handler {
	h := handler.NewHandlerWithOptions(a.svc, handler.NewHandlerOptions{MaxBodySize: cfg.MaxRequestBodySize})

	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger())
	r.Use(chimw.Recoverer)
	if cfg.TracingEnabled {
		r.Use(middleware.TracingMiddleware())
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Origins(),
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			middleware.HeaderRole, middleware.HeaderUser, middleware.HeaderVenue,
		},
		MaxAge: 300,
	}))

	protected := []func(http.Handler) http.Handler{middleware.Authenticate(middleware.TrustedHeaderResolver{})}
	if a.limiter != nil {
		protected = append(protected, middleware.RateLimitMiddleware(a.limiter))
	}
	h.Routes(r, protected...)
	return r
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	a.svc.Close()
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if err := a.replay.Close(); err != nil {
		log.WithError(err).Warn("failed to close replay cache")
	}
	if err := a.db.Close(); err != nil {
		log.WithError(err).Warn("failed to close ledger store")
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := tracing.Init(tracing.Config{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.TracingEndpoint,
		ServiceName: tracing.ServiceName,
		Environment: cfg.AppEnv,
		Version:     Version,
		SampleRatio: cfg.TracingSampleRatio,
	}); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"addr":     server.Addr,
			"driver":   a.db.Driver(),
			"tls":      cfg.TLSEnabled(),
			"features": a.svc.Features().Enabled(),
		}).Info("starting server")

		var err error
		if cfg.TLSEnabled() {
			err = server.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown incomplete")
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("failed to flush traces")
	}
	return nil
}

func policyFrom(cfg *config.Config) service.Policy {
	return service.Policy{
		Stock:              service.SettlementPolicy(cfg.StockPolicy),
		Balance:            service.SettlementPolicy(cfg.BalancePolicy),
		UndoWindow:         cfg.UndoWindow,
		RefundWalletOnUndo: cfg.UndoRefundWallet,
		CheckInXP:          cfg.CheckInXP,
		CheckInNC:          cfg.CheckInNC,
	}
}

func featuresFrom(cfg *config.Config) *features.Manager {
	f := features.Defaults()
	f.Set(features.FeatureRulesEnabled, cfg.FeatureRulesEnabled)
	f.Set(features.FeatureReplayCacheEnabled, cfg.FeatureReplayCacheEnabled)
	f.Set(features.FeatureCheckinRewards, cfg.FeatureCheckinRewards)
	return f
}
