package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/shuren-app/shuren/internal/analytics"
	"github.com/shuren-app/shuren/internal/auth"
	"github.com/shuren-app/shuren/internal/billing"
	"github.com/shuren-app/shuren/internal/chat"
	"github.com/shuren-app/shuren/internal/config"
	"github.com/shuren-app/shuren/internal/ratelimit"
	"github.com/shuren-app/shuren/internal/server"
	"github.com/shuren-app/shuren/internal/storage"
	"github.com/shuren-app/shuren/internal/telemetry"
	"github.com/shuren-app/shuren/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("SHUREN_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("shuren starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	verifier, err := auth.NewVerifier(cfg.AuthPublicKeyPath, cfg.AuthIssuer)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// Billing is optional; without a Stripe key the checkout and webhook
	// endpoints answer with their disabled responses.
	billingSvc, err := billing.New(db, billing.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		PriceID:       cfg.StripePriceID,
		AppBaseURL:    cfg.AppBaseURL,
	}, logger)
	if err != nil {
		return fmt.Errorf("billing: %w", err)
	}
	if billingSvc.Enabled() {
		logger.Info("billing: stripe enabled")
	} else {
		logger.Info("billing: disabled (no STRIPE_SECRET_KEY)")
	}

	summaries := analytics.New(db, db, logger)

	relay := chat.New(chat.Config{
		UpstreamURL: cfg.ChatUpstreamURL,
		APIKey:      cfg.ChatAPIKey,
	}, summaries, logger)
	if relay.Enabled() {
		logger.Info("chat relay: enabled", "upstream", cfg.ChatUpstreamURL)
	} else {
		logger.Info("chat relay: disabled (no CHAT_UPSTREAM_URL)")
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		defer func() { _ = limiter.Close() }()
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	srv := server.New(server.ServerConfig{
		Store:               db,
		Verifier:            verifier,
		Billing:             billingSvc,
		Relay:               relay,
		Limiter:             limiter,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		slog.Info("shuren shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("shuren stopped")
	return nil
}
