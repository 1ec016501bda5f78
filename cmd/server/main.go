// Copyright 2026 The Ledgergate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ledgergate/ledgergate/internal/audit"
	"github.com/ledgergate/ledgergate/internal/business"
	"github.com/ledgergate/ledgergate/internal/config"
	"github.com/ledgergate/ledgergate/internal/gate"
	"github.com/ledgergate/ledgergate/internal/identity"
	"github.com/ledgergate/ledgergate/internal/observability/logger"
	"github.com/ledgergate/ledgergate/internal/observability/metrics"
	"github.com/ledgergate/ledgergate/internal/observability/tracing"
	"github.com/ledgergate/ledgergate/internal/routes"
	"github.com/ledgergate/ledgergate/internal/session"
	"github.com/ledgergate/ledgergate/internal/store/postgres"
	redisstore "github.com/ledgergate/ledgergate/internal/store/redis"
	transportHTTP "github.com/ledgergate/ledgergate/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting ledgergate authorization engine")

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}
	gateDenials, err := meter.CreateCounter(metrics.CounterGateDenials, "Requests denied at the authorization gate")
	if err != nil {
		slog.Error("failed to create gate counter", logger.Error(err))
	}

	// Initialize database
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	// Initialize challenge store
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.Error("failed to connect to redis", logger.Error(err))
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.Info("connected to redis")

	// Initialize repositories
	accountRepo := postgres.NewAccountRepository(db)
	businessRepo := postgres.NewBusinessRepository(db)
	challengeStore := redisstore.NewChallengeStore(redisClient, cfg.Identity.MaxAttempts)

	// Initialize helpers
	auditLogger := audit.NewSlogLogger()

	codec, err := session.NewCodec([]byte(cfg.Token.Secret), cfg.Token.Issuer, cfg.Token.Lifetime)
	if err != nil {
		slog.Error("failed to initialize session codec", logger.Error(err))
		os.Exit(1)
	}
	pointerKey, err := session.DeriveKey([]byte(cfg.Token.Secret), session.PurposeTenantPointer)
	if err != nil {
		slog.Error("failed to derive pointer key", logger.Error(err))
		os.Exit(1)
	}

	// Initialize services
	identityService := identity.NewService(
		accountRepo,
		challengeStore,
		identity.LogSender{},
		codec,
		auditLogger,
		identity.Config{
			CodeDigits:      cfg.Identity.CodeDigits,
			ChallengeTTL:    cfg.Identity.ChallengeTTL,
			DefaultDialCode: cfg.Identity.DefaultDialCode,
		},
	)
	if cfg.Federated.GoogleClientID != "" {
		identityService.RegisterProvider("google", identity.GoogleProvider(
			cfg.Federated.GoogleClientID,
			cfg.Federated.GoogleClientSecret,
			cfg.Federated.RedirectBaseURL+"/api/v1/auth/federated/google/callback",
		))
	}
	businessService := business.NewService(businessRepo, auditLogger)

	authGate := gate.New(routes.DefaultClassifier(), codec, auditLogger, gateDenials)

	// Rate limiter
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Configure SameSite mode
	sameSite := http.SameSiteLaxMode
	switch cfg.Token.CookieSameSite {
	case "Strict":
		sameSite = http.SameSiteStrictMode
	case "None":
		sameSite = http.SameSiteNoneMode
	}

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		identityService,
		businessService,
		authGate,
		codec,
		auditLogger,
		transportHTTP.CookieConfig{
			SessionName: cfg.Token.SessionCookie,
			PointerName: cfg.Token.PointerCookie,
			Domain:      cfg.Token.CookieDomain,
			Path:        cfg.Token.CookiePath,
			Secure:      cfg.Token.CookieSecure,
			SameSite:    sameSite,
			MaxAge:      int(cfg.Token.Lifetime.Seconds()),
		},
		pointerKey,
	)

	// Create router
	router := transportHTTP.NewRouter(handler, rateLimiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	slog.Info("migrations applied")
	return nil
}
