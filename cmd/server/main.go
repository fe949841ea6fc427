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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/onoacademic/campusid/internal/app"
	"github.com/onoacademic/campusid/internal/handler"
	"github.com/onoacademic/campusid/internal/infrastructure/logger"
	"github.com/onoacademic/campusid/internal/observability/tracing"
	"github.com/onoacademic/campusid/internal/security"
	"github.com/onoacademic/campusid/internal/security/ratelimit"
	"github.com/onoacademic/campusid/internal/worker"
	"github.com/onoacademic/campusid/pkg/config"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting campusid server",
		slog.String("environment", cfg.Environment),
		slog.String("backend", cfg.Backend),
		slog.String("fallback", cfg.FallbackBackend),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing
	shutdownTracing, err := tracing.Init(ctx, log, cfg.OTLPEndpoint, "campusid", cfg.Environment)
	if err != nil {
		log.Warn("tracing disabled", slog.String("error", err.Error()))
		shutdownTracing = func(context.Context) error { return nil }
	}

	// 4. Backends
	backends, err := app.OpenBackends(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open backends", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer backends.Close()

	// 5. Services
	core := app.NewCore(cfg, backends.Store, log)

	pingers := map[string]handler.Pinger{"store": backends.Store}
	probed := map[string]worker.Pinger{"store": backends.Store}
	for name, p := range backends.Pingers {
		pingers[name] = p
		probed[name] = p
	}

	// 6. Background backend probe
	probe := worker.NewProbeWorker(probed, log, cfg.ProbeInterval)
	go probe.Start(ctx)

	// 7. Security components
	apiLimiter := ratelimit.NewLimiter(100, time.Minute)
	loginLimiter := ratelimit.NewLimiter(cfg.LoginRatePerMinute, time.Minute)
	defer apiLimiter.Stop()
	defer loginLimiter.Stop()

	// 8. Routes
	router := handler.NewRouter(&handler.RouterDeps{
		Login:              handler.NewLoginHandler(core.Authn, core.Tokens, cfg.SessionTTL, core.Audit, log),
		Entities:           handler.NewEntityHandler(core.Entities, core.Roster, security.NewAuthorizationService(log), log),
		Validate:           handler.NewValidateHandler(core.Forms, log),
		Health:             handler.NewHealthHandler(pingers, log),
		TokenManager:       core.Tokens,
		APILimiter:         apiLimiter,
		LoginLimiter:       loginLimiter,
		Audit:              core.Audit,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Metrics:            promhttp.Handler(),
		Logger:             log,
	})

	// 9. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      otelhttp.NewHandler(router, "campusid"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("auth", "jwt"),
		slog.Int("login_rate_per_minute", cfg.LoginRatePerMinute),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}
