// Package app wires the application together and runs it.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/chargefix/portal/internal/airtable"
	"github.com/chargefix/portal/internal/auth"
	"github.com/chargefix/portal/internal/config"
	"github.com/chargefix/portal/internal/directory"
	"github.com/chargefix/portal/internal/handler"
	"github.com/chargefix/portal/internal/identity"
	"github.com/chargefix/portal/internal/logger"
	"github.com/chargefix/portal/internal/metrics"
	"github.com/chargefix/portal/internal/middleware"
	"github.com/chargefix/portal/internal/repair"
	"github.com/chargefix/portal/internal/security"
	"github.com/chargefix/portal/internal/webhook"
)

// Init initializes the application: structured logging first (so config
// errors are logged in the standard format), then the environment config.
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run is the main entry point. It parses the subcommand from args
// (os.Args[1:]) and starts the corresponding mode.
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck is a lightweight subcommand; skip full initialization
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	return runServe(cfg)
}

// runServe wires every dependency and starts the HTTP server.
// SIGINT/SIGTERM trigger a graceful shutdown.
func runServe(cfg *config.Config) error {
	// 1. Metrics
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 2. External-service clients
	airtableClient := airtable.NewClient(
		&http.Client{Timeout: 15 * time.Second},
		slog.Default(),
		airtable.Config{
			Token:  cfg.AirtableToken,
			BaseID: cfg.AirtableBaseID,
			Retry: airtable.RetryPolicy{
				Attempts:          cfg.AirtableRetryAttempts,
				PerAttemptTimeout: cfg.AirtableRetryTimeout,
				Backoff:           airtable.LinearBackoff(time.Second),
			},
		},
		collector,
	)

	identityClient := identity.NewClient(
		&http.Client{Timeout: 15 * time.Second},
		slog.Default(),
		identity.Config{
			URL:            cfg.SupabaseURL,
			AnonKey:        cfg.SupabaseAnonKey,
			ServiceRoleKey: cfg.SupabaseServiceRoleKey,
		},
	)

	// 3. Security services
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewInputSanitizer()

	// 4. Outbound webhook relay
	webhookURL := cfg.WebhookURL
	if webhookURL != "" {
		if err := ssrfGuard.ValidateURL(webhookURL); err != nil {
			slog.Error("webhook URL rejected, relay disabled",
				slog.String("error", err.Error()),
			)
			webhookURL = ""
		}
	}
	relay := webhook.NewRelay(
		ssrfGuard.NewSafeClient(10*time.Second),
		webhookURL,
		slog.Default(),
		collector,
	)

	// 5. Domain services
	directoryService := directory.NewService(airtableClient, cfg.TableTechnicians, slog.Default())
	tickets := auth.NewTicketIssuer(cfg.TicketSecret, cfg.TicketTTL)
	authService := auth.NewService(directoryService, identityClient, tickets, collector, slog.Default())
	repairService := repair.NewService(airtableClient, cfg.TableRepairs, sanitizer, relay, slog.Default())

	// 6. Router
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.OTPRate = rate.Limit(float64(cfg.RateLimitOTPDispatch) / 60.0)
	rateLimiterCfg.OTPBurst = cfg.RateLimitOTPDispatch
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:        slog.Default(),
		SessionClient: identityClient,
		CookieConfig: middleware.CookieConfig{
			Secure: cfg.CookieSecure,
			Domain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		AuthService:   authService,
		RepairService: repairService,

		MetricsHandler: metrics.Handler(registry),
	}

	router := handler.NewRouter(deps)

	// 7. HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runHealthcheck probes the /health endpoint of the running server.
func runHealthcheck(port string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("http://localhost:" + port + "/health")
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}

	return nil
}
