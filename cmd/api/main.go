package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foodlens/quotagate/internal/advisor"
	"github.com/foodlens/quotagate/internal/config"
	"github.com/foodlens/quotagate/internal/engine"
	"github.com/foodlens/quotagate/internal/events"
	"github.com/foodlens/quotagate/internal/ledger"
	"github.com/foodlens/quotagate/internal/logging"
	"github.com/foodlens/quotagate/internal/metrics"
	"github.com/foodlens/quotagate/internal/middleware"
	"github.com/foodlens/quotagate/internal/policy"
	"github.com/foodlens/quotagate/internal/tracing"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	middleware.SetJWTSecret(cfg.Auth.JWTSecret)

	if cfg.Tracing.Enabled {
		_, closer, err := tracing.InitTracer("quotagate", cfg.Tracing.Endpoint, cfg.Tracing.SampleRate)
		if err != nil {
			log.Fatalf("Failed to initialize tracing: %v", err)
		}
		defer closer.Close()
	}

	// Policy table: configured rows, or the built-in defaults. A bad
	// table is a configuration defect, so boot fails.
	rows := cfg.Quota.PolicyRows()
	if len(rows) == 0 {
		log.Warn("no quota policies configured, using built-in defaults")
		rows = policy.Defaults()
	}
	table, err := policy.New(rows)
	if err != nil {
		log.Fatalf("Invalid quota policy table: %v", err)
	}
	log.Infof("Loaded %d quota policies", table.Len())

	led, err := openLedger(cfg, log)
	if err != nil {
		log.Fatalf("Failed to open quota ledger: %v", err)
	}
	defer led.Close()

	eng := engine.New(table, led, cfg.Quota.Store, log)
	adv := advisor.New(cfg.Quota.BenefitOverrides())

	var sink middleware.DecisionSink
	if cfg.Queue.Enabled {
		publisher, err := events.NewPublisher(cfg.Queue, log)
		if err != nil {
			log.Fatalf("Failed to connect event publisher: %v", err)
		}
		defer publisher.Close()
		sink = publisher
	}

	gate := middleware.NewGate(eng, adv, sink, cfg.Quota.FailOpen, log)

	api := NewAPI(eng, adv, led, log)
	router := setupRouter(api, gate, cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if janitor := ledger.NewJanitor(led, cfg.Quota.JanitorInterval, cfg.Quota.Retention, log); janitor != nil {
		go janitor.Run(ctx)
	}

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port, log)
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.Errorf("Metrics server failed: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer shutdownCancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infof("Starting quota API server on %s (store=%s)", addr, cfg.Quota.Store)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped")
}

// openLedger builds the ledger backend selected in config.
func openLedger(cfg *config.Config, log *logging.Logger) (ledger.Ledger, error) {
	switch cfg.Quota.Store {
	case "memory":
		log.Warn("using in-memory quota ledger: counters are per-process and lost on restart")
		return ledger.NewMemory(), nil
	case "redis":
		return ledger.NewRedis(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return ledger.NewPostgres(ctx, cfg.Database.DSN())
	default:
		return nil, fmt.Errorf("unknown quota store %q", cfg.Quota.Store)
	}
}
