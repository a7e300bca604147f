package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"inbox-tollbooth-go/internal/config"
	"inbox-tollbooth-go/internal/db"
	"inbox-tollbooth-go/internal/handlers"
	"inbox-tollbooth-go/internal/ledger"
	"inbox-tollbooth-go/internal/mailbox"
	"inbox-tollbooth-go/internal/metrics"
	"inbox-tollbooth-go/internal/scheduler"
	"inbox-tollbooth-go/internal/server"
	"inbox-tollbooth-go/internal/store"
	"inbox-tollbooth-go/internal/toll"
	"inbox-tollbooth-go/internal/whitelist"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Inbox Tollbooth Service")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	m := metrics.NewMetrics()
	st := store.New(dbConn)

	mb, err := mailbox.NewGmailMailbox(&cfg.Gmail, cfg.Toll.AutomationMarker, cfg.Toll.EmailFromName)
	if err != nil {
		return fmt.Errorf("failed to create Gmail mailbox: %w", err)
	}

	lg := ledger.NewStripeLedger(&cfg.Stripe, &cfg.Toll)
	wl := whitelist.New(cfg.Gmail.UserEmail, cfg.Toll.TrustedDomainList(), mb)
	engine := toll.NewEngine(st, mb, lg, wl, toll.NewTemplates(&cfg.Toll), &cfg.Toll)

	sched := scheduler.NewScheduler(&cfg.Scheduler, mb, engine, m)

	h := handlers.NewHandlers(dbConn, st, engine, sched, m, cfg.Stripe.WebhookSecret)
	router := server.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	sched.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	if err := mb.Close(); err != nil {
		logrus.Errorf("Failed to close mailbox: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}
