// Package main boots the proxy server: load configuration, construct every
// component in dependency order, seed the credential pools, start the
// scheduled workers, and serve until a SIGINT/SIGTERM triggers a graceful
// shutdown.
//
// Grounded on the teacher's cmd/server/main.go boot sequence (flag/env
// precedence, startup banner, signal handling), generalized from a
// single-process desktop proxy wired straight to an account manager into a
// multi-tenant server wiring the eight components spec.md §2 names.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relaymesh/aiproxy/internal/config"
	"github.com/relaymesh/aiproxy/internal/coordination"
	"github.com/relaymesh/aiproxy/internal/logging"
	"github.com/relaymesh/aiproxy/internal/oauth"
	"github.com/relaymesh/aiproxy/internal/pool"
	"github.com/relaymesh/aiproxy/internal/quota"
	"github.com/relaymesh/aiproxy/internal/router"
	"github.com/relaymesh/aiproxy/internal/store"
	"github.com/relaymesh/aiproxy/internal/upstream"
	"github.com/relaymesh/aiproxy/internal/worker"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	var (
		devMode bool
		port    int
		host    string
	)
	flag.BoolVar(&devMode, "dev-mode", false, "Enable developer mode (verbose logging)")
	flag.IntVar(&port, "port", 0, "Server port (default: 8080)")
	flag.StringVar(&host, "host", "", "Bind address (default: 0.0.0.0)")
	flag.Parse()

	cfg := config.Load()
	if devMode {
		cfg.DevMode = true
	}
	if port != 0 {
		cfg.Port = port
	}
	if host != "" {
		cfg.Host = host
	}

	log, err := logging.New(cfg.DevMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("startup: fatal", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	coord, err := coordination.New(coordination.Config{
		Addr:     cfg.CoordDBAddr,
		Password: cfg.CoordDBPass,
		DB:       cfg.CoordDB,
	})
	if err != nil {
		return fmt.Errorf("coordination store: %w", err)
	}
	defer coord.Close()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("persistence gateway: %w", err)
	}
	defer db.Close()

	if err := bootstrapAdmin(ctx, db, adminConfig{Username: cfg.AdminUsername, Password: cfg.AdminPassword}, log); err != nil {
		return fmt.Errorf("admin bootstrap: %w", err)
	}

	refresher := &pool.Refresher{
		CloudCode: oauth.NewRefresher(oauth.ClientConfig{
			ClientID:     os.Getenv("CLOUD_CODE_CLIENT_ID"),
			ClientSecret: os.Getenv("CLOUD_CODE_CLIENT_SECRET"),
			AuthURL:      config.GoogleOAuthAuthURL,
			TokenURL:     config.GoogleOAuthTokenURL,
			UserInfoURL:  config.GoogleOAuthUserInfoURL,
			Scopes:       []string{"https://www.googleapis.com/auth/cloud-platform"},
		}),
		Antigravity: oauth.NewRefresher(oauth.ClientConfig{
			ClientID:     os.Getenv("ANTIGRAVITY_CLIENT_ID"),
			ClientSecret: os.Getenv("ANTIGRAVITY_CLIENT_SECRET"),
			AuthURL:      config.GoogleOAuthAuthURL,
			TokenURL:     config.GoogleOAuthTokenURL,
			UserInfoURL:  config.GoogleOAuthUserInfoURL,
			Scopes:       []string{"https://www.googleapis.com/auth/cloud-platform"},
		}),
	}

	pools := pool.New(coord, db, refresher, logging.Component(log, "pool"))
	if err := pools.SeedPools(ctx); err != nil {
		return fmt.Errorf("seeding credential pools: %w", err)
	}

	governor := quota.New(coord,
		quota.TierLimits{BaseDailyQuota: cfg.Tiers.Newbie.DailyQuota, RPM: cfg.Tiers.Newbie.RPM},
		quota.TierLimits{BaseDailyQuota: cfg.Tiers.Contributor.DailyQuota, RPM: cfg.Tiers.Contributor.RPM},
		quota.TierLimits{BaseDailyQuota: cfg.Tiers.V3Contributor.DailyQuota, RPM: cfg.Tiers.V3Contributor.RPM},
		cfg.IncrementPerCredential,
		quota.AntigravityLimits{
			ClaudeLimit:       cfg.Antigravity.ClaudeLimit,
			Gemini3Limit:      cfg.Antigravity.Gemini3Limit,
			ClaudeTokenQuota:  cfg.Antigravity.ClaudeTokenQuota,
			Gemini3TokenQuota: cfg.Antigravity.Gemini3TokenQuota,
		},
	)

	dispatcher := upstream.New(cfg.CloudCodeBaseURL, cfg.AntigravityBaseURL, logging.Component(log, "upstream"))

	rtr := router.New(cfg, db, pools, governor, dispatcher, logging.Component(log, "router"))

	scheduler := worker.New(coord, db, pools, refresher, cfg.AntigravityBaseURL, logging.Component(log, "worker"))
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	scheduler.Start(workerCtx)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      rtr.Engine(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // long timeout for streamed AI responses
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server: listening", zap.String("addr", addr), zap.String("version", version))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return fmt.Errorf("server: %w", err)
	case <-quit:
	}

	log.Info("server: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	scheduler.Stop()
	stopWorkers()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: forced shutdown: %w", err)
	}

	log.Info("server: stopped")
	return nil
}
