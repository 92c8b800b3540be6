package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/peter-wins/tradewatch/internal/dashboard"
	"github.com/peter-wins/tradewatch/internal/upstream"
	"github.com/peter-wins/tradewatch/pkg/config"
	"github.com/peter-wins/tradewatch/pkg/logger"
	"github.com/peter-wins/tradewatch/pkg/secretstore"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("TRADEWATCH_CONFIG"), "YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		_ = logger.Init(logger.Config{Level: "info"})
		logger.Errorf("load config: %v", err)
		os.Exit(1)
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		panic(err)
	}

	apiKey := resolveAPIKey(cfg)
	api := upstream.New(cfg.Upstream.BaseURL, apiKey, cfg.Upstream.Timeout.Std())

	srv, err := dashboard.New(dashboard.Config{
		DBPath:           cfg.Journal.DBPath,
		SnapshotInterval: cfg.Journal.SnapshotInterval.Std(),
		CacheStaleAfter:  cfg.Cache.StaleAfter.Std(),
		CacheRetainFor:   cfg.Cache.RetainFor.Std(),
		CacheMaxRetries:  cfg.Cache.MaxRetries,
	}, api)
	if err != nil {
		logger.Errorf("init dashboard: %v", err)
		os.Exit(1)
	}
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Infof("tradewatch listening on %s (upstream %s)", cfg.Server.Listen, cfg.Upstream.BaseURL)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server: %v", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	logger.Info("tradewatch stopped")
}

// resolveAPIKey prefers the environment/config value and falls back
// to the secret store under env/TRADEWATCH_API_KEY.
func resolveAPIKey(cfg config.Config) string {
	if v := strings.TrimSpace(cfg.Upstream.APIKey); v != "" {
		return v
	}
	if strings.TrimSpace(cfg.Secrets.Path) == "" {
		return ""
	}
	store, err := secretstore.Open(secretstore.OpenOptions{Path: cfg.Secrets.Path, ReadOnly: true})
	if err != nil {
		logger.Warnf("secret store unavailable: %v", err)
		return ""
	}
	defer store.Close()
	v, ok, err := store.GetString("env/TRADEWATCH_API_KEY")
	if err != nil {
		logger.Warnf("secret store read: %v", err)
		return ""
	}
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}
