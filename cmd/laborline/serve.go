package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"laborline/internal/cache"
	"laborline/internal/config"
	"laborline/internal/fetch"
	appLog "laborline/internal/log"
	"laborline/internal/records"
	"laborline/internal/source"
	"laborline/internal/web"
)

func newServeCmd(configPath *string) *cobra.Command {
	var listen, cacheDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled source refresh",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath, true)
			if err != nil {
				appLog.Error("failed to load config", err, "config_path", *configPath)
				return err
			}
			// --listen overrides config file listen if provided.
			if listen != "" {
				cfg.Listen = listen
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			setupLogging(cfg)
			defer syncLogs()

			return serve(cfg, cacheDir)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "/var/lib/laborline/feed-cache", "Directory for cached feed bodies")
	return cmd
}

func serve(cfg *config.Config, cacheDir string) error {
	appLog.Info("laborline starting", "version", version)
	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"refresh", cfg.RefreshCron,
		"horizon_days", cfg.HorizonDays,
		"backfill_days", cfg.BackfillDays,
		"overlap_threshold_minutes", cfg.OverlapThresholdMinutes,
		"source_count", len(cfg.Sources),
		"redis", cfg.Redis.Addr != "",
	)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	analyzer, err := newAnalyzer(cfg)
	if err != nil {
		return err
	}

	var store source.RecordStore
	if needsMongo(cfg) {
		ms, err := records.ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err != nil {
			return err
		}
		defer ms.Close(context.Background())
		store = ms
	}

	sources, err := source.Build(cfg.Sources, fetch.New(cacheDir), store)
	if err != nil {
		return err
	}

	var reportCache cache.Cache = cache.NewMemory()
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rc.Close()
		reportCache = rc
	}

	srv := web.NewServer(cfg, web.Deps{
		Analyzer: analyzer,
		Sources:  sources,
		Cache:    reportCache,
	})

	refresh := func() {
		rctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if err := srv.Refresh(rctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	}

	sched := cron.New()
	if _, err := sched.AddFunc(cfg.RefreshCron, refresh); err != nil {
		return fmt.Errorf("refresh schedule: %w", err)
	}
	sched.Start()
	defer func() {
		<-sched.Stop().Done()
	}()

	// Warm the cache without delaying startup.
	go refresh()

	err = srv.ListenAndServe(ctx)
	appLog.Info("laborline exiting")
	return err
}

func needsMongo(cfg *config.Config) bool {
	for _, s := range cfg.Sources {
		if s.Type == config.SourceMongo {
			return true
		}
	}
	return false
}

func syncLogs() {
	appLog.Sync()
}
