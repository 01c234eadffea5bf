// Package main is the entry point for the stock analysis workbench: a
// read-mostly market-data cache, expression evaluator and alerts engine
// fronted by a JSON HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockworks/workbench/internal/alerts"
	"github.com/stockworks/workbench/internal/backup"
	"github.com/stockworks/workbench/internal/clientdata"
	"github.com/stockworks/workbench/internal/config"
	"github.com/stockworks/workbench/internal/database"
	"github.com/stockworks/workbench/internal/events"
	"github.com/stockworks/workbench/internal/expr"
	"github.com/stockworks/workbench/internal/logger"
	"github.com/stockworks/workbench/internal/marketdata"
	"github.com/stockworks/workbench/internal/notify"
	"github.com/stockworks/workbench/internal/patterns"
	"github.com/stockworks/workbench/internal/realtimestream"
	"github.com/stockworks/workbench/internal/reports"
	"github.com/stockworks/workbench/internal/resolver"
	"github.com/stockworks/workbench/internal/scheduler"
	"github.com/stockworks/workbench/internal/server"
	"github.com/stockworks/workbench/internal/stockdb"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Msg("starting workbench")

	bus := events.NewBus()
	eventsManager := events.NewManager(bus, log)

	clientDataDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "clientdata.db"),
		Profile: database.ProfileCache,
		Name:    "clientdata",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open clientdata database")
	}
	defer clientDataDB.Close()
	if err := clientDataDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate clientdata database")
	}
	cacheRepo := clientdata.NewRepository(clientDataDB.Conn())

	db := stockdb.New()
	market := marketdata.New(cfg.BackendURL, cfg.MarketDataAPIToken, cacheRepo, log)
	dispatcher := resolver.New(db, market, eventsManager, log)

	reportsStore, err := reports.Open(filepath.Join(cfg.DataDir, "reports.json"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open reports store")
	}
	patternsStore, err := patterns.Open(filepath.Join(cfg.DataDir, "patterns.json"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open patterns store")
	}
	alertsStore, err := alerts.Open(filepath.Join(cfg.DataDir, "alerts.json"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open alerts store")
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evalCtx := expr.NewContext(rootCtx, db, dispatcher, market, reportsStore, log)
	notifier := notify.NewLogNotifier(log)
	alertsEngine := alerts.New(alertsStore, evalCtx, notifier, eventsManager, log)

	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	if err := sched.AddJob("@every 5s", alertsEngine); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule alerts tick")
	}

	cleanupJob := clientdata.NewCleanupJob(cacheRepo, log)
	if err := sched.AddJob("@every 1h", cleanupJob); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule clientdata cleanup")
	}

	var realtimeMonitor *realtimestream.Monitor
	if !cfg.DisableRealtime {
		stream, seed, err := realtimestream.Open(filepath.Join(cfg.DataDir, "realtime.bin"))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open real-time stream")
		}
		defer stream.Close()
		realtimeMonitor = realtimestream.New(stream, seed, market, eventsManager, log)
		realtimeMonitor.Start(rootCtx)
		defer realtimeMonitor.Stop()
	}

	var backupService *backup.Service
	if cfg.S3BackupBucket != "" {
		backupService, err = backup.New(rootCtx, cfg.S3BackupBucket, cfg.AWSRegion, cfg.DataDir,
			[]string{"reports.json", "patterns.json", "alerts.json", "realtime.bin", "clientdata.db"},
			eventsManager, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to build backup service; nightly backups disabled")
		} else if err := sched.AddJob("0 0 3 * * *", backupService); err != nil {
			log.Error().Err(err).Msg("failed to schedule nightly backup")
		}
	}

	srv := server.New(server.Config{
		Addr:          ":" + strconv.Itoa(cfg.Port),
		DataDir:       cfg.DataDir,
		DB:            db,
		Resolver:      dispatcher,
		Market:        market,
		EvalCtx:       evalCtx,
		Reports:       reportsStore,
		Patterns:      patternsStore,
		Alerts:        alertsStore,
		AlertsEngine:  alertsEngine,
		Realtime:      realtimeMonitor,
		Backup:        backupService,
		Scheduler:     sched,
		EventBus:      bus,
		EventsManager: eventsManager,
		Log:           log,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(log, srv)
}

func waitForShutdown(log zerolog.Logger, srv *server.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error during http shutdown")
	}
}
