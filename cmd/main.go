package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"linkscan/internal/config"
	"linkscan/internal/core/export"
	"linkscan/internal/core/results"
	"linkscan/internal/core/scan"
	"linkscan/internal/core/scheduler"
	"linkscan/internal/core/sites"
	"linkscan/internal/core/status"
	"linkscan/internal/logger"
	"linkscan/internal/platform/objectstore"
	"linkscan/internal/platform/postgres"
	rds "linkscan/internal/platform/redis"
	"linkscan/internal/platform/tasks"
	"linkscan/internal/platform/wordpress"
	"linkscan/internal/server"
	"linkscan/internal/worker"
)

func main() {
	cfg := config.Load()
	log.Printf("[linkscan] starting at %s (env=%s)\n", cfg.HTTPAddr, cfg.AppEnv)

	logr := logger.New("main")
	ctx := context.Background()

	redisSvc, err := rds.New(rds.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer redisSvc.Close()

	pg, err := postgres.New(ctx, postgres.Options{URL: cfg.DatabaseURL, MaxOpenConns: cfg.WorkerConcurrency + 4})
	if err != nil {
		log.Fatal(err)
	}
	defer pg.Close()
	if err := pg.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	mirror, err := objectstore.New(ctx, &cfg)
	if err != nil {
		log.Fatalf("export mirror: %v", err)
	}

	taskClient := tasks.New(redisSvc, cfg.JobTimeout())
	defer taskClient.Close()

	// Core services
	siteCache := sites.NewCache(sites.NewFileDirectory(cfg.SitesFile), redisSvc, cfg.SiteCacheTTL())
	resultStore := results.NewStore(pg.DB())
	statusStore := status.NewStore(redisSvc)
	executor := scan.NewExecutor(
		wordpress.NewOpener(wordpress.Options{
			User:        cfg.WordPressUser,
			AppPassword: cfg.WordPressAppPassword,
			Timeout:     cfg.WordPressTimeout(),
		}),
		resultStore,
		scan.Options{BatchSize: cfg.ScanBatchSize, PageSize: cfg.ScanPageSize},
	)
	exportOpts := export.Options{Dir: cfg.ExportDir(), PageSize: cfg.ExportPageSize}
	if mirror != nil {
		exportOpts.Mirror = mirror
	}
	exportSvc := export.NewService(resultStore, taskClient, exportOpts)
	schedulerSvc := scheduler.NewService(scheduler.Deps{
		Sites:     siteCache,
		Status:    statusStore,
		Queue:     taskClient,
		Runner:    executor,
		Results:   resultStore,
		Artifacts: exportSvc,
	}, cfg.ScanMaxDelay())

	// Worker mux
	mux := worker.NewMux()
	mux.HandleFunc(scheduler.TaskTypeSiteScan, schedulerSvc.HandleSiteScanTask)
	mux.HandleFunc(export.TaskTypeGenerateCSV, exportSvc.HandleGenerateTask)

	asynqServer := worker.NewServer(redisSvc.AsynqRedisOpt(), cfg.WorkerConcurrency, tasks.Queues)
	if err := asynqServer.Start(mux.Mux()); err != nil {
		log.Fatalf("start worker: %v", err)
	}

	// HTTP server
	app := fiber.New(fiber.Config{
		AppName: "linkscan",
		JSONEncoder: func(v interface{}) ([]byte, error) {
			var buf bytes.Buffer
			encoder := json.NewEncoder(&buf)
			encoder.SetEscapeHTML(false)
			if err := encoder.Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
	})

	healthHandler := server.RegisterRoutes(app, server.Dependencies{
		Scheduler: schedulerSvc,
		Exports:   exportSvc,
		Results:   resultStore,
		Current:   statusStore,
		Checks: map[string]func(context.Context) error{
			"redis":    redisSvc.HealthCheck,
			"postgres": pg.HealthCheck,
		},
	})
	healthHandler.SetReady()

	// Graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		logr.LogInfo("Shutting down...")
		asynqServer.Shutdown()
		_ = app.ShutdownWithTimeout(5 * time.Second)
	}()

	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.Fatalf("server listen: %v", err)
	}
}
