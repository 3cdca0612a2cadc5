package main

import (
	"fmt"
	"net/http"

	"mteval/app/handler"
	"mteval/app/router"
	"mteval/internal/service"
	"mteval/pkg/config"
	"mteval/pkg/logger"
	"mteval/pkg/metrics"
	queue "mteval/pkg/queue/asynq"
	"mteval/pkg/store/memory"
	mysqlstore "mteval/pkg/store/mysql"
	redisstore "mteval/pkg/store/redis"

	"github.com/gin-gonic/gin"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(); err != nil {
		return err
	}
	app.registerCleanup(func() {
		_ = logger.Sync()
	})
	return nil
}

// initStore opens the configured job store
func (app *Application) initStore() error {
	switch app.config.Store.Driver {
	case "memory":
		store := memory.New()
		if app.config.Store.SeedFile != "" {
			if err := store.LoadSeedFile(app.config.Store.SeedFile); err != nil {
				return err
			}
			logger.InfoCtx(app.ctx, "Memory store seeded from %s", app.config.Store.SeedFile)
		}
		app.store = store
	case "mysql":
		repo, err := mysqlstore.NewRepository(app.config.MySQL)
		if err != nil {
			return err
		}
		app.store = repo
		app.registerCleanup(func() {
			repo.Close()
			logger.InfoCtx(app.ctx, "MySQL connection has been closed")
		})
	default:
		return fmt.Errorf("unknown store driver %q", app.config.Store.Driver)
	}
	return nil
}

// initRedis initializes Redis; without an address locks run in single-instance mode
func (app *Application) initRedis() error {
	if app.config.Redis.Addr == "" {
		logger.WarnCtx(app.ctx, "Redis not configured, background jobs run without distributed locks")
		return nil
	}

	client, err := redisstore.NewRedisClient(app.ctx, app.config.Redis)
	if err != nil {
		return err
	}

	app.redisClient = client
	app.registerCleanup(func() {
		client.Close()
		logger.InfoCtx(app.ctx, "Redis connection has been closed")
	})
	return nil
}

func (app *Application) initMetrics() error {
	if app.config.Metrics.Enabled {
		app.collector = metrics.NewCollector()
	}
	return nil
}

// initServices initializes service layer
func (app *Application) initServices() error {
	app.jobService = service.NewJobService(app.store, app.collector)
	app.workerService = service.NewWorkerService(app.store, app.jobService, app.collector)
	app.resultService = service.NewResultService(app.store, app.collector)
	app.reaper = service.NewReaper(app.store, app.config.Scheduler.WorkerExpiration(), app.collector)
	return nil
}

// initQueue subscribes to run:created events when enabled
func (app *Application) initQueue() error {
	if !app.config.Queue.Enabled || !app.config.Scheduler.GenerateOnRunCreated {
		return nil
	}

	manager, err := queue.NewManager(app.config.Redis, app.config.Queue)
	if err != nil {
		return err
	}
	manager.RegisterHandler(queue.TypeRunCreated, queue.NewRunCreatedHandler(app.jobService))

	app.queue = manager
	app.registerCleanup(func() {
		manager.Close()
	})
	return nil
}

// initHandlers initializes handler layer
func (app *Application) initHandlers() error {
	app.workerHandler = handler.NewWorkerHandler(app.workerService)
	app.jobHandler = handler.NewJobHandler(app.jobService, app.resultService)
	return nil
}

// initHTTPServer initializes HTTP server
func (app *Application) initHTTPServer() error {
	opts := []router.Option{router.WithAPIKey(app.config.Server.APIKey)}
	if app.collector != nil {
		opts = append(opts, router.WithMetrics(app.config.Metrics.Path, app.collector.Handler()))
	}
	r := router.NewRouter(app.workerHandler, app.jobHandler, opts...)

	if app.config.Server.Mode != "" {
		gin.SetMode(app.config.Server.Mode)
	}

	app.ginEngine = gin.New()
	r.Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.ginEngine,
	}
	return nil
}
