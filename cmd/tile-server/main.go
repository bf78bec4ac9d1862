package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	_ "github.com/aws-solutions-library-samples/osml-tile-server/docs"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/cache"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/config"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/handlers"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/metrics"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/models"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/repository"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/services"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/stats"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/storage"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tiles"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/worker"
)

// @title OSML Tile Server API
// @version 1.0
// @description Viewpoint lifecycle and tile generation for cloud-stored imagery
// @BasePath /api/v1
func main() {
	cfg := &config.Config{}
	app := &cli.App{
		Name:  "tile-server",
		Usage: "viewpoint lifecycle and tile generation for cloud-stored imagery",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Value: "8080", EnvVars: []string{"TS_PORT"}, Destination: &cfg.AppPort},
			&cli.StringFlag{Name: "db-host", EnvVars: []string{"DB_HOST"}, Destination: &cfg.DBHost},
			&cli.StringFlag{Name: "db-port", Value: "5432", EnvVars: []string{"DB_PORT"}, Destination: &cfg.DBPort},
			&cli.StringFlag{Name: "db-user", EnvVars: []string{"DB_USER"}, Destination: &cfg.DBUser},
			&cli.StringFlag{Name: "db-password", EnvVars: []string{"DB_PASSWORD"}, Destination: &cfg.DBPassword},
			&cli.StringFlag{Name: "db-name", EnvVars: []string{"DB_NAME"}, Destination: &cfg.DBName},
			&cli.BoolFlag{Name: "memory-registry", Usage: "keep viewpoint state in memory instead of Postgres", EnvVars: []string{"TS_MEMORY_REGISTRY"}, Destination: &cfg.MemoryRegistry},
			&cli.StringFlag{Name: "minio-endpoint", EnvVars: []string{"MINIO_ENDPOINT"}, Destination: &cfg.MinioEndpoint},
			&cli.StringFlag{Name: "minio-access-key", EnvVars: []string{"MINIO_ACCESS_KEY"}, Destination: &cfg.MinioAccessKey},
			&cli.StringFlag{Name: "minio-secret-key", EnvVars: []string{"MINIO_SECRET_KEY"}, Destination: &cfg.MinioSecretKey},
			&cli.BoolFlag{Name: "minio-ssl", EnvVars: []string{"MINIO_SSL"}, Destination: &cfg.MinioSSL},
			&cli.StringFlag{Name: "cache-dir", Value: "/tmp/viewpoint", EnvVars: []string{"TS_CACHE_DIR"}, Destination: &cfg.CacheDir},
			&cli.IntFlag{Name: "workers", Value: 2, EnvVars: []string{"TS_WORKER_COUNT"}, Destination: &cfg.WorkerCount},
			&cli.IntFlag{Name: "raster-concurrency", Value: 4, EnvVars: []string{"TS_RASTER_CONCURRENCY"}, Destination: &cfg.RasterConcurrency},
			&cli.StringFlag{Name: "resampling", Value: "bilinear", Usage: "nearest, bilinear or cubic", EnvVars: []string{"TS_RESAMPLING"}, Destination: &cfg.Resampling},
			&cli.StringFlag{Name: "log-level", Value: "info", EnvVars: []string{"TS_LOG_LEVEL"}, Destination: &cfg.LogLevel},
		},
		Action: func(*cli.Context) error {
			return run(cfg)
		},
	}
	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("tile server exited")
	}
}

func run(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	if err := cfg.Validate(); err != nil {
		return err
	}

	repo, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	minioClient, err := storage.NewMinioClient(cfg)
	if err != nil {
		return err
	}

	store, err := cache.NewStore(cfg.CacheDir)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector(prometheus.DefaultRegisterer, store.UsageBytes)
	engine := tiles.NewEngine(store, cfg.Resampling)
	pool := worker.NewPool(repo, store, storage.NewMinioResolver(minioClient), collector, cfg.WorkerCount)
	defer pool.Stop()

	resumeInterrupted(repo, pool)

	svc := services.NewViewpointService(repo, store, pool, engine,
		stats.NewComputer(cfg.RasterConcurrency), collector)

	app := fiber.New(fiber.Config{
		AppName:               "osml-tile-server",
		DisableStartupMessage: true,
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/api/v1/swagger/*", swagger.HandlerDefault)
	handlers.Register(app, handlers.NewViewpointHandler(svc), handlers.NewTileHandler(svc))

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logrus.Info("shutting down")
		app.Shutdown()
	}()

	logrus.WithField("port", cfg.AppPort).Info("tile server listening")
	return app.Listen(":" + cfg.AppPort)
}

func buildRegistry(cfg *config.Config) (repository.ViewpointRepository, error) {
	if cfg.MemoryRegistry {
		logrus.Warn("using in-memory registry; viewpoint state will not survive restarts")
		return repository.NewMemoryViewpointRepository(), nil
	}
	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&models.Viewpoint{}); err != nil {
		return nil, err
	}
	return repository.NewViewpointRepository(db), nil
}

// resumeInterrupted re-queues viewpoints a previous process left behind in
// REQUESTED. DOWNLOADING viewpoints were in flight when the process died and
// cannot be resumed; ingestion runs at most once, so they are failed.
func resumeInterrupted(repo repository.ViewpointRepository, pool *worker.Pool) {
	if requested, err := repo.List(models.StatusRequested); err == nil {
		for i := range requested {
			if err := pool.Enqueue(requested[i].ID); err != nil {
				logrus.WithField("viewpoint_id", requested[i].ID).WithError(err).Warn("could not re-queue viewpoint")
			}
		}
	}
	if downloading, err := repo.List(models.StatusDownloading); err == nil {
		message := "ingestion interrupted by server restart"
		for i := range downloading {
			repo.Transition(downloading[i].ID,
				[]models.ViewpointStatus{models.StatusDownloading}, models.StatusFailed,
				&repository.TransitionPatch{ErrorMessage: &message})
		}
	}
}
