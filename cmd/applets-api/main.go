package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/applets-core/api/swagger"
	"github.com/noah-isme/applets-core/internal/handler"
	"github.com/noah-isme/applets-core/internal/middleware"
	"github.com/noah-isme/applets-core/internal/repository"
	"github.com/noah-isme/applets-core/internal/service"
	"github.com/noah-isme/applets-core/pkg/bus"
	"github.com/noah-isme/applets-core/pkg/cache"
	"github.com/noah-isme/applets-core/pkg/config"
	"github.com/noah-isme/applets-core/pkg/database"
	"github.com/noah-isme/applets-core/pkg/jobs"
	"github.com/noah-isme/applets-core/pkg/logger"
	corsmiddleware "github.com/noah-isme/applets-core/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/applets-core/pkg/middleware/requestid"
	"github.com/noah-isme/applets-core/pkg/secure"
	"github.com/noah-isme/applets-core/pkg/storage"
)

// @title Applets Core API
// @version 1.0.0
// @description Applet versioning and answer ingestion service
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const developmentSecretsKey = "dev_secrets_key"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database.URL, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	pools := database.NewPoolCache(cfg.Database, nil, logr)
	defer pools.Close()

	secretsKey := cfg.Secrets.Key
	if secretsKey == "" {
		logr.Warn("SECRETS_KEY not set, using development key")
		secretsKey = developmentSecretsKey
	}
	cipher, err := secure.NewInternalCipher(secretsKey)
	if err != nil {
		logr.Sugar().Fatalw("failed to init internal cipher", "error", err)
	}

	defaultStore, err := storage.Open(ctx, storage.Spec(cfg.Storage))
	if err != nil {
		logr.Sugar().Fatalw("failed to open object store", "type", cfg.Storage.Type, "error", err)
	}

	var redisClient *redis.Client
	if client, redisErr := cache.NewRedis(ctx, cfg.Redis); redisErr != nil {
		logr.Warn("redis unavailable, snapshot cache and queue sink disabled", zap.Error(redisErr))
	} else {
		redisClient = client
		defer redisClient.Close() //nolint:errcheck
	}

	metrics := service.NewMetricsService()
	validate := validator.New()
	validate.RegisterTagNameFunc(service.JSONFieldName)

	eventBus, busQueue := newBus(cfg, redisClient, metrics, logr)
	busQueue.Start(ctx)
	defer busQueue.Stop()

	treeRepo := repository.NewTreeRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	accessRepo := repository.NewAccessRepository(db)
	appletRepo := repository.NewAppletRepository(db)
	workspaceRepo := repository.NewWorkspaceRepository(db)
	userRepo := repository.NewUserRepository(db)

	var cacheRepo service.CacheRepository = repository.NewCacheRepository(nil, "")
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "applets")
	}
	historyCache := service.NewHistoryCache(historyRepo, cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	router := service.NewWorkspaceRouter(accessRepo, workspaceRepo, cipher, pools, db, defaultStore, logr,
		service.WithRouterPublisher(eventBus),
	)

	appletService := service.NewAppletService(treeRepo, historyRepo, accessRepo,
		service.NewSQLAppletTxRunner(db, treeRepo, historyRepo, accessRepo),
		validate, logr,
		service.WithAppletPublisher(eventBus),
		service.WithAppletMetrics(metrics),
		service.WithSnapshotInvalidator(historyCache),
	)
	answerService := service.NewAnswerService(appletRepo, historyCache, accessRepo, router, validate, logr,
		service.WithAnswerPublisher(eventBus),
		service.WithAnswerMetrics(metrics),
	)
	fileService := service.NewFileService(accessRepo, router,
		storage.NewSignedURLSigner(cfg.Files.SignedURLSecret, cfg.Files.SignedURLTTL),
		logr,
		service.FileServiceConfig{MaxFileSize: cfg.Files.MaxFileSizeBytes, AllowedMIMEs: cfg.Files.AllowedMIMEs},
	)

	var reencryption *service.ReencryptionService
	reencryptQueue := jobs.NewQueue("reencryption", func(ctx context.Context, job jobs.Job) error {
		return reencryption.Handle(ctx, job)
	}, jobs.QueueConfig{Workers: cfg.Reencryption.Concurrency, Logger: logr})
	reencryption = service.NewReencryptionService(database.NewAdvisoryLocker(db), accessRepo, appletRepo, router, cfg.Reencryption, logr,
		service.WithReencryptionQueue(reencryptQueue),
		service.WithReencryptionPublisher(eventBus),
		service.WithReencryptionMetrics(metrics),
	)
	reencryptQueue.Start(ctx)
	defer reencryptQueue.Stop()

	userService := service.NewUserService(userRepo, reencryption, validate, logr)
	tokens := service.NewTokenValidator(cfg.JWT)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, readinessChecks(db, redisClient))
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokens), middleware.RouteCache())
	registerRoutes(api, routeHandlers{
		applets:    handler.NewAppletHandler(appletService),
		answers:    handler.NewAnswerHandler(answerService),
		files:      handler.NewFileHandler(fileService),
		workspaces: handler.NewWorkspaceHandler(router),
		users:      handler.NewUserHandler(userService),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

type routeHandlers struct {
	applets    *handler.AppletHandler
	answers    *handler.AnswerHandler
	files      *handler.FileHandler
	workspaces *handler.WorkspaceHandler
	users      *handler.UserHandler
}

func registerRoutes(api *gin.RouterGroup, h routeHandlers) {
	applets := api.Group("/applets")
	applets.POST("", h.applets.Create)
	applets.GET("/:id", h.applets.Get)
	applets.PUT("/:id", h.applets.Update)
	applets.DELETE("/:id", h.applets.Delete)
	applets.GET("/:id/versions", h.applets.ListVersions)
	applets.GET("/:id/versions/:version", h.applets.GetVersion)

	answers := api.Group("/answers")
	answers.POST("", h.answers.Submit)
	answers.GET("/applet/:id/completions", h.answers.Completions)
	answers.DELETE("/applet/:id/:answer_id", h.answers.Delete)

	files := api.Group("/file/:applet_id")
	files.POST("/upload", h.files.Upload)
	files.GET("/download", h.files.Download)

	workspaces := api.Group("/workspaces/:owner_id", middleware.RequireSelf("owner_id"))
	workspaces.GET("/arbitrary", h.workspaces.GetArbitrary)
	workspaces.PUT("/arbitrary", h.workspaces.SetArbitrary)

	users := api.Group("/users/me")
	users.GET("", h.users.Me)
	users.PUT("/password", h.users.ChangePassword)
}

func newBus(cfg *config.Config, redisClient *redis.Client, metrics *service.MetricsService, logr *zap.Logger) (*bus.Bus, *jobs.Queue) {
	sinks := bus.Config{}
	if cfg.Bus.EmailURL != "" {
		sinks.Email = bus.NewHTTPSink("email", cfg.Bus.EmailURL, cfg.Bus.Timeout)
	}
	if cfg.Bus.PushURL != "" {
		sinks.Push = bus.NewHTTPSink("push", cfg.Bus.PushURL, cfg.Bus.Timeout)
	}
	if cfg.Bus.ReportURL != "" {
		sinks.Report = bus.NewHTTPSink("report", cfg.Bus.ReportURL, cfg.Bus.Timeout)
	}
	if redisClient != nil {
		sinks.Queue = bus.NewRedisQueueSink(redisClient, cfg.Bus.QueueName)
	}

	eventBus := bus.New(sinks, logr, bus.WithObserver(metrics))
	queue := jobs.NewQueue("bus", eventBus.Handle, jobs.QueueConfig{
		Workers:    cfg.Bus.Workers,
		MaxRetries: cfg.Bus.MaxRetries,
		RetryDelay: cfg.Bus.RetryDelay,
		MaxDelay:   cfg.Bus.MaxDelay,
		OnExhaust:  eventBus.Exhausted,
		Logger:     logr,
	})
	eventBus.Attach(queue)
	return eventBus, queue
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"database": func(ctx context.Context) error { return db.PingContext(ctx) },
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}
