package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codelab/internal/auth"
	"codelab/internal/common/cache"
	"codelab/internal/common/db"
	commonmw "codelab/internal/common/http/middleware"
	"codelab/internal/common/mq"
	"codelab/internal/common/storage"
	"codelab/internal/engine"
	"codelab/internal/practice/catalog"
	"codelab/internal/practice/controller"
	"codelab/internal/practice/repository"
	"codelab/internal/practice/service"
	pkgerrors "codelab/pkg/errors"
	"codelab/pkg/utils/logger"
	"codelab/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/codelab.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	issueToken := flag.Int64("issue-token", 0, "Print an access token for the user id and exit")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if *issueToken > 0 {
		token, err := auth.NewAuthService(appCfg.Auth, nil).IssueAccessToken(*issueToken, time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := serve(appCfg); err != nil {
		logger.Error(context.Background(), "server exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func serve(appCfg *AppConfig) error {
	ctx := context.Background()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database failed: %w", err)
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis failed: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	var objStorage storage.ObjectStorage
	if appCfg.MinIOEnabled() {
		minioStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			return fmt.Errorf("init minio failed: %w", err)
		}
		objStorage = minioStorage
	}

	exercises, err := loadCatalog(ctx, appCfg, objStorage)
	if err != nil {
		return err
	}
	logger.Info(ctx, "exercise catalog loaded", zap.Int("exercises", exercises.Len()))

	submissionRepo := repository.NewSubmissionRepository(mysqlDB, redisCache)
	if err := submissionRepo.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate submissions failed: %w", err)
	}

	var events repository.EventPublisher = repository.NopEventPublisher{}
	if appCfg.KafkaEnabled() {
		producer, err := mq.NewKafkaProducer(appCfg.Kafka)
		if err != nil {
			return fmt.Errorf("init kafka failed: %w", err)
		}
		defer func() {
			_ = producer.Close()
		}()
		events = repository.NewMQEventPublisher(producer, appCfg.Submission.EventTopic)
	}

	practiceService, err := service.NewPracticeService(service.Config{
		Engine:          engine.New(appCfg.Engine),
		Catalog:         exercises,
		SubmissionRepo:  submissionRepo,
		Events:          events,
		Cache:           redisCache,
		Storage:         objStorage,
		SourceBucket:    appCfg.MinIO.Bucket,
		SourceKeyPrefix: appCfg.Submission.SourceKeyPrefix,
		MaxCodeBytes:    appCfg.Submission.MaxCodeBytes,
		RunCacheTTL:     appCfg.Submission.RunCacheTTL,
		IdempotencyTTL:  appCfg.Submission.IdempotencyTTL,
		ListLimit:       appCfg.Submission.ListLimit,
		RateLimit:       appCfg.Submission.RateLimit,
		Timeouts:        appCfg.Submission.Timeouts,
	})
	if err != nil {
		return fmt.Errorf("init practice service failed: %w", err)
	}
	authService := auth.NewAuthService(appCfg.Auth, redisCache)

	router := buildRouter(appCfg.Server, redisCache, practiceService, authService, func(ctx context.Context) error {
		if err := mysqlDB.Ping(ctx); err != nil {
			return err
		}
		return redisCache.Ping(ctx)
	})
	httpServer := &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "codelab http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server stopped: %w", err)
		}
		return nil
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	return nil
}

func loadCatalog(ctx context.Context, appCfg *AppConfig, objStorage storage.ObjectStorage) (*catalog.Catalog, error) {
	if appCfg.Catalog.Object != "" {
		loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		c, err := catalog.LoadObject(loadCtx, objStorage, appCfg.MinIO.Bucket, appCfg.Catalog.Object)
		if err != nil {
			return nil, fmt.Errorf("load catalog object failed: %w", err)
		}
		return c, nil
	}
	c, err := catalog.LoadFile(appCfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalog file failed: %w", err)
	}
	return c, nil
}

func buildRouter(cfg ServerConfig, counter cache.Cache, practiceService *service.PracticeService, authService *auth.AuthService, ready func(context.Context) error) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceMiddleware())
	router.Use(commonmw.AccessLog())
	router.Use(commonmw.CORSMiddleware(cfg.CORS))

	router.GET("/healthz", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if ready != nil {
			if err := ready(ctx); err != nil {
				response.ErrorWithCode(c, pkgerrors.ServiceUnavailable, err.Error())
				return
			}
		}
		response.Success(c, gin.H{"status": "ready"})
	})

	api := router.Group("")
	api.Use(commonmw.IPRateLimit(counter, cfg.RateLimit))
	controller.NewPracticeController(practiceService).RegisterRoutes(api, authService)
	api.POST("/api/v1/auth/logout", auth.AuthMiddleware(authService, true), auth.LogoutHandler(authService))
	return router
}
