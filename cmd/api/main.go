package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/user/college-service/internal/adapter/cloudinary"
	mongo_adapter "github.com/user/college-service/internal/adapter/mongo"
	"github.com/user/college-service/internal/adapter/postgres"
	redis_adapter "github.com/user/college-service/internal/adapter/redis"
	"github.com/user/college-service/internal/delivery/http/handler"
	"github.com/user/college-service/internal/delivery/http/router"
	"github.com/user/college-service/internal/repository"
	"github.com/user/college-service/internal/usecase"
	"github.com/user/college-service/pkg/config"
	"github.com/user/college-service/pkg/logger"
	"github.com/user/college-service/pkg/metrics"
)

func main() {
	boot := logger.Bootstrap()

	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		boot.Fatal("could not load config", zap.Error(err))
	}

	// --- Logger ---
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		boot.Fatal("could not build logger", zap.Error(err))
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	// --- Metrics ---
	metrics.Init()

	ctx := context.Background()
	checks := map[string]handler.Pinger{}

	// --- Record store ---
	var collegeRepo repository.CollegeRepository
	switch cfg.StoreBackend {
	case config.BackendMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatal("unable to connect to mongodb", zap.Error(err))
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warn("mongodb disconnect failed", zap.Error(err))
			}
		}()
		collegeRepo = mongo_adapter.NewCollegeRepo(client, cfg.MongoDatabase)
		log.Info("mongodb client ready", zap.String("database", cfg.MongoDatabase))
	default:
		dbpool, err := pgxpool.New(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatal("unable to connect to postgres", zap.Error(err))
		}
		defer dbpool.Close()
		pgRepo := postgres.NewCollegeRepo(dbpool)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			log.Fatal("unable to prepare postgres schema", zap.Error(err))
		}
		collegeRepo = pgRepo
		log.Info("postgres connection pool established")
	}
	checks[cfg.StoreBackend] = collegeRepo

	// --- Cache ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	var collegeCache repository.CollegeCache
	if err := rdb.Ping(ctx).Err(); err != nil {
		// the cache is optional
		log.Warn("redis unavailable, college cache disabled", zap.Error(err))
	} else {
		cache := redis_adapter.NewCollegeCache(rdb, cfg.CacheTTL())
		collegeCache = cache
		checks["redis"] = cache
		log.Info("redis connection established")
	}

	// --- Media store ---
	mediaStore, err := cloudinary.NewMediaStore(cloudinary.Config{
		CloudName:     cfg.CloudinaryCloudName,
		APIKey:        cfg.CloudinaryAPIKey,
		APISecret:     cfg.CloudinaryAPISecret,
		Folder:        cfg.MediaFolder,
		UploadTimeout: cfg.UploadTimeout(),
	}, log.Named("media"))
	if err != nil {
		log.Fatal("unable to configure media store", zap.Error(err))
	}

	// --- Use Cases ---
	extractor := usecase.NewMediaExtractor(mediaStore, cfg.MediaFolder, log.Named("extractor"))
	colleges := usecase.NewCollegeManager(collegeRepo, collegeCache, mediaStore, extractor, cfg.MediaFolder, log.Named("colleges"))
	images := usecase.NewImageUploader(mediaStore, cfg.MediaFolder, cfg.MediaCRMFolder, log.Named("images"))

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(colleges, images, checks, log)
	httpRouter := router.New(apiHandler, log, router.Options{
		MaxBodyBytes:   cfg.MaxBodyBytes(),
		RequestTimeout: cfg.RequestTimeout(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httpRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.ServerPort), zap.String("store", cfg.StoreBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("could not listen on port", zap.String("port", cfg.ServerPort), zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exiting")
}
