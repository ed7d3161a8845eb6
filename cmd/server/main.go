// Package main runs the newsroom HTTP server with WebSocket push and
// graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/anchordesk/backend/config"
	"github.com/anchordesk/backend/internal/auth"
	"github.com/anchordesk/backend/internal/drafting"
	"github.com/anchordesk/backend/internal/middleware"
	"github.com/anchordesk/backend/internal/models"
	"github.com/anchordesk/backend/internal/playback"
	"github.com/anchordesk/backend/internal/realtime"
	"github.com/anchordesk/backend/internal/reports"
	"github.com/anchordesk/backend/internal/synthesis"
	"github.com/anchordesk/backend/internal/synthesizer"
	"github.com/anchordesk/backend/internal/translations"
	"github.com/anchordesk/backend/internal/translator"
	"github.com/anchordesk/backend/pkg/database"
	"github.com/anchordesk/backend/pkg/queue"
	"github.com/anchordesk/backend/pkg/redis"
	"github.com/anchordesk/backend/pkg/response"
	"github.com/anchordesk/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		AudioBucket:          cfg.AWS.AudioBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(redisPubSub, logger)
	if err := hub.Start(); err != nil {
		logger.Fatal("event subscription", zap.Error(err))
	}
	defer hub.Stop()

	// External content pipeline clients.
	callTimeout := time.Duration(cfg.Pipeline.RequestTimeout) * time.Second
	backoff := time.Duration(cfg.Pipeline.RetryBackoffSec * float64(time.Second))
	draftClient := drafting.NewClient(cfg.Pipeline.DraftingURL, cfg.Pipeline.APIKey,
		callTimeout, cfg.Pipeline.RetryCount, backoff, logger)
	translatorClient := translator.NewClient(cfg.Pipeline.TranslatorURL, cfg.Pipeline.APIKey,
		callTimeout, cfg.Pipeline.RetryCount, backoff, logger)
	synthClient := synthesizer.NewClient(cfg.Pipeline.SynthesizerURL, cfg.Pipeline.APIKey,
		callTimeout, cfg.Pipeline.RetryCount, backoff, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Reports and translations
	reportRepo := reports.NewRepository(pool)
	variantRepo := translations.NewRepository(pool)
	registry := translations.NewRegistry(reportRepo, variantRepo, translatorClient,
		jobQueue, hub, time.Duration(cfg.Pipeline.JobTimeout)*time.Second, logger)
	reportHandler := reports.NewHandler(reportRepo, draftClient, registry, logger)
	translationHandler := translations.NewHandler(registry)

	// Synthesis
	reflectionRepo := synthesis.NewRepository(pool)
	coordinator := synthesis.NewCoordinator(reportRepo, variantRepo, reflectionRepo, synthClient, s3Client, logger)
	synthesisHandler := synthesis.NewHandler(coordinator, jobQueue)

	// Playback
	playbackRepo := playback.NewRepository(pool)
	controller := playback.NewController(playbackRepo, reportRepo, hub, logger)
	assembler := playback.NewAssembler(reportRepo, variantRepo, controller, s3Client, logger)
	playbackHandler := playback.NewHandler(controller, assembler)

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth
	authGroup := router.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)

	// Public playback surface for display clients.
	router.GET("/reports/latest-published", reportHandler.LatestPublished)
	router.GET("/playback/mode", playbackHandler.GetMode)
	router.GET("/playback/queue", playbackHandler.Queue)

	editor := middleware.RequireRole(string(models.RoleAdmin), string(models.RoleEditor))
	admin := middleware.RequireRole(string(models.RoleAdmin))

	api := router.Group("", middleware.JWT(jwtService))
	{
		api.GET("/users", admin, authHandler.ListUsers)

		api.GET("/reports", reportHandler.List)
		api.POST("/reports", editor, reportHandler.Create)
		api.GET("/reports/:id", reportHandler.Get)
		api.PUT("/reports/:id", editor, reportHandler.Update)
		api.DELETE("/reports/:id", admin, reportHandler.Delete)
		api.POST("/reports/:id/publish", editor, reportHandler.Publish)
		api.POST("/reports/:id/status", editor, reportHandler.SetStatus)
		api.POST("/reports/:id/generate", editor, reportHandler.GenerateAsync)
		api.POST("/reports/:id/generate-pack", editor, reportHandler.Generate)

		api.GET("/reports/:id/variants", translationHandler.ListVariants)
		api.GET("/reports/:id/variants/:lang", translationHandler.GetVariant)
		api.PUT("/reports/:id/variants/:lang", editor, translationHandler.UpdateVariant)
		api.POST("/reports/:id/variants/:lang/fail", admin, translationHandler.MarkFailed)
		api.POST("/reports/:id/retranslate", editor, translationHandler.Retranslate)
		api.POST("/reports/:id/retranslate/:lang", editor, translationHandler.RetranslateLanguage)
		api.GET("/reports/:id/translation-status", translationHandler.TranslationStatus)

		api.POST("/reports/:id/synthesize/:lang", editor, synthesisHandler.SynthesizeVariant)
		api.POST("/reports/:id/reflections/synthesize", editor, synthesisHandler.SynthesizeReflections)
		api.GET("/reports/:id/reflections", synthesisHandler.Reflections)
		api.GET("/reports/:id/questions", synthesisHandler.Questions)

		api.PUT("/playback/mode", admin, playbackHandler.SetMode)
	}

	// WebSocket event stream (token via query parameter).
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
