package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/waterbird-i/wbapi-backend/shared/database"
	"github.com/waterbird-i/wbapi-backend/shared/events"
	"github.com/waterbird-i/wbapi-backend/shared/keylock"
	"github.com/waterbird-i/wbapi-backend/shared/logging"
	"github.com/waterbird-i/wbapi-backend/shared/metrics"
	"github.com/waterbird-i/wbapi-backend/shared/middleware"
	redisClient "github.com/waterbird-i/wbapi-backend/shared/redis"
	"github.com/waterbird-i/wbapi-backend/shared/security"
	"github.com/waterbird-i/wbapi-backend/shared/token"
	"github.com/waterbird-i/wbapi-backend/shared/userrpc"
	usercmd "github.com/waterbird-i/wbapi-backend/user-service/internal/command"
	"github.com/waterbird-i/wbapi-backend/user-service/internal/config"
	"github.com/waterbird-i/wbapi-backend/user-service/internal/handler"
	userqry "github.com/waterbird-i/wbapi-backend/user-service/internal/query"
	"github.com/waterbird-i/wbapi-backend/user-service/internal/repository"
	"github.com/waterbird-i/wbapi-backend/user-service/internal/storage"
)

const eventStreamMaxLen = 10000

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	logger := logging.Setup("user-service", cfg.LogFormat, cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("user service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Database connection (source of truth)
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	// Redis connection (sessions, login codes, event streaming)
	redis, err := redisClient.NewClient(ctx, redisClient.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return err
	}
	defer redis.Close()

	avatars, err := storage.NewMinioAvatarStore(ctx, storage.Options{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
		PublicURL: cfg.MinioPublicURL,
	})
	if err != nil {
		return err
	}

	issuer, err := token.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	// --- CQRS wiring ---
	m := metrics.New()
	publisher := events.NewPublisher(redis.Client, eventStreamMaxLen)
	users := repository.NewUserRepository(db)
	sessions := repository.NewSessionRepository(redis.Client, issuer.TTL())

	commandSvc := usercmd.NewAccountCommandService(usercmd.Deps{
		Users:     users,
		Sessions:  sessions,
		Codes:     repository.NewCodeRepository(redis.Client),
		Tokens:    issuer,
		Hasher:    security.NewPasswordHasher(cfg.PasswordSalt, security.DefaultArgonParams()),
		Keys:      security.NewKeyGenerator(cfg.PasswordSalt),
		Avatars:   avatars,
		Publisher: publisher,
		Locks:     keylock.New(),
		Metrics:   m,
		Logger:    logger.With("module", "account_commands"),
	})
	querySvc := userqry.NewAccountQueryService(issuer, sessions, users, m, logger.With("module", "account_queries"))

	userHandler := handler.NewUserHandler(commandSvc, issuer.TTL(), cfg.CookieSecure)

	// Setup router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware(logger))
	userHandler.RegisterRoutes(router, middleware.RequireLogin(querySvc))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "user-service"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	errCh := make(chan error, 2)

	go func() {
		errCh <- userrpc.NewServer(querySvc, logger).Run(ctx, cfg.GRPCAddr)
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("user service starting", "port", cfg.Port, "grpc_addr", cfg.GRPCAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
