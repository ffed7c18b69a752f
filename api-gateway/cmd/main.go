package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/waterbird-i/wbapi-backend/api-gateway/internal/invoke"
	"github.com/waterbird-i/wbapi-backend/api-gateway/internal/proxy"
	"github.com/waterbird-i/wbapi-backend/shared/config"
	"github.com/waterbird-i/wbapi-backend/shared/events"
	"github.com/waterbird-i/wbapi-backend/shared/logging"
	"github.com/waterbird-i/wbapi-backend/shared/middleware"
	redisClient "github.com/waterbird-i/wbapi-backend/shared/redis"
	"github.com/waterbird-i/wbapi-backend/shared/token"
	"github.com/waterbird-i/wbapi-backend/shared/userrpc"
)

var (
	userServiceURL   = getEnv("USER_SERVICE_URL", "http://localhost:8081")
	invokeServiceURL = getEnv("INVOKE_SERVICE_URL", "http://localhost:8090")
	userServiceGRPC  = config.GetEnv("USER_SERVICE_GRPC", "localhost:9091")
)

func main() {
	logger := logging.Setup("api-gateway", config.GetEnv("LOG_FORMAT", "json"), config.GetEnv("LOG_LEVEL", "info"), os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("api gateway stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	issuer, err := token.NewIssuer(config.GetEnv("JWT_SECRET", ""), config.GetEnvDuration("TOKEN_TTL", 24*time.Hour))
	if err != nil {
		return err
	}

	redis, err := redisClient.NewClient(ctx, redisClient.Options{
		Addr:     config.GetEnv("REDIS_ADDR", "localhost:6379"),
		Password: config.GetEnv("REDIS_PASSWORD", ""),
		DB:       config.GetEnvInt("REDIS_DB", 0),
	})
	if err != nil {
		return err
	}
	defer redis.Close()

	users, err := userrpc.Dial(userServiceGRPC)
	if err != nil {
		return err
	}
	defer users.Close()

	lookup := invoke.NewCachedLookup(users, redis.Client, config.GetEnvDuration("INVOKE_KEY_CACHE_TTL", time.Minute))

	go func() {
		subscriber := events.NewSubscriber(redis.Client, events.SubscriberConfig{
			Group:    "api-gateway-group",
			Consumer: "gateway-" + hostname(),
			Stream:   events.UserEventsStream,
			Types:    []string{events.UserCredentialsRotated},
			Handler:  lookup.HandleEvent,
			Logger:   logger,
		})
		if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("subscriber stopped", "error", err)
		}
	}()

	p := proxy.New(30*time.Second, logger)
	auth := middleware.AuthMiddleware(issuer)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "api-gateway"})
	})

	// User routes (no authentication required)
	router.POST("/v1/users/register", p.To(userServiceURL, ""))
	router.POST("/v1/users/register/email", p.To(userServiceURL, ""))
	router.POST("/v1/users/login", p.To(userServiceURL, ""))
	router.POST("/v1/users/login/email", p.To(userServiceURL, ""))
	router.POST("/v1/users/logout", p.To(userServiceURL, ""))

	// User routes behind the bearer token
	router.GET("/v1/users/current", auth, p.To(userServiceURL, ""))
	router.POST("/v1/users/update", auth, p.To(userServiceURL, ""))
	router.POST("/v1/users/keys", auth, p.To(userServiceURL, ""))
	router.POST("/v1/users/avatar", auth, p.To(userServiceURL, ""))

	// Third-party calls signed with an access/secret key pair
	router.Any("/v1/invoke/*path",
		invoke.Middleware(lookup, invoke.NewRedisNonceStore(redis.Client), invoke.Options{Logger: logger}),
		p.To(invokeServiceURL, "/v1/invoke"),
	)

	port := getEnv("PORT", "8080")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API gateway starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		// Remove trailing slash if present
		return strings.TrimSuffix(value, "/")
	}
	return fallback
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "1"
	}
	return name
}
