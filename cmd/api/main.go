package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"resale/internal/config"
	"resale/internal/database"
	"resale/internal/handler"
	"resale/internal/middleware"
	"resale/internal/monitor"
	"resale/internal/redis"
	"resale/internal/repository"
	"resale/internal/service/auth"
	"resale/internal/service/chat"
	"resale/internal/service/order"
	"resale/internal/service/payment"
	"resale/internal/service/post"
	"resale/internal/session"
	"resale/internal/utils"
	"resale/pkg/breaker"
	"resale/pkg/limiter"
	"resale/pkg/lock"
	"resale/pkg/log"
	"resale/pkg/snowflake"
	pkgutils "resale/pkg/utils"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "path to config file")
	nodeID := flag.Int64("node", 1, "snowflake node id")
	flag.Parse()

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}

	if err := log.Init(log.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxAge:     cfg.Log.MaxAge,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		log.WithError(err).Fatal("Failed to initialize logger")
	}

	loader.Watch(func(next *config.Config) {
		if log.SetLevel(next.Log.Level) {
			log.WithField("level", next.Log.Level).Info("Log level reloaded")
		}
	}, func(err error) {
		log.WithError(err).Warn("Ignoring invalid config reload")
	})

	// database
	db, err := database.Open(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer func() { _ = database.Close(db) }()

	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			log.WithError(err).Fatal("Failed to migrate database")
		}
	}

	// redis
	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize redis")
	}
	defer func() { _ = redisClient.Close() }()

	tracer, err := monitor.NewTracer(monitor.TracerConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    config.Env(),
		JaegerEndpoint: cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize tracer")
	}

	var (
		registry *prometheus.Registry
		metrics  *monitor.MetricsCollector
	)
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = monitor.NewMetricsCollector(registry, cfg.Metrics.Namespace)
	}

	idGenerator, err := snowflake.NewIDGenerator(*nodeID)
	if err != nil {
		log.WithError(err).Fatal("Failed to create ID generator")
	}

	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	pkgutils.RegisterCustomValidators()

	router := setupRouter(cfg, db, redisClient, idGenerator, tracer, metrics)
	if registry != nil {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	collectCtx, stopCollect := context.WithCancel(context.Background())
	defer stopCollect()
	go metrics.StartSystemMetricsCollection(collectCtx, 15*time.Second, func() sql.DBStats {
		sqlDB, err := db.DB()
		if err != nil {
			return sql.DBStats{}
		}
		return sqlDB.Stats()
	})

	server := &http.Server{
		Addr:           cfg.Server.GetAddr(),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderMB << 20,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"addr": server.Addr,
			"mode": cfg.Server.Mode,
			"env":  config.Env(),
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	if err := tracer.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("Failed to flush traces")
	}

	log.Info("Server exited")
}

func setupRouter(
	cfg *config.Config,
	db *gorm.DB,
	redisClient goredis.UniversalClient,
	idGenerator *snowflake.IDGenerator,
	tracer *monitor.Tracer,
	metrics *monitor.MetricsCollector,
) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.Tracing(tracer))
	router.Use(middleware.Metrics(metrics))
	router.Use(middleware.Logger())
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	if cfg.Security.CORS.Enabled {
		router.Use(middleware.CORS(cfg.Security.CORS))
	}
	if cfg.RateLimit.Enabled {
		ipLimiter := limiter.NewKeyedLimiter(float64(cfg.RateLimit.PerIP.RPS), cfg.RateLimit.PerIP.Burst, 10*time.Minute)
		router.Use(middleware.IPRateLimit(ipLimiter))
	}

	router.GET("/health", healthCheck(db, redisClient))
	router.GET("/ping", ping)

	gateway := repository.NewGateway(db)

	jwtManager := utils.NewJWTManager(
		cfg.Security.JWT.Secret,
		cfg.Security.JWT.Issuer,
		cfg.Security.JWT.Expire,
		cfg.Security.JWT.RefreshTTL,
	)
	sessions := session.NewRedisStore(redisClient, cfg.Security.JWT.RefreshTTL)

	paymentBreaker := breaker.NewCircuitBreaker("payment-provider", breaker.Config{
		MaxRequests: uint32(cfg.Payment.Breaker.HalfOpenMax),
		Timeout:     cfg.Payment.Breaker.ResetTimeout,
		ReadyToTrip: breaker.TripAfter(uint32(cfg.Payment.Breaker.MaxFailures)),
		OnStateChange: func(name string, from, to breaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	var sendLimiter limiter.RateLimiter
	if cfg.Chat.SendLimit > 0 {
		sendLimiter = limiter.NewSlidingWindowLimiter(redisClient, "chat_send", cfg.Chat.SendLimit, cfg.Chat.SendWindow)
	}

	authService := auth.NewAuthService(gateway.Users(), sessions, jwtManager, redisClient, auth.LoginPolicy{
		MaxAttempts: cfg.Security.Login.MaxAttempts,
		LockFor:     cfg.Security.Login.LockFor,
	})
	postService := post.NewPostService(gateway.Posts())
	orderService := order.NewOrderService(gateway, idGenerator, order.Config{
		ServiceFeeBP: cfg.Order.ServiceFeeBP,
		TaxBP:        cfg.Order.TaxBP,
	}, metrics)
	paymentService := payment.NewPaymentService(gateway, payment.NewSandboxProvider(), paymentBreaker, idGenerator,
		payment.Config{
			Currency:      cfg.Payment.Currency,
			WebhookSecret: cfg.Payment.WebhookSecret,
		}, metrics)
	chatService := chat.NewChatService(gateway, lock.NewLocker(redisClient, cfg.Chat.RoomLockTTL), sendLimiter,
		chat.Config{MessagePageMax: cfg.Chat.MessagePageMax}, metrics)

	v1 := router.Group("/api/v1")
	v1.GET("/health", healthCheck(db, redisClient))
	v1.GET("/ping", ping)

	handler.RegisterRoutes(v1, handler.Handlers{
		Auth:    handler.NewAuthHandler(authService),
		Post:    handler.NewPostHandler(postService, cfg.Order.MaxPageSize),
		Order:   handler.NewOrderHandler(orderService, cfg.Order.MaxPageSize),
		Payment: handler.NewPaymentHandler(paymentService),
		Chat:    handler.NewChatHandler(chatService),
	}, middleware.Auth(authService))

	return router
}

func healthCheck(db *gorm.DB, redisClient goredis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbHealth := componentHealth(database.Health(db))
		redisHealth := componentHealth(redis.Health(redisClient))

		health := gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
			"version":   version,
			"services": gin.H{
				"database": dbHealth,
				"redis":    redisHealth,
			},
		}

		if !dbHealth["healthy"].(bool) || !redisHealth["healthy"].(bool) {
			health["status"] = "error"
			c.JSON(http.StatusServiceUnavailable, health)
			return
		}
		c.JSON(http.StatusOK, health)
	}
}

func componentHealth(err error) gin.H {
	if err != nil {
		return gin.H{"healthy": false, "error": err.Error()}
	}
	return gin.H{"healthy": true}
}

func ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "pong",
		"timestamp": time.Now().Unix(),
	})
}
