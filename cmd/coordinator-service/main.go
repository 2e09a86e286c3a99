package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rtc-coordinator/internal/database"
	callHandler "rtc-coordinator/internal/handler/http/call"
	wsHandler "rtc-coordinator/internal/handler/ws"
	"rtc-coordinator/internal/middleware"
	cassandraRepo "rtc-coordinator/internal/repository/cassandra"
	cockroachRepo "rtc-coordinator/internal/repository/cockroach"
	redisRepo "rtc-coordinator/internal/repository/redis"
	"rtc-coordinator/internal/service/call"
	"rtc-coordinator/internal/service/storage"
	"rtc-coordinator/pkg/config"
	"rtc-coordinator/pkg/constants"
	pkgDatabase "rtc-coordinator/pkg/database"
	"rtc-coordinator/pkg/logger"
	"rtc-coordinator/pkg/metrics"
	"rtc-coordinator/pkg/resilience"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.InitDefault()
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		logger.InitDefault()
		logger.Warn("Failed to initialize configured logger, using defaults",
			zap.String("output", cfg.Log.Output),
			zap.Error(err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Redis for presence and rate limiting, with degraded mode support
	var (
		redisDB  *database.RedisClient
		presence *redisRepo.PresenceRepository
		tracker  call.PresenceTracker
	)
	if cfg.Redis.Enabled {
		redisDB = database.NewRedisDB(&database.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Timeout:  cfg.Redis.Timeout,
		})
		defer redisDB.Close()

		if err := redisDB.HealthCheck(ctx); err != nil {
			logger.Warn("Redis unavailable, starting in degraded mode", zap.Error(err))
		} else {
			logger.Info("Connected to Redis")
		}
		go redisDB.StartHealthCheck(ctx, 10*time.Second)

		presence = redisRepo.NewPresenceRepository(redisDB)
		tracker = presence
	}

	// 3. Quality sample sink
	var sink call.QualitySink
	switch cfg.Call.QualitySink {
	case config.QualitySinkCockroach:
		db, err := pkgDatabase.NewCockroachDB(ctx, &pkgDatabase.CockroachConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal("Failed to connect to CockroachDB", zap.Error(err))
		}
		defer db.Close()

		repo := cockroachRepo.NewQualityRepository(db.Pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to prepare quality schema", zap.Error(err))
		}
		sink = repo
		logger.Info("Quality samples stored in CockroachDB")

	case config.QualitySinkCassandra:
		db, err := pkgDatabase.NewCassandraDB(&pkgDatabase.CassandraConfig{
			Hosts:    cfg.Cassandra.Hosts,
			Keyspace: cfg.Cassandra.Keyspace,
			Username: cfg.Cassandra.Username,
			Password: cfg.Cassandra.Password,
			Timeout:  cfg.Cassandra.Timeout,
		})
		if err != nil {
			logger.Fatal("Failed to connect to Cassandra", zap.Error(err))
		}
		defer db.Close()

		repo := cassandraRepo.NewQualityRepository(db.Session)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to prepare quality schema", zap.Error(err))
		}
		sink = repo
		logger.Info("Quality samples stored in Cassandra")

	default:
		sink = call.NewLogSink()
	}
	if cfg.Call.QualitySink != config.QualitySinkLog {
		sink = call.NewGuardedSink(sink, resilience.NewCircuitBreaker("quality_sink", resilience.Settings{
			FailureThreshold: 3,
			CoolDown:         10 * time.Second,
			Timeout:          2 * time.Second,
		}))
	}

	// 4. Recording uploads
	var signer callHandler.UploadSigner
	if cfg.MinIO.Enabled {
		recordings, err := storage.NewRecordingStore(storage.RecordingStoreConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
			Bucket:    cfg.MinIO.Bucket,
			Region:    cfg.MinIO.Region,
			URLExpiry: constants.RecordingUploadURLExpiry,
		})
		if err != nil {
			logger.Fatal("Failed to create recording store", zap.Error(err))
		}
		if err := recordings.EnsureBucket(ctx); err != nil {
			logger.Warn("Recording bucket check failed", zap.Error(err))
		}
		signer = recordings
	}

	// 5. Coordinator
	registry := call.NewRegistry(tracker)
	registry.SetDeliveryObserver(func(userID int64, msgType string, status call.DeliveryStatus) {
		if status != call.DeliveryDelivered {
			logger.Debug("Signaling message not delivered",
				logger.UserID(userID),
				zap.String("type", msgType),
				zap.String("status", string(status)))
		}
	})

	callSvc := call.NewService(call.NewSessionStore(), registry, sink, call.Options{
		RingTimeout:         cfg.Call.RingTimeout,
		IdleTimeout:         cfg.Call.IdleTimeout,
		PacketLossThreshold: cfg.Call.PacketLossThreshold,
		LatencyThreshold:    cfg.Call.LatencyThreshold,
		RecordingFormat:     cfg.Call.RecordingFormat,
	})

	reaper := call.NewReaper(callSvc, cfg.Call.ReaperInterval)
	if err := reaper.Start(); err != nil {
		logger.Fatal("Failed to start reaper", zap.Error(err))
	}

	// 6. Handlers
	callHdlr := callHandler.NewHandler(callSvc, signer)
	signaling := wsHandler.NewSignalingServer(callSvc, registry, wsHandler.SignalingConfig{
		MaxConnections: cfg.Signaling.MaxConnections,
		SendBufferSize: cfg.Signaling.SendBufferSize,
		AllowedOrigins: cfg.Signaling.AllowedOrigins,
	})

	// 7. Router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName, nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware(cfg.Signaling.AllowedOrigins))
	router.Use(middleware.NewPrometheusMiddleware(appMetrics).Handler())

	router.GET("/health", func(c *gin.Context) {
		health := gin.H{
			"status":          "healthy",
			"service":         cfg.Server.ServiceName,
			"time":            time.Now().UTC(),
			"active_sessions": len(callSvc.ActiveSessions()),
			"connections":     registry.Count(),
		}
		if redisDB != nil {
			health["redis_degraded"] = redisDB.IsDegraded()
			if online, err := presence.GetOnlineCount(c.Request.Context()); err == nil {
				health["online_users"] = online
			}
		}
		c.JSON(http.StatusOK, health)
	})
	router.GET("/metrics", middleware.MetricsHandler())

	v1 := router.Group("/v1/calls")
	v1.Use(middleware.GatewayIdentity())
	{
		// WebSocket endpoint for signaling; registered before the rate limit
		// so a long-lived socket counts once
		v1.GET("/ws/signaling", signaling.ServeWS)

		api := v1.Group("")
		if redisDB != nil {
			api.Use(middleware.NewRateLimiter(redisDB, cfg.Redis.RateLimit, cfg.Redis.RateWindow).Middleware())
		}
		callHdlr.RegisterRoutes(api)
	}

	// 8. Start server
	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: router,
	}

	go func() {
		logger.Info("Call coordinator starting",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Server.Environment),
			zap.String("quality_sink", cfg.Call.QualitySink))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down call coordinator")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	reaper.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Call coordinator stopped")
}
