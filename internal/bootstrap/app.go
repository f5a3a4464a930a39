// Package bootstrap wires configuration, infrastructure, services and
// transports into a runnable application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/chat"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/gateway"
	httpHandler "github.com/Amankumar006/online-learning-plateform-sub003/internal/handler/http"
	gormpersistence "github.com/Amankumar006/online-learning-plateform-sub003/internal/infra/persistence/gorm"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/infra/setup"
	redisstate "github.com/Amankumar006/online-learning-plateform-sub003/internal/infra/state/redis"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/middleware"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/presence"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/roomsync"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/service"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/tasks"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/worker"
)

// Config holds everything loaded from the environment.
type Config struct {
	DBUser        string
	DBPassword    string
	DBHost        string
	DBPort        string
	DBName        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	JWTSecret     string
	ServerPort    string
	LogLevel      string
	AppEnv        string
	KeyPrefix     string

	RateLimitMax    int
	RateLimitWindow time.Duration
	PushInterval    time.Duration
	PresenceStale   time.Duration

	AssistantEndpoint string
	AssistantAPIKey   string
}

// LoadConfig reads the environment, with .env as a convenience overlay.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:            os.Getenv("DB_USER"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBHost:            os.Getenv("DB_HOST"),
		DBPort:            os.Getenv("DB_PORT"),
		DBName:            os.Getenv("DB_NAME"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		ServerPort:        os.Getenv("SERVER_PORT"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		AppEnv:            os.Getenv("APP_ENV"),
		KeyPrefix:         os.Getenv("REDIS_KEY_PREFIX"),
		AssistantEndpoint: os.Getenv("ASSISTANT_ENDPOINT"),
		AssistantAPIKey:   os.Getenv("ASSISTANT_API_KEY"),
		RateLimitMax:      100,
		RateLimitWindow:   time.Second,
		PushInterval:      roomsync.DefaultPushInterval,
		PresenceStale:     worker.DefaultStaleAfter,
	}
	cfg.RedisDB, _ = strconv.Atoi(os.Getenv("REDIS_DB"))

	if cfg.DBHost == "" {
		cfg.DBHost = "127.0.0.1"
	}
	if cfg.DBPort == "" {
		cfg.DBPort = "3306"
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "sr:"
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// App bundles every long-lived component for Start and Shutdown.
type App struct {
	Config       *Config
	Log          *logrus.Logger
	DB           *gorm.DB
	RedisClient  *redis.Client
	AsynqClient  *asynq.Client
	WorkerServer *worker.Server
	HttpServer   *http.Server

	redisClientOpt asynq.RedisClientOpt
	scheduler      *asynq.Scheduler
}

// NewApp builds the full application graph.
func NewApp() (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	logrus.SetLevel(logLevel)
	log.Info("Configuration loaded")

	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database initialized and migrated")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	log.Info("Redis client initialized")

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)

	// Repositories and the realtime store.
	roomArchiveRepo := gormpersistence.NewGormRoomArchiveRepository(db)
	snapshotRepo := gormpersistence.NewGormSnapshotArchiveRepository(db)
	liveStore := redisstate.New(redisClient, cfg.KeyPrefix)

	// Core components.
	tracker := presence.NewTracker(liveStore)
	roomService := service.NewRoomService(liveStore, roomArchiveRepo, asynqClient)

	var responder chat.Responder
	if cfg.AssistantEndpoint != "" {
		responder = chat.NewHTTPResponder(cfg.AssistantEndpoint, cfg.AssistantAPIKey, 30*time.Second)
		log.Info("Assistant responder configured")
	} else {
		log.Warn("ASSISTANT_ENDPOINT not set, study buddy replies disabled")
	}
	gw := gateway.New(liveStore, tracker, responder, cfg.PushInterval)

	// Handlers and router.
	roomHandler := httpHandler.NewRoomHandler(roomService)

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(middleware.RateLimit(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow))

	api := router.Group("/api")
	roomRoutes := api.Group("/rooms").Use(middleware.Auth(cfg.JWTSecret))
	{
		roomRoutes.POST("", roomHandler.CreateRoom)
		roomRoutes.GET("/:roomId", roomHandler.GetRoom)
		roomRoutes.POST("/:roomId/end", roomHandler.EndRoom)
		roomRoutes.POST("/:roomId/editors", roomHandler.GrantEditor)
		roomRoutes.DELETE("/:roomId/editors/:userId", roomHandler.RevokeEditor)
	}
	wsRoutes := router.Group("/ws").Use(middleware.Auth(cfg.JWTSecret))
	{
		wsRoutes.GET("/room/:roomId", gw.HandleRoom)
	}
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

	// Background worker.
	workerServer := worker.NewServer(redisClientOpt, 10)
	workerServer.Handle(tasks.TypePresenceSweep, worker.NewPresenceSweepHandler(tracker, roomArchiveRepo, cfg.PresenceStale))
	workerServer.Handle(tasks.TypeRoomExpiry, worker.NewRoomExpiryHandler(roomService, roomArchiveRepo))
	workerServer.Handle(tasks.TypeSnapshotArchive, worker.NewSnapshotArchiveHandler(liveStore, snapshotRepo))

	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	return &App{
		Config:         cfg,
		Log:            log,
		DB:             db,
		RedisClient:    redisClient,
		AsynqClient:    asynqClient,
		WorkerServer:   workerServer,
		HttpServer:     httpServer,
		redisClientOpt: redisClientOpt,
	}, nil
}

// Start launches the worker, the periodic schedules and the HTTP server.
func (a *App) Start() {
	go func() {
		if err := a.WorkerServer.Start(); err != nil {
			a.Log.WithError(err).Fatal("Worker server failed")
		}
	}()
	a.Log.Info("Worker server started")

	a.registerPeriodicTasks()

	go func() {
		a.Log.Infof("HTTP server listening on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()
}

func (a *App) registerPeriodicTasks() {
	a.scheduler = asynq.NewScheduler(a.redisClientOpt, &asynq.SchedulerOpts{})

	schedules := []struct {
		spec string
		task *asynq.Task
	}{
		{"@every 1m", tasks.NewPresenceSweepTask()},
		{"@every 1m", tasks.NewRoomExpiryTask()},
	}
	for _, s := range schedules {
		entryID, err := a.scheduler.Register(s.spec, s.task, asynq.Queue("default"))
		if err != nil {
			a.Log.WithError(err).Errorf("Could not register periodic task %s", s.task.Type())
			continue
		}
		a.Log.Infof("Periodic task %s registered with schedule '%s' (EntryID: %s)", s.task.Type(), s.spec, entryID)
	}

	go func() {
		if err := a.scheduler.Run(); err != nil {
			a.Log.WithError(err).Error("Asynq scheduler stopped")
		}
	}()
}

// Shutdown stops components in reverse dependency order.
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	if a.scheduler != nil {
		a.scheduler.Shutdown()
	}
	if a.WorkerServer != nil {
		a.WorkerServer.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.WithError(err).Error("Error shutting down HTTP server")
	}

	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.WithError(err).Error("Error closing Asynq client")
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.WithError(err).Error("Error closing Redis connection")
		}
	}
	a.Log.Info("Application shutdown complete")
}

// LoggerMiddleware logs one structured line per request.
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()
		switch {
		case errorMessage != "":
			entry.Error(errorMessage)
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
