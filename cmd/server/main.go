package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yusrai/internal/config"
	"yusrai/internal/handlers"
	"yusrai/internal/middleware"
	"yusrai/internal/models"
	"yusrai/internal/observability"
	"yusrai/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()

	var (
		flagDSN string
		srvHost string
		srvPort int
	)
	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(os.Stdout)
	flagSet.StringVar(&flagDSN, "dsn", os.Getenv("DB_DSN"), "Postgres DSN, if set overrides config database settings")
	flagSet.StringVar(&srvHost, "host", cfg.Server.Host, "server host (listen)")
	flagSet.IntVar(&srvPort, "port", cfg.Server.Port, "server port (listen)")
	_ = flagSet.Parse(os.Args[1:])

	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	shutdownOTel, err := observability.SetupTracing(context.Background(), cfg)
	if err != nil {
		appLogger.Warnf("init tracing: %v", err)
	} else {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	dsn := flagDSN
	if dsn == "" {
		dsn = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port,
		)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		appLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Monitoring.Tracing.Enabled {
		_ = db.Use(gormtracing.NewPlugin())
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	// services
	responses := services.NewResponseService(db, appLogger)
	automations := services.NewAutomationService(db, appLogger)
	credentials, err := services.NewCredentialService(db, appLogger, cfg.Credentials)
	if err != nil {
		appLogger.Fatalf("Failed to initialize credential service: %v", err)
	}
	decisions := services.NewAgentDecisionService(db, appLogger)
	readiness := services.NewReadinessService(db, appLogger, responses, credentials, decisions)
	hub := services.NewProgressHub(appLogger)
	go hub.Run()
	executor := services.NewExecutionService(db, appLogger, readiness, responses, hub, cfg.Dispatch)
	llm := services.NewLLMService(cfg.LLM, appLogger)

	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	defer cancelScheduler()
	if cfg.Scheduler.Enabled {
		scheduler := services.NewSchedulerService(db, appLogger, responses, executor, cfg.Scheduler.ScanInterval)
		scheduler.Start(schedulerCtx)
		defer scheduler.Stop()
	}

	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	if cfg.Monitoring.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Monitoring.Tracing.ServiceName))
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/health", healthHandler.Health)
	if cfg.Monitoring.Enabled {
		r.GET(cfg.Monitoring.MetricsPath, healthHandler.Metrics)
	}
	r.GET("/ws/progress", hub.HandleWebSocket)

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(cfg))
	handlers.RegisterAutomationRoutes(api, handlers.NewAutomationHandler(automations, responses, readiness, executor, appLogger))
	handlers.RegisterChatRoutes(api, handlers.NewChatHandler(llm, responses, automations, appLogger))
	handlers.RegisterCredentialRoutes(api, handlers.NewCredentialHandler(credentials, responses, appLogger))
	handlers.RegisterAgentRoutes(api, handlers.NewAgentHandler(decisions, appLogger))

	srv := &http.Server{Addr: fmt.Sprintf("%s:%d", srvHost, srvPort), Handler: r}
	go func() {
		appLogger.Infof("Starting server on %s:%d", srvHost, srvPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatalf("Server forced to shutdown: %v", err)
	}
	appLogger.Info("Server exited")
}

// corsMiddleware allows the web client to call the API cross-origin.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
