package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yourusername/crm-reminders/clock"
	"github.com/yourusername/crm-reminders/config"
	"github.com/yourusername/crm-reminders/datasource"
	"github.com/yourusername/crm-reminders/dispatch"
	"github.com/yourusername/crm-reminders/email"
	"github.com/yourusername/crm-reminders/handlers"
	"github.com/yourusername/crm-reminders/logger"
	"github.com/yourusername/crm-reminders/metrics"
	"github.com/yourusername/crm-reminders/middleware"
	"github.com/yourusername/crm-reminders/reminders"
)

// backend is what both data sources offer.
type backend interface {
	dispatch.Store
	reminders.DataSource
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zaplog, err := logger.NewZapLog(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zaplog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Data source
	var source backend
	var local *datasource.Database
	switch cfg.DataSource {
	case config.DataSourceRemote:
		source = datasource.NewClient(cfg.BackendURL, cfg.BackendAPIKey, cfg.BackendTimeout)
	default:
		db, err := config.InitDB(cfg)
		if err != nil {
			zaplog.Fatal("database connection failed", zap.Error(err))
		}
		local = datasource.NewDatabase(db)
		source = local
	}

	evaluator := reminders.NewEvaluator(reminders.Triggers{
		QuoteFollowupDays:  cfg.QuoteFollowupDays,
		InvoicePaymentDays: cfg.InvoicePaymentDays,
	})

	// send-reminders action, served in-process and over HTTP
	sender := &email.Sender{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Retry:    cfg.EmailRetry,
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.EmailRate), cfg.EmailRate)
	action := dispatch.NewAction(source, evaluator, sender, limiter, clock.SystemClock{}, zaplog)
	if local != nil {
		local.Register(reminders.ActionSendReminders, action.Handle)
	}

	functions := handlers.NewFunctionHandler()
	functions.Register(reminders.ActionSendReminders, action.Handle)

	orchestrator := reminders.NewOrchestrator(source, evaluator, clock.SystemClock{})

	// Metrics
	metrics.Init()
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	apiServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: setupRouter(cfg, orchestrator, functions, zaplog),
	}

	var wg sync.WaitGroup

	if cfg.DispatchInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dispatch.Every(ctx, cfg.DispatchInterval, orchestrator, zaplog)
		}()
	}

	go func() {
		zaplog.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zaplog.Error("metrics server error", zap.Error(err))
		}
	}()

	go func() {
		zaplog.Info("api server started", zap.String("port", cfg.Port), zap.String("data_source", cfg.DataSource))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zaplog.Error("api server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zaplog.Info("shutting down services...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		zaplog.Error("api shutdown failed", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		zaplog.Error("metrics shutdown failed", zap.Error(err))
	}

	wg.Wait()
	zaplog.Info("application shutdown complete")
}

func setupRouter(
	cfg *config.Config,
	service handlers.ReminderService,
	functions *handlers.FunctionHandler,
	zaplog *zap.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(zaplog))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "crm-reminders",
		})
	})

	auth := middleware.JwtAuthMiddleware(cfg)

	api := router.Group("/api/v1", auth)
	{
		reminderHandler := handlers.NewReminderHandler(service)
		api.GET("/reminders/upcoming", reminderHandler.ListUpcoming)
		api.GET("/reminders/stats", reminderHandler.Statistics)
		api.GET("/reminders/dashboard", reminderHandler.Dashboard)
		api.POST("/reminders/dispatch", middleware.RequireRole(middleware.RoleAdmin), reminderHandler.Dispatch)
	}

	router.POST("/functions/v1/:name", auth, middleware.RequireRole(middleware.RoleService, middleware.RoleAdmin), functions.Invoke)

	return router
}
