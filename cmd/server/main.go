package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	orchestration "github.com/azeebneuron/PaymentReminderCallerAgent/internal/application/collection"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/domain/collection"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/infrastructure/cache"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/infrastructure/classifier"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/infrastructure/config"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/infrastructure/gateway"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/infrastructure/ledger"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/infrastructure/logger"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/infrastructure/persistence"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/infrastructure/scheduler"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/interfaces/http/handler"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/interfaces/http/middleware"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting payment reminder caller",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database with the zap-backed GORM logger
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to migrate database schema", zap.Error(err))
	}
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	// Dispatch log: redis-backed when configured, in-memory otherwise
	var dispatchLog collection.DispatchLogStore
	if cfg.Redis.Enabled {
		redisLog, err := cache.NewRedisDispatchLog(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer func() {
			if err := redisLog.Close(); err != nil {
				log.Error("Error closing redis client", zap.Error(err))
			}
		}()
		dispatchLog = redisLog
		log.Info("Dispatch log backed by redis")
	} else {
		dispatchLog = cache.NewInMemoryDispatchLog()
		log.Warn("Redis disabled; dispatch rate budget resets on restart")
	}

	// Policy
	policy, err := buildPolicy(cfg.Policy)
	if err != nil {
		log.Fatal("Invalid dispatch policy", zap.Error(err))
	}

	// Adapters
	vapi, err := gateway.NewVapiAdapter(gateway.VapiConfig{
		BaseURL:       cfg.Gateway.BaseURL,
		APIKey:        cfg.Gateway.APIKey,
		PhoneNumberID: cfg.Gateway.PhoneNumberID,
		WebhookSecret: cfg.Gateway.WebhookSecret,
		DefaultRegion: cfg.Gateway.DefaultRegion,
		Timeout:       cfg.Gateway.Timeout,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize call gateway", zap.Error(err))
	}

	gemini, err := classifier.NewGeminiClassifier(classifier.GeminiConfig{
		BaseURL: cfg.Classifier.BaseURL,
		APIKey:  cfg.Classifier.APIKey,
		Model:   cfg.Classifier.Model,
		Timeout: cfg.Classifier.Timeout,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize outcome classifier", zap.Error(err))
	}

	sheets, err := ledger.NewSheetsLedger(ledger.SheetsConfig{
		BaseURL:         cfg.Ledger.BaseURL,
		APIKey:          cfg.Ledger.APIKey,
		RegistrySheetID: cfg.Ledger.RegistrySheetID,
		Timeout:         cfg.Ledger.Timeout,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize ledger", zap.Error(err))
	}

	// Core pipeline
	repo := persistence.NewGormCallAttemptRepository(db.DB)
	tracker := orchestration.NewCallStateTracker(repo, log)
	reconciler := orchestration.NewLedgerReconciler(sheets, orchestration.DefaultLedgerRetryPolicy(), log)

	orch := orchestration.NewOrchestrator(policy, orchestration.OrchestratorConfig{
		Workers:         cfg.Dispatch.Workers,
		RetryDelay:      cfg.Dispatch.RetryDelay,
		ClassifyTimeout: cfg.Dispatch.ClassifyTimeout,
		CallbackURL:     cfg.Dispatch.CallbackURL,
	}, orchestration.OrchestratorDeps{
		Gateway:     vapi,
		Classifier:  gemini,
		Ledger:      sheets,
		Tracker:     tracker,
		Repository:  repo,
		DispatchLog: dispatchLog,
		Reconciler:  reconciler,
		Logger:      log,
	})

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if err := tracker.Recover(startupCtx); err != nil {
		cancelStartup()
		log.Fatal("Failed to recover in-flight call attempts", zap.Error(err))
	}
	if err := orch.RestoreDispatchWindow(startupCtx); err != nil {
		log.Warn("Could not restore dispatch rate window", zap.Error(err))
	}
	cancelStartup()

	// Background scheduling
	if cfg.Scheduler.Enabled {
		trigger, err := scheduler.NewCycleTrigger(scheduler.CycleTriggerConfig{
			DailyRunTime: cfg.Scheduler.DailyRunTime,
			Location:     policy.Timezone,
		}, orch, sheets, log)
		if err != nil {
			log.Fatal("Failed to initialize cycle trigger", zap.Error(err))
		}
		if err := trigger.Start(context.Background()); err != nil {
			log.Fatal("Failed to start cycle trigger", zap.Error(err))
		}
		defer stopComponent(trigger.Stop, log, "cycle trigger")

		maintenance := scheduler.NewMaintenanceLoop(scheduler.MaintenanceConfig{
			WatchdogInterval:  cfg.Scheduler.WatchdogInterval,
			ReconcileInterval: cfg.Scheduler.ReconcileInterval,
		}, orch, log)
		if err := maintenance.Start(context.Background()); err != nil {
			log.Fatal("Failed to start maintenance loops", zap.Error(err))
		}
		defer stopComponent(maintenance.Stop, log, "maintenance loops")
	} else {
		log.Warn("Scheduler disabled; cycles run only via the API")
	}

	// HTTP surface
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
	)

	router.NewRouter(engine).
		Register(handler.NewSystemHandler(db)).
		Register(handler.NewWebhookHandler(vapi, orch, log)).
		Register(handler.NewCallHandler(orch, sheets, repo, log)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// buildPolicy translates the raw config section into the domain policy
func buildPolicy(cfg config.PolicyConfig) (collection.PolicyConfig, error) {
	start, err := collection.ParseClockTime(cfg.BusinessStart)
	if err != nil {
		return collection.PolicyConfig{}, err
	}
	end, err := collection.ParseClockTime(cfg.BusinessEnd)
	if err != nil {
		return collection.PolicyConfig{}, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return collection.PolicyConfig{}, err
	}

	policy := collection.PolicyConfig{
		BusinessStart:    start,
		BusinessEnd:      end,
		Timezone:         loc,
		MaxRetryAttempts: cfg.MaxRetryAttempts,
		CallsPerMinute:   cfg.CallsPerMinute,
		MaxCallDuration:  cfg.MaxCallDuration,
		WatchdogGrace:    cfg.WatchdogGrace,
	}
	if err := policy.Validate(); err != nil {
		return collection.PolicyConfig{}, err
	}
	return policy, nil
}

// stopComponent stops a background component with a bounded wait
func stopComponent(stop func(context.Context) error, log *zap.Logger, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		log.Error("Failed to stop "+name, zap.Error(err))
	}
}
