package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sweep_notifier/internal/app"
	"sweep_notifier/internal/domain/notification"
	"sweep_notifier/internal/domain/schedule"
	"sweep_notifier/internal/domain/subscription"
	"sweep_notifier/internal/infra/config"
	idb "sweep_notifier/internal/infra/database"
	"sweep_notifier/internal/infra/geodata"
	"sweep_notifier/internal/infra/httpapi"
	"sweep_notifier/internal/infra/logger"
	"sweep_notifier/internal/infra/metrics"
	"sweep_notifier/internal/infra/push"
	"sweep_notifier/internal/infra/scheduler"
	"sweep_notifier/internal/infra/telegram"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	fmt.Println("Sweep notifier starting...")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Could not load application configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"http_port":   cfg.HTTPPort,
	}).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL, idb.PoolOptions{MaxOpen: cfg.DatabaseMaxConns, MaxIdle: cfg.DatabaseMaxConns})
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()
	mainLogger.Info("Database connection established")

	if cfg.AutoMigrate {
		if err := idb.EnsureSchema(ctx, db); err != nil {
			mainLogger.WithError(err).Fatal("Could not apply database schema")
		}
	}

	subsRepo := idb.NewPostgresSubscriptionRepository(db)
	taskRepo := idb.NewPostgresNotificationRepository(db)

	redisClient, err := geodata.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		mainLogger.WithError(err).Warn("Redis unavailable, lookups will not be cached")
		redisClient = nil
	}
	cache := geodata.NewCache(redisClient, cfg.Redis.TTL)
	defer cache.Close()
	geo := geodata.NewClient(cfg.Geodata, cache, logger.Component("geodata"))

	metricsSvc := metrics.NewService()

	pushRouter, err := buildPushRouter(ctx, cfg, mainLogger)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not initialize push delivery")
	}

	var bot *telebot.Bot
	if cfg.TelegramToken != "" {
		bot, err = newBot(cfg.TelegramToken)
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not create Telegram bot")
		}
		pushRouter.Route(telegram.NewGateway(bot), subscription.PlatformTelegram)
	} else {
		mainLogger.Info("TELEGRAM_TOKEN not set, telegram reminders will only be logged")
		pushRouter.Route(push.NewLogGateway(logger.Component("push")), subscription.PlatformTelegram)
	}

	calendar := schedule.DefaultCalendar
	resolver := schedule.NewResolver(calendar)

	notifier := app.NewNotificationScheduler(taskRepo, subsRepo, pushRouter, metricsSvc, logrus.NewEntry(logger.Log), cfg.DispatchBatchSize)
	subsSvc := app.NewSubscriptionService(subsRepo, taskRepo, notifier, geo, geo, calendar, cfg.SubscriptionLimit, logrus.NewEntry(logger.Log))
	locationSvc := app.NewLocationService(geo, geo, resolver, cfg.Geodata.RegulationRadiusM, metricsSvc, logrus.NewEntry(logger.Log))

	if bot != nil {
		telegram.RegisterBotCommands(ctx, bot, subsSvc, calendar.Region, logger.Component("telegram"))
		go bot.Start()
		mainLogger.Info("Telegram bot started")
	}

	jobs := scheduler.NewJobScheduler(notifier, subsSvc, logger.Component("scheduler"), cfg.CronSpecDispatch, cfg.CronSpecRearm)
	if err := jobs.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start job scheduler")
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := httpapi.NewRouter(httpapi.Dependencies{
		Subscriptions:  subsSvc,
		Locations:      locationSvc,
		Region:         calendar.Region,
		Metrics:        metricsSvc,
		MetricsHandler: metricsSvc.Handler(),
		CORSOrigins:    cfg.CORSOrigins,
		Health:         db.PingContext,
		Logger:         logger.Component("http"),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		mainLogger.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mainLogger.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	mainLogger.Info("Shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("HTTP server shutdown incomplete")
	}
	jobs.Stop()
	if bot != nil {
		bot.Stop()
	}
	mainLogger.Info("Application shut down gracefully")
}

// buildPushRouter routes mobile and web tokens to FCM, or to the log gateway
// when credentials are missing or dry run is on.
func buildPushRouter(ctx context.Context, cfg *config.AppConfig, log *logrus.Entry) (*push.Router, error) {
	var gw notification.PushGateway
	if cfg.Push.ServiceAccountJSON != "" && !cfg.Push.DryRun {
		fcm, err := push.NewFCMGateway(ctx, cfg.Push.ServiceAccountJSON, cfg.Push.ProjectID, cfg.Push.RatePerSec, logger.Component("fcm"))
		if err != nil {
			return nil, err
		}
		gw = fcm
	} else {
		log.Info("FCM disabled, pushes will only be logged")
		gw = push.NewLogGateway(logger.Component("push"))
	}
	return push.NewRouter().Route(gw, subscription.PlatformIOS, subscription.PlatformAndroid, subscription.PlatformWeb), nil
}

func newBot(token string) (*telebot.Bot, error) {
	botLogger := logger.Component("telebot")
	return telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			entry := botLogger.WithError(err)
			if c != nil && c.Chat() != nil {
				entry = entry.WithField("chat_id", c.Chat().ID)
			}
			entry.Error("Telegram handler failed")
		},
	})
}
