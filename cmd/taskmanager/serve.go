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

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"task-manager/internal/auth"
	"task-manager/internal/bot"
	"task-manager/internal/cache"
	"task-manager/internal/config"
	"task-manager/internal/httpapi"
	"task-manager/internal/repository"
	"task-manager/internal/service"
)

const shutdownTimeout = 10 * time.Second

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if logger.GetLevel() > log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := repository.NewDB(cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer closeDB(db)

	userRepo := repository.NewUserRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	views := openViewCache(ctx, cfg, logger)
	defer views.Close()

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	accountSvc := service.NewAccountService(userRepo, tokens, logger)
	categorySvc := service.NewCategoryService(categoryRepo, views, logger)
	taskSvc := service.NewTaskService(taskRepo, categoryRepo, views, logger)
	reminderSvc := service.NewReminderService(taskRepo)

	router := httpapi.New(httpapi.Deps{
		Tasks:      taskSvc,
		Categories: categorySvc,
		Accounts:   accountSvc,
		Tokens:     tokens,
		Views:      views,
		Logger:     logger,
		Ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		RateLimit:   cfg.RateLimit,
		CORSOrigins: cfg.CORSOrigins,
	})
	server := httpapi.NewServer(cfg.HTTPAddr, router)

	var (
		telegramBot *bot.Bot
		scheduler   *service.SchedulerService
	)
	if cfg.BotEnabled() {
		telegramBot, err = bot.New(cfg.TelegramToken, bot.Deps{
			Accounts:       accountSvc,
			Tasks:          taskSvc,
			Categories:     categorySvc,
			Reminders:      reminderSvc,
			Logger:         logger,
			ReportInterval: cfg.ReportInterval,
			ReportAt:       cfg.ReportAt,
		})
		if err != nil {
			return fmt.Errorf("bot: %w", err)
		}

		scheduler = service.NewSchedulerService(time.Local, logger)
		err = scheduleReports(scheduler, cfg, func(ctx context.Context) {
			jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := telegramBot.SendDailyReports(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("send reports", "err", err)
			}
		})
		if err != nil {
			return err
		}
	} else {
		logger.Info("telegram bot disabled", "hint", "set TELEGRAM_TOKEN to enable")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if telegramBot != nil {
		scheduler.Start(gctx)
		defer scheduler.Stop()

		g.Go(func() error {
			return telegramBot.Start(gctx)
		})
	}

	logger.Info("task manager started")
	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

// scheduleReports registers job once a day at cfg.ReportAt when set,
// otherwise every cfg.ReportInterval.
func scheduleReports(scheduler *service.SchedulerService, cfg config.Config, job func(context.Context)) error {
	var err error
	if cfg.ReportAt != "" {
		_, err = scheduler.ScheduleDaily(cfg.ReportAt, job)
	} else {
		_, err = scheduler.ScheduleInterval(cfg.ReportInterval, job)
	}
	if err != nil {
		return fmt.Errorf("schedule reports: %w", err)
	}
	return nil
}

// openViewCache uses Redis when configured and reachable, otherwise an
// in-process cache.
func openViewCache(ctx context.Context, cfg config.Config, logger *log.Logger) cache.ViewCache {
	if cfg.RedisAddr != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		redisCache, err := cache.DialRedis(dialCtx, cfg.RedisAddr, cfg.ViewCacheTTL)
		if err == nil {
			logger.Info("view cache: redis", "addr", cfg.RedisAddr)
			return redisCache
		}
		logger.Warn("redis unavailable, continuing with memory cache", "addr", cfg.RedisAddr, "err", err)
	}
	return cache.NewMemoryCache(cfg.ViewCacheTTL, time.Minute)
}
