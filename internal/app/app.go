// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, репозитории, сервисы, обработчики,
// интеграции и собирает всё в один объект App.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/waste-rewards/internal/config"
	"serotonyl.ru/waste-rewards/internal/db/migrations"
	"serotonyl.ru/waste-rewards/internal/db/postgres"
	"serotonyl.ru/waste-rewards/internal/features/accounts"
	"serotonyl.ru/waste-rewards/internal/features/admin"
	"serotonyl.ru/waste-rewards/internal/features/ledger"
	"serotonyl.ru/waste-rewards/internal/features/notifications"
	"serotonyl.ru/waste-rewards/internal/features/reports"
	"serotonyl.ru/waste-rewards/internal/jobs"
	"serotonyl.ru/waste-rewards/internal/media"
	"serotonyl.ru/waste-rewards/internal/server"
	"serotonyl.ru/waste-rewards/internal/server/middleware"
	"serotonyl.ru/waste-rewards/internal/session"
	"serotonyl.ru/waste-rewards/internal/verification"
)

// App содержит все компоненты приложения.
type App struct {
	Server        *server.Server
	Scheduler     *jobs.Scheduler
	Notifications *notifications.Service
	DB            *pgxpool.Pool
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. Sentry ===
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.AppEnv,
		}); err != nil {
			return nil, fmt.Errorf("ошибка инициализации Sentry: %w", err)
		}
		log.Info("Sentry подключен")
	}

	if err := admin.ValidateHash(cfg.AdminPasswordHash); err != nil {
		return nil, fmt.Errorf("ADMIN_PASSWORD_HASH: %w", err)
	}

	// === 2. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	if err := postgres.RunMigrations(ctx, pool, migrations.All); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 3. Интеграции ===
	images, err := newImageStore(cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	verifier := newVerifier(cfg)

	// === 4. Репозитории ===
	ledgerRepo := ledger.NewRepository(pool)
	accountRepo := accounts.NewRepository(pool)
	notificationRepo := notifications.NewRepository(pool)
	reportRepo := reports.NewRepository(pool)
	adminRepo := admin.NewRepository(pool)

	// === 5. Сервисы ===
	sessions := session.NewManager(cfg.JWTSecret, cfg.SessionTTL)
	ledgerService := ledger.NewService(ledgerRepo, cfg.Location())
	accountService := accounts.NewService(accountRepo, ledgerService)

	pusher, err := notifications.NewTelegramPusher(cfg.TelegramBotToken, accountService)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка создания Telegram-бота: %w", err)
	}
	var notificationService *notifications.Service
	if pusher != nil {
		log.Info("Push-уведомления в Telegram включены")
		notificationService = notifications.NewService(notificationRepo, pusher)
	} else {
		notificationService = notifications.NewService(notificationRepo, nil)
	}

	reportService := reports.NewService(reportRepo, verifier, images, notificationService, reports.Options{
		ReportReward:  cfg.ReportRewardPoints,
		CollectReward: cfg.CollectRewardPoints,
		ClaimTTL:      cfg.ClaimTTL,
	})
	adminService := admin.NewService(adminRepo, sessions, cfg.AdminPasswordHash)

	// === 6. Обработчики и HTTP ===
	secure := cfg.IsProduction()
	handlers := server.Handlers{
		Accounts:      accounts.NewHandler(accountService, sessions, cfg.ServiceKey, secure),
		Admin:         admin.NewHandler(adminService, secure),
		Ledger:        ledger.NewHandler(ledgerService),
		Reports:       reports.NewHandler(reportService),
		Notifications: notifications.NewHandler(notificationService),
	}
	limiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	srv := server.New(server.Options{
		Addr:           cfg.HTTPAddr,
		ReadTimeout:    cfg.HTTPReadTimeout,
		WriteTimeout:   cfg.HTTPWriteTimeout,
		RequestTimeout: cfg.HTTPRequestTimeout,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, handlers, sessions, limiter, pool)

	// === 7. Планировщик задач ===
	scheduler := jobs.NewScheduler(ledgerService, reportService, cfg.Location())

	return &App{
		Server:        srv,
		Scheduler:     scheduler,
		Notifications: notificationService,
		DB:            pool,
	}, nil
}

// Shutdown останавливает компоненты в обратном порядке: HTTP, cron,
// фоновые уведомления, пул БД, Sentry.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("остановка HTTP-сервера: %w", err))
	}
	a.Scheduler.Stop()
	a.Notifications.Wait()
	a.DB.Close()
	sentry.Flush(2 * time.Second)
	return errors.Join(errs...)
}

func newImageStore(cfg *config.Config) (media.Store, error) {
	if cfg.CloudinaryURL == "" {
		log.Info("CLOUDINARY_URL не задан, фото хранятся в БД как data URI")
		return media.InlineStore{}, nil
	}
	store, err := media.NewCloudinaryStore(cfg.CloudinaryURL, cfg.CloudinaryFolder)
	if err != nil {
		return nil, fmt.Errorf("ошибка настройки Cloudinary: %w", err)
	}
	log.Info("Фото загружаются в Cloudinary")
	return store, nil
}

func newVerifier(cfg *config.Config) verification.Verifier {
	if cfg.VerifierDisabled {
		log.Warn("Проверка фото отключена (VERIFIER_DISABLED), подтверждение сбора вернёт 502")
		return verification.Disabled{}
	}
	return verification.NewClient(cfg.VerifierBaseURL, cfg.VerifierModel, cfg.VerifierAPIKey, cfg.VerifierTimeout)
}
