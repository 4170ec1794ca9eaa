// Package main — точка входа сервиса баллов за сбор мусора.
// Загружает конфигурацию, инициализирует приложение и запускает HTTP API.
// Поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // APP_TIMEZONE в контейнере без системной базы зон

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/waste-rewards/internal/app"
	"serotonyl.ru/waste-rewards/internal/config"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Настраиваем логирование
	setupLogging(false)

	log.Info("=== Сервис запускается ===")

	// Загружаем конфигурацию из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	setupLogging(cfg.IsProduction())
	// Устанавливаем уровень логирования из конфига
	if level, err := log.ParseLevel(cfg.AppLogLevel); err == nil {
		log.SetLevel(level)
	}

	// Контекст отменяется по Ctrl+C или docker stop
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Инициализируем приложение (БД, сервисы, обработчики)
	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Не удалось инициализировать приложение")
	}

	// Запускаем планировщик задач (cron)
	if err := application.Scheduler.Start(ctx); err != nil {
		log.WithError(err).Fatal("Не удалось запустить планировщик")
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- application.Server.Start() }()

	log.Info("=== Сервис готов к работе ===")

	// Ждём сигнала остановки или падения сервера
	select {
	case <-ctx.Done():
		log.Info("Получен сигнал остановки, останавливаемся...")
	case err := <-serverErr:
		if err != nil {
			log.WithError(err).Error("HTTP-сервер остановился с ошибкой")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Ошибка при остановке")
	}

	log.Info("=== Сервис остановлен ===")
}

// setupLogging настраивает формат логов: JSON в production, текст локально.
func setupLogging(production bool) {
	if production {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}
