// Точка входа Upload Module — модуля порционной загрузки файлов артефактов.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/modelreg/upload-module/internal/api/handlers"
	"github.com/bigkaa/modelreg/upload-module/internal/api/middleware"
	"github.com/bigkaa/modelreg/upload-module/internal/config"
	"github.com/bigkaa/modelreg/upload-module/internal/database"
	"github.com/bigkaa/modelreg/upload-module/internal/registry"
	"github.com/bigkaa/modelreg/upload-module/internal/repository"
	"github.com/bigkaa/modelreg/upload-module/internal/server"
	"github.com/bigkaa/modelreg/upload-module/internal/service"
	"github.com/bigkaa/modelreg/upload-module/internal/session"
	"github.com/bigkaa/modelreg/upload-module/internal/storage/chunkstore"
	"github.com/bigkaa/modelreg/upload-module/internal/storage/journal"
	"github.com/bigkaa/modelreg/upload-module/internal/storage/sink"
	"github.com/bigkaa/modelreg/upload-module/internal/validation"
)

// Параметры JWKS-клиента JWT middleware.
const (
	jwksClientTimeout   = 10 * time.Second
	jwksRefreshInterval = 5 * time.Minute
	jwtLeeway           = 30 * time.Second
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Upload Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("staging_dir", cfg.StagingDir),
		slog.String("data_dir", cfg.DataDir),
	)

	// --- Инициализация компонентов ---

	// 1. Журнал операций
	jrnl, err := journal.New(cfg.JournalDir, logger)
	if err != nil {
		logger.Error("Ошибка инициализации журнала", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Journal recovery: откатываем pending операции, оставшиеся
	// после аварийного завершения
	pending, err := jrnl.RecoverPending()
	if err != nil {
		logger.Error("Ошибка восстановления журнала", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if len(pending) > 0 {
		logger.Warn("Обнаружены незавершённые операции, откатываем",
			slog.Int("count", len(pending)),
		)
		for _, entry := range pending {
			if rbErr := jrnl.Rollback(entry.OpID); rbErr != nil {
				logger.Error("Ошибка отката операции",
					slog.String("op_id", entry.OpID),
					slog.String("error", rbErr.Error()),
				)
			} else {
				logger.Info("Операция откачена",
					slog.String("op_id", entry.OpID),
					slog.String("session_id", entry.SessionID),
				)
			}
		}
	}

	// 2. Staging-хранилище chunk'ов
	chunks, err := chunkstore.New(cfg.StagingDir)
	if err != nil {
		logger.Error("Ошибка инициализации staging-хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Сессии живут только в памяти: после рестарта все staged-данные
	// осиротели, удаляем их
	orphaned, err := chunks.Sweep(nil)
	if err != nil {
		logger.Error("Ошибка очистки staging-директории", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if len(orphaned) > 0 {
		logger.Warn("Удалены осиротевшие staging-данные",
			slog.Int("count", len(orphaned)),
		)
	}

	// 3. Арена сессий
	sessions := session.NewStore()

	// 4. Хранилище собранных объектов
	objectSink, err := sink.NewLocal(cfg.DataDir)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища объектов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	// 5. Реестр файлов: PostgreSQL либо in-memory (если БД не настроена)
	var files repository.FileRegistry
	var pool *pgxpool.Pool
	var dbChecker handlers.ReadinessChecker
	if cfg.DBConfigured() {
		if err := database.Migrate(cfg, logger); err != nil {
			logger.Error("Ошибка миграций", slog.String("error", err.Error()))
			os.Exit(1)
		}
		pool, err = database.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()
		files = repository.NewPostgres(pool)
		dbChecker = &dbReadiness{pool: pool}
	} else {
		logger.Warn("PostgreSQL не настроен, реестр файлов хранится в памяти")
		files = repository.NewMemory()
	}

	// 6. Клиент реестра артефактов (с LRU-кешем)
	artifacts := registry.NewClient(cfg.RegistryURL, cfg.RegistryCacheTTL)

	// 7. Pipeline валидации
	var scanner validation.Scanner
	if cfg.MalwareScan {
		scanner = &validation.HeuristicScanner{}
	}
	checks := validation.Default(validation.DefaultMaxSizes(), validation.DefaultAllowedMIME(), scanner)

	// 8. Сервис загрузки
	uploadSvc := service.NewUploadService(cfg, sessions, chunks, jrnl, objectSink, files, artifacts, checks, logger)

	// 9. Фоновые процессы

	// 9.1 Reaper — очистка истёкших сессий
	reaper := service.NewReaper(sessions, chunks, jrnl, cfg.ReaperInterval, cfg.FinalizeGracePeriod, logger)
	reaper.Start(ctx)

	// 9.2 topologymetrics — мониторинг зависимостей
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthParams{
		InstanceName:  resolveInstanceName(cfg, logger),
		Group:         cfg.DephealthGroup,
		JWKSUrl:       cfg.JWKSUrl,
		RegistryURL:   cfg.RegistryURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 10. Handlers
	specHandler, err := handlers.NewSpecHandler()
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI-спецификации", slog.String("error", err.Error()))
		os.Exit(1)
	}
	healthHandler := handlers.NewHealthHandler(cfg.StagingDir, dbChecker)
	apiHandler := handlers.NewAPIHandler(uploadSvc, healthHandler, specHandler, logger)

	// 11. Middleware: metrics → logging → JWT
	middlewares := []func(http.Handler) http.Handler{
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	}

	jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
		JWKSURL:         cfg.JWKSUrl,
		CACertPath:      cfg.JWKSCACert,
		TLSSkipVerify:   cfg.JWKSTLSSkipVerify,
		ClientTimeout:   jwksClientTimeout,
		RefreshInterval: jwksRefreshInterval,
		JWTLeeway:       jwtLeeway,
	}, logger)
	if err != nil {
		// JWT недоступен — запускаем без аутентификации (для разработки)
		logger.Warn("JWT JWKS недоступен, запуск без аутентификации",
			slog.String("jwks_url", cfg.JWKSUrl),
			slog.String("error", err.Error()),
		)
	} else {
		defer jwtAuth.Close()
		middlewares = append(middlewares, server.JWTAuthWithExclusions(
			jwtAuth.Middleware(),
			"/health",
			"/metrics",
			"/api/v1/openapi.json",
		))
		logger.Info("JWT аутентификация настроена",
			slog.String("jwks_url", cfg.JWKSUrl),
		)
	}

	// 12. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, middlewares...)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")

	reaper.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Upload Module остановлен")
}

// dbReadiness — readiness checker PostgreSQL для /health/ready.
type dbReadiness struct {
	pool *pgxpool.Pool
}

func (c *dbReadiness) CheckReady() (status, message string) {
	if err := database.Ready(context.Background(), c.pool); err != nil {
		return "fail", err.Error()
	}
	return "ok", "PostgreSQL доступен"
}

// resolveInstanceName определяет имя вершины графа topologymetrics:
// DEPHEALTH_NAME из конфигурации либо имя владельца пода из hostname.
func resolveInstanceName(cfg *config.Config, logger *slog.Logger) string {
	if cfg.DephealthName != "" {
		return cfg.DephealthName
	}
	hostname, err := os.Hostname()
	if err != nil {
		logger.Warn("Не удалось определить hostname", slog.String("error", err.Error()))
		return "upload-module"
	}
	return parseOwnerName(hostname)
}
