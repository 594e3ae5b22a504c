// Пакет config — загрузка и валидация конфигурации Upload Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Upload Module.
type Config struct {
	// Порт HTTP-сервера (диапазон 8030-8039)
	Port int
	// Путь к staging-директории принятых чанков
	StagingDir string
	// Путь к директории durable-хранилища собранных файлов
	DataDir string
	// Путь к директории журнала операций сборки
	JournalDir string
	// Максимальный размер собираемого объекта в байтах
	MaxObjectSize int64
	// Срок жизни upload-сессии (фиксированное окно от создания)
	SessionTTL time.Duration
	// Интервал запуска reaper
	ReaperInterval time.Duration
	// Период, после которого зависшая finalizing-сессия считается брошенной
	FinalizeGracePeriod time.Duration
	// Включена ли эвристическая проверка на вредоносное содержимое
	MalwareScan bool
	// URL реестра артефактов (Registry Module)
	RegistryURL string
	// Срок жизни записей кэша ответов реестра
	RegistryCacheTTL time.Duration
	// URL JWKS endpoint Admin Module
	JWKSUrl string
	// Путь к CA-сертификату для проверки TLS JWKS endpoint (опционально)
	JWKSCACert string
	// Пропускать проверку TLS-сертификата JWKS endpoint
	JWKSTLSSkipVerify bool
	// Путь к TLS сертификату
	TLSCert string
	// Путь к TLS приватному ключу
	TLSKey string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics (UM_DEPHEALTH_GROUP)
	DephealthGroup string
	// Имя владельца пода для метки name в topologymetrics (DEPHEALTH_NAME)
	DephealthName string
	// Таймаут graceful shutdown HTTP-сервера.
	// Должен быть меньше K8s terminationGracePeriodSeconds.
	ShutdownTimeout time.Duration

	// Хост PostgreSQL; пустое значение переключает реестр файлов
	// на реализацию в памяти
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Пользователь PostgreSQL
	DBUser string
	// Пароль PostgreSQL
	DBPassword string
	// Имя базы данных
	DBName string
	// Режим SSL подключения к PostgreSQL
	DBSSLMode string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// UM_PORT — порт HTTP-сервера (по умолчанию 8030)
	port, err := getEnvInt("UM_PORT", 8030)
	if err != nil {
		return nil, fmt.Errorf("UM_PORT: %w", err)
	}
	if port < 8030 || port > 8039 {
		return nil, fmt.Errorf("UM_PORT: значение %d вне допустимого диапазона 8030-8039", port)
	}
	cfg.Port = port

	// UM_STAGING_DIR — обязательный
	cfg.StagingDir, err = getEnvRequired("UM_STAGING_DIR")
	if err != nil {
		return nil, err
	}

	// UM_DATA_DIR — обязательный
	cfg.DataDir, err = getEnvRequired("UM_DATA_DIR")
	if err != nil {
		return nil, err
	}

	// UM_JOURNAL_DIR — обязательный
	cfg.JournalDir, err = getEnvRequired("UM_JOURNAL_DIR")
	if err != nil {
		return nil, err
	}

	// UM_MAX_OBJECT_SIZE — лимит размера объекта (по умолчанию 100 GB)
	maxObjectSize, err := getEnvInt64("UM_MAX_OBJECT_SIZE", 100_000_000_000)
	if err != nil {
		return nil, fmt.Errorf("UM_MAX_OBJECT_SIZE: %w", err)
	}
	if maxObjectSize <= 0 {
		return nil, fmt.Errorf("UM_MAX_OBJECT_SIZE: значение должно быть положительным")
	}
	cfg.MaxObjectSize = maxObjectSize

	// UM_SESSION_TTL — срок жизни сессии (по умолчанию 24h)
	cfg.SessionTTL, err = getEnvDuration("UM_SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("UM_SESSION_TTL: %w", err)
	}

	// UM_REAPER_INTERVAL — интервал reaper (по умолчанию 5m)
	cfg.ReaperInterval, err = getEnvDuration("UM_REAPER_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("UM_REAPER_INTERVAL: %w", err)
	}

	// UM_FINALIZE_GRACE_PERIOD — допуск для finalizing после истечения TTL (по умолчанию 1h)
	cfg.FinalizeGracePeriod, err = getEnvDuration("UM_FINALIZE_GRACE_PERIOD", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("UM_FINALIZE_GRACE_PERIOD: %w", err)
	}

	// UM_MALWARE_SCAN — эвристическая проверка содержимого (по умолчанию true)
	cfg.MalwareScan, err = getEnvBool("UM_MALWARE_SCAN", true)
	if err != nil {
		return nil, fmt.Errorf("UM_MALWARE_SCAN: %w", err)
	}

	// UM_REGISTRY_URL — обязательный
	cfg.RegistryURL, err = getEnvRequired("UM_REGISTRY_URL")
	if err != nil {
		return nil, err
	}

	// UM_REGISTRY_CACHE_TTL — срок жизни кэша реестра (по умолчанию 1m)
	cfg.RegistryCacheTTL, err = getEnvDuration("UM_REGISTRY_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("UM_REGISTRY_CACHE_TTL: %w", err)
	}

	// UM_JWKS_URL — обязательный
	cfg.JWKSUrl, err = getEnvRequired("UM_JWKS_URL")
	if err != nil {
		return nil, err
	}

	// UM_JWKS_CA_CERT — путь к CA-сертификату для JWKS endpoint (опционально)
	cfg.JWKSCACert = getEnvDefault("UM_JWKS_CA_CERT", "")

	// UM_JWKS_TLS_SKIP_VERIFY — пропуск проверки TLS JWKS (по умолчанию false)
	cfg.JWKSTLSSkipVerify, err = getEnvBool("UM_JWKS_TLS_SKIP_VERIFY", false)
	if err != nil {
		return nil, fmt.Errorf("UM_JWKS_TLS_SKIP_VERIFY: %w", err)
	}

	// UM_TLS_CERT — обязательный
	cfg.TLSCert, err = getEnvRequired("UM_TLS_CERT")
	if err != nil {
		return nil, err
	}

	// UM_TLS_KEY — обязательный
	cfg.TLSKey, err = getEnvRequired("UM_TLS_KEY")
	if err != nil {
		return nil, err
	}

	// UM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("UM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("UM_LOG_LEVEL: %w", err)
	}

	// UM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("UM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("UM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// UM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("UM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("UM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// UM_DEPHEALTH_GROUP — имя группы в метриках topologymetrics (по умолчанию "upload-module")
	cfg.DephealthGroup = getEnvDefault("UM_DEPHEALTH_GROUP", "upload-module")

	// DEPHEALTH_NAME — имя владельца пода для метки name в topologymetrics (без префикса модуля)
	cfg.DephealthName = getEnvDefault("DEPHEALTH_NAME", "")

	// UM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown HTTP-сервера (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("UM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("UM_SHUTDOWN_TIMEOUT: %w", err)
	}

	// UM_DB_HOST — опциональный; пустое значение = реестр в памяти
	cfg.DBHost = getEnvDefault("UM_DB_HOST", "")
	if cfg.DBHost != "" {
		cfg.DBPort, err = getEnvInt("UM_DB_PORT", 5432)
		if err != nil {
			return nil, fmt.Errorf("UM_DB_PORT: %w", err)
		}
		cfg.DBUser, err = getEnvRequired("UM_DB_USER")
		if err != nil {
			return nil, err
		}
		cfg.DBPassword, err = getEnvRequired("UM_DB_PASSWORD")
		if err != nil {
			return nil, err
		}
		cfg.DBName, err = getEnvRequired("UM_DB_NAME")
		if err != nil {
			return nil, err
		}
		cfg.DBSSLMode = getEnvDefault("UM_DB_SSLMODE", "disable")
	}

	return cfg, nil
}

// DBConfigured возвращает true, если задано подключение к PostgreSQL.
func (cfg *Config) DBConfigured() bool {
	return cfg.DBHost != ""
}

// DatabaseDSN возвращает строку подключения к PostgreSQL для pgx.
func (cfg *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
