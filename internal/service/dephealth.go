// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Upload Module мониторит:
//   - Admin Module JWKS endpoint (HTTP GET, critical)
//   - Реестр артефактов (HTTP GET, critical)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
//   - app_dependency_status_detail — детальный статус
//
// Используется встроенный HTTP checker из dephealth SDK.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks" // Регистрация фабрик checker-ов (HTTP и др.)
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// DephealthParams — параметры мониторинга зависимостей.
type DephealthParams struct {
	// InstanceName — имя вершины графа текущего приложения (DEPHEALTH_NAME)
	InstanceName string
	// Group — имя группы в метриках (UM_DEPHEALTH_GROUP)
	Group string
	// JWKSUrl — URL JWKS endpoint Admin Module (UM_JWKS_URL)
	JWKSUrl string
	// RegistryURL — URL реестра артефактов (UM_REGISTRY_URL)
	RegistryURL string
	// CheckInterval — интервал проверки (UM_DEPHEALTH_CHECK_INTERVAL)
	CheckInterval time.Duration
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(p DephealthParams, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(p, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	p DephealthParams,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(p, logger, dephealth.WithRegisterer(registerer))
}

// newDephealthService — внутренний конструктор.
func newDephealthService(
	p DephealthParams,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	// Собираем опции: встроенные HTTP checker-ы с per-dependency интервалом
	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.HTTP("admin-jwks",
			dephealth.FromURL(p.JWKSUrl),
			dephealth.CheckInterval(p.CheckInterval),
			dephealth.Critical(true),
			dephealth.WithHTTPTLSSkipVerify(true), // Dev-среда: self-signed сертификаты
		),
		dephealth.HTTP("artifact-registry",
			dephealth.FromURL(p.RegistryURL),
			dephealth.CheckInterval(p.CheckInterval),
			dephealth.Critical(true),
			dephealth.WithHTTPTLSSkipVerify(true),
		),
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(
		p.InstanceName,
		p.Group,
		opts...,
	)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
