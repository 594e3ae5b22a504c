// health.go — обработчики health endpoints Upload Module.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (staging-директория, реестр файлов)
// /metrics — Prometheus метрики
package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/modelreg/upload-module/internal/config"
)

// Константы статусов health check.
const statusFail = "fail"

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status, message string)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	stagingDir  string
	dbChecker   ReadinessChecker
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// dbChecker — проверка PostgreSQL; nil для реестра файлов в памяти,
// тогда проверка БД отражается как "ok" с пометкой.
func NewHealthHandler(stagingDir string, dbChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		stagingDir:  stagingDir,
		dbChecker:   dbChecker,
		promHandler: promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		Staging  healthCheckResult `json:"staging"`
		Database healthCheckResult `json:"database"`
	} `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "upload-module",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady — readiness probe. Проверяет staging-директорию и БД.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "upload-module",
	}

	resp.Checks.Staging = h.checkStaging()

	if h.dbChecker != nil {
		dbStatus, dbMsg := h.dbChecker.CheckReady()
		resp.Checks.Database = healthCheckResult{Status: dbStatus, Message: dbMsg}
	} else {
		resp.Checks.Database = healthCheckResult{Status: "ok", Message: "Реестр файлов в памяти"}
	}

	resp.Status = overallStatus(resp.Checks.Staging.Status, resp.Checks.Database.Status)

	w.Header().Set("Content-Type", "application/json")
	if resp.Status == statusFail {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// checkStaging проверяет доступность staging-директории на запись.
func (h *HealthHandler) checkStaging() healthCheckResult {
	if h.stagingDir == "" {
		return healthCheckResult{Status: "ok", Message: "Проверка не настроена"}
	}

	testFile := filepath.Join(h.stagingDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return healthCheckResult{
			Status:  statusFail,
			Message: "Staging-директория недоступна для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return healthCheckResult{Status: "ok"}
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == "degraded" {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return "degraded"
	}
	return "ok"
}
