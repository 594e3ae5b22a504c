// handler.go — основной обработчик API, реализующий generated.ServerInterface.
// Делегирует запросы в сервисный слой и конвертирует доменные модели
// в API-типы.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/modelreg/upload-module/internal/api/errors"
	"github.com/bigkaa/modelreg/upload-module/internal/api/generated"
	"github.com/bigkaa/modelreg/upload-module/internal/domain/model"
	"github.com/bigkaa/modelreg/upload-module/internal/service"
)

// APIHandler — основной обработчик API Upload Module.
// Реализует generated.ServerInterface.
type APIHandler struct {
	upload *service.UploadService
	health *HealthHandler
	spec   *SpecHandler
	logger *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	upload *service.UploadService,
	health *HealthHandler,
	spec *SpecHandler,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		upload: upload,
		health: health,
		spec:   spec,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// Проверка на этапе компиляции
var _ generated.ServerInterface = (*APIHandler)(nil)

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// GetOpenapiSpec — OpenAPI спецификация.
func (h *APIHandler) GetOpenapiSpec(w http.ResponseWriter, r *http.Request) {
	h.spec.GetOpenapiSpec(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError отдаёт ошибку сервисного слоя в стандартном конверте.
func writeServiceError(w http.ResponseWriter, ue *service.UploadError) {
	apierrors.WriteError(w, ue.StatusCode, ue.Code, ue.Message)
}

// parseUUID конвертирует строковый UUID в openapi-тип.
// Невалидная строка даёт нулевой UUID — идентификаторы создаются
// сервисом и всегда корректны.
func parseUUID(s string) openapi_types.UUID {
	u, err := uuid.Parse(s)
	if err != nil {
		return openapi_types.UUID{}
	}
	return u
}

// strPtr возвращает указатель на строку, nil для пустой.
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// sessionView конвертирует доменную сессию в API-тип.
func sessionView(s *model.UploadSession) generated.UploadSession {
	return generated.UploadSession{
		SessionId:           parseUUID(s.SessionID),
		ArtifactId:          s.ArtifactID,
		Filename:            s.Filename,
		Status:              generated.UploadSessionStatus(s.Status),
		DeclaredTotalSize:   s.DeclaredTotalSize,
		DeclaredTotalChunks: s.DeclaredTotalChunks,
		ChunkSizeBytes:      s.ChunkSizeBytes,
		BytesReceived:       s.BytesReceived,
		ReceivedChunks:      len(s.Chunks),
		UploadedBy:          strPtr(s.UploadedBy),
		CreatedAt:           s.CreatedAt,
		ExpiresAt:           s.ExpiresAt,
		CompletedAt:         s.CompletedAt,
	}
}

// fileView конвертирует зарегистрированный файл в API-тип.
func fileView(f *model.FinalizedFile) generated.FinalizedFile {
	return generated.FinalizedFile{
		FileId:           parseUUID(f.FileID),
		ArtifactId:       f.ArtifactID,
		Filename:         f.Filename,
		SizeBytes:        f.SizeBytes,
		Sha256Checksum:   f.SHA256,
		Md5Checksum:      strPtr(f.MD5),
		Version:          f.Version,
		DownloadLocation: f.DownloadLocation,
		UploadedBy:       strPtr(f.UploadedBy),
		UploadedAt:       f.UploadedAt,
		IsDuplicate:      f.IsDuplicate,
	}
}

// paginationDefaults нормализует параметры пагинации.
func paginationDefaults(limit, offset *int) (limitVal, offsetVal int) {
	l := 100
	o := 0

	if limit != nil {
		l = *limit
		if l < 1 {
			l = 1
		}
		if l > 1000 {
			l = 1000
		}
	}

	if offset != nil {
		o = *offset
		if o < 0 {
			o = 0
		}
	}

	return l, o
}
