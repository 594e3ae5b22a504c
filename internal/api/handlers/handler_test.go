// Тесты HTTP-слоя: запросы проходят через сгенерированный роутер,
// сервис работает на временных директориях и in-memory реестре.
package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/modelreg/upload-module/internal/api/generated"
	"github.com/bigkaa/modelreg/upload-module/internal/config"
	"github.com/bigkaa/modelreg/upload-module/internal/domain/model"
	"github.com/bigkaa/modelreg/upload-module/internal/hash"
	"github.com/bigkaa/modelreg/upload-module/internal/registry"
	"github.com/bigkaa/modelreg/upload-module/internal/repository"
	"github.com/bigkaa/modelreg/upload-module/internal/service"
	"github.com/bigkaa/modelreg/upload-module/internal/session"
	"github.com/bigkaa/modelreg/upload-module/internal/storage/chunkstore"
	"github.com/bigkaa/modelreg/upload-module/internal/storage/journal"
	"github.com/bigkaa/modelreg/upload-module/internal/storage/sink"
	"github.com/bigkaa/modelreg/upload-module/internal/validation"
)

// setupAPITest собирает полный HTTP-стек: сервис на временных
// директориях, handlers и сгенерированный chi-роутер.
func setupAPITest(t *testing.T) http.Handler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	chunks, err := chunkstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка создания ChunkStore: %v", err)
	}
	jrnl, err := journal.New(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("Ошибка создания журнала: %v", err)
	}
	objectSink, err := sink.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка создания sink: %v", err)
	}

	cfg := &config.Config{
		MaxObjectSize: 100 * 1024 * 1024,
		SessionTTL:    24 * time.Hour,
	}
	store := session.NewStore()
	files := repository.NewMemory()
	artifacts := &registry.Static{Artifacts: map[string]bool{"artifact-1": true}}
	checks := validation.ForInit(validation.DefaultMaxSizes(), validation.DefaultAllowedMIME())

	svc := service.NewUploadService(cfg, store, chunks, jrnl, objectSink, files, artifacts, checks, logger)

	specHandler, err := NewSpecHandler()
	if err != nil {
		t.Fatalf("Ошибка загрузки OpenAPI-спецификации: %v", err)
	}
	healthHandler := NewHealthHandler(t.TempDir(), nil)
	apiHandler := NewAPIHandler(svc, healthHandler, specHandler, logger)

	router := chi.NewRouter()
	generated.HandlerFromMux(apiHandler, router)
	return router
}

// doJSON выполняет запрос с JSON-телом и декодирует ответ в out.
func doJSON(t *testing.T, h http.Handler, method, path string, body, out any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Ошибка сериализации тела: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("Ошибка декодирования ответа %q: %v", rec.Body.String(), err)
		}
	}
	return rec
}

// initAPISession создаёт сессию через API и возвращает её представление.
func initAPISession(t *testing.T, h http.Handler, totalChunks int, lastSize int64) generated.UploadSession {
	t.Helper()

	chunkSize := model.MinChunkSize
	req := generated.InitUploadRequest{
		ArtifactId:  "artifact-1",
		Filename:    "model.bin",
		TotalSize:   chunkSize*int64(totalChunks-1) + lastSize,
		TotalChunks: totalChunks,
		ChunkSize:   chunkSize,
	}

	var sess generated.UploadSession
	rec := doJSON(t, h, http.MethodPost, "/api/v1/uploads", req, &sess)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Статус init: хотели 201, получили %d, тело: %s", rec.Code, rec.Body.String())
	}
	return sess
}

// sendAPIChunk отправляет чанк multipart-запросом с корректным дайджестом.
func sendAPIChunk(t *testing.T, h http.Handler, sessionID string, n int, data []byte) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("chunk", "chunk.bin")
	if err != nil {
		t.Fatalf("Ошибка создания multipart-поля: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("Ошибка записи чанка: %v", err)
	}
	mw.Close()

	path := fmt.Sprintf("/api/v1/uploads/%s/chunks?chunk_number=%d&chunk_hash=%s",
		sessionID, n, hash.SHA256Hex(data))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// apiChunkData порождает детерминированное содержимое чанка.
func apiChunkData(n int, size int64) []byte {
	return bytes.Repeat([]byte{byte('a' + n%26)}, int(size))
}

func TestAPIInitUpload(t *testing.T) {
	h := setupAPITest(t)

	sess := initAPISession(t, h, 2, 100)
	if sess.Status != generated.UploadSessionStatusActive {
		t.Errorf("Status: хотели active, получили %s", sess.Status)
	}
	if sess.ReceivedChunks != 0 {
		t.Errorf("ReceivedChunks: хотели 0, получили %d", sess.ReceivedChunks)
	}
	if sess.ArtifactId != "artifact-1" {
		t.Errorf("ArtifactId: хотели artifact-1, получили %s", sess.ArtifactId)
	}
}

func TestAPIInitUploadUnknownArtifact(t *testing.T) {
	h := setupAPITest(t)

	req := generated.InitUploadRequest{
		ArtifactId:  "no-such-artifact",
		Filename:    "model.bin",
		TotalSize:   model.MinChunkSize,
		TotalChunks: 1,
		ChunkSize:   model.MinChunkSize,
	}

	var envelope generated.ErrorResponse
	rec := doJSON(t, h, http.MethodPost, "/api/v1/uploads", req, &envelope)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Статус: хотели 404, получили %d", rec.Code)
	}
	if envelope.Error.Code != "NOT_FOUND" {
		t.Errorf("Код ошибки: хотели NOT_FOUND, получили %s", envelope.Error.Code)
	}
	if envelope.Error.Message == "" {
		t.Error("Сообщение об ошибке пустое")
	}
}

func TestAPIUploadChunkAndProgress(t *testing.T) {
	h := setupAPITest(t)
	sess := initAPISession(t, h, 2, 100)
	id := sess.SessionId.String()

	rec := sendAPIChunk(t, h, id, 0, apiChunkData(0, model.MinChunkSize))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Статус чанка: хотели 202, получили %d, тело: %s", rec.Code, rec.Body.String())
	}
	var accepted generated.ChunkAccepted
	if err := json.Unmarshal(rec.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("Ошибка декодирования ответа: %v", err)
	}
	if accepted.Retried {
		t.Error("Первый приём чанка не должен быть retried")
	}
	if accepted.ReceivedChunks != 1 || accepted.TotalChunks != 2 {
		t.Errorf("Счётчики: хотели 1/2, получили %d/%d", accepted.ReceivedChunks, accepted.TotalChunks)
	}

	var progress generated.UploadProgress
	pRec := doJSON(t, h, http.MethodGet, "/api/v1/uploads/"+id+"/progress", nil, &progress)
	if pRec.Code != http.StatusOK {
		t.Fatalf("Статус прогресса: хотели 200, получили %d", pRec.Code)
	}
	if progress.ReceivedChunks != 1 {
		t.Errorf("ReceivedChunks: хотели 1, получили %d", progress.ReceivedChunks)
	}
	if progress.MissingChunks == nil || len(*progress.MissingChunks) != 1 || (*progress.MissingChunks)[0] != 1 {
		t.Errorf("MissingChunks: хотели [1], получили %v", progress.MissingChunks)
	}
	if progress.BytesRemaining != 100 {
		t.Errorf("BytesRemaining: хотели 100, получили %d", progress.BytesRemaining)
	}
	if progress.SpeedMbps != progress.SpeedBps/1e6 {
		t.Errorf("SpeedMbps: хотели %f, получили %f", progress.SpeedBps/1e6, progress.SpeedMbps)
	}
}

func TestAPIFinalizeAndCheckDuplicate(t *testing.T) {
	h := setupAPITest(t)
	sess := initAPISession(t, h, 2, 100)
	id := sess.SessionId.String()

	hw := hash.NewWriter()
	for i := 0; i < 2; i++ {
		size := model.MinChunkSize
		if i == 1 {
			size = 100
		}
		data := apiChunkData(i, size)
		hw.Write(data)
		if rec := sendAPIChunk(t, h, id, i, data); rec.Code != http.StatusAccepted {
			t.Fatalf("Статус чанка %d: хотели 202, получили %d", i, rec.Code)
		}
	}
	digest := hw.Sum()

	var file generated.FinalizedFile
	rec := doJSON(t, h, http.MethodPost, "/api/v1/uploads/"+id+"/finalize",
		generated.FinalizeRequest{FinalSha256: digest.SHA256}, &file)
	if rec.Code != http.StatusOK {
		t.Fatalf("Статус финализации: хотели 200, получили %d, тело: %s", rec.Code, rec.Body.String())
	}
	if file.Sha256Checksum != digest.SHA256 {
		t.Errorf("SHA256: хотели %s, получили %s", digest.SHA256, file.Sha256Checksum)
	}
	if file.Version != 1 {
		t.Errorf("Version: хотели 1, получили %d", file.Version)
	}
	if file.IsDuplicate {
		t.Error("Первая загрузка не должна быть дубликатом")
	}

	var dup generated.CheckDuplicateResponse
	dRec := doJSON(t, h, http.MethodPost, "/api/v1/files/check-duplicate",
		generated.CheckDuplicateRequest{Sha256Checksum: digest.SHA256}, &dup)
	if dRec.Code != http.StatusOK {
		t.Fatalf("Статус check-duplicate: хотели 200, получили %d", dRec.Code)
	}
	if !dup.Duplicate || dup.File == nil {
		t.Fatalf("Хотели duplicate=true с файлом, получили %+v", dup)
	}
	if dup.File.FileId != file.FileId {
		t.Errorf("FileId: хотели %s, получили %s", file.FileId, dup.File.FileId)
	}
}

func TestAPIFinalizeMissingDigest(t *testing.T) {
	h := setupAPITest(t)
	sess := initAPISession(t, h, 1, model.MinChunkSize)
	id := sess.SessionId.String()

	data := apiChunkData(0, model.MinChunkSize)
	if rec := sendAPIChunk(t, h, id, 0, data); rec.Code != http.StatusAccepted {
		t.Fatalf("Статус чанка: хотели 202, получили %d", rec.Code)
	}

	// Без тела запроса
	var envelope generated.ErrorResponse
	rec := doJSON(t, h, http.MethodPost, "/api/v1/uploads/"+id+"/finalize", nil, &envelope)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Статус без тела: хотели 400, получили %d", rec.Code)
	}
	if envelope.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("Код ошибки: хотели VALIDATION_ERROR, получили %s", envelope.Error.Code)
	}

	// С телом, но без дайджеста
	envelope = generated.ErrorResponse{}
	rec = doJSON(t, h, http.MethodPost, "/api/v1/uploads/"+id+"/finalize",
		generated.FinalizeRequest{}, &envelope)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Статус без дайджеста: хотели 400, получили %d", rec.Code)
	}
	if envelope.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("Код ошибки: хотели VALIDATION_ERROR, получили %s", envelope.Error.Code)
	}

	// Сессия пригодна для финализации с дайджестом
	var file generated.FinalizedFile
	rec = doJSON(t, h, http.MethodPost, "/api/v1/uploads/"+id+"/finalize",
		generated.FinalizeRequest{FinalSha256: hash.SHA256Hex(data)}, &file)
	if rec.Code != http.StatusOK {
		t.Fatalf("Статус финализации: хотели 200, получили %d, тело: %s", rec.Code, rec.Body.String())
	}
}

func TestAPIAbort(t *testing.T) {
	h := setupAPITest(t)
	sess := initAPISession(t, h, 2, 100)
	id := sess.SessionId.String()

	rec := doJSON(t, h, http.MethodDelete, "/api/v1/uploads/"+id, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Статус abort: хотели 204, получили %d", rec.Code)
	}

	// Чанки после abort отклоняются
	cRec := sendAPIChunk(t, h, id, 0, apiChunkData(0, model.MinChunkSize))
	if cRec.Code != http.StatusConflict {
		t.Errorf("Статус чанка после abort: хотели 409, получили %d", cRec.Code)
	}
}

func TestAPIProgressNotFound(t *testing.T) {
	h := setupAPITest(t)

	var envelope generated.ErrorResponse
	rec := doJSON(t, h, http.MethodGet,
		"/api/v1/uploads/00000000-0000-0000-0000-000000000000/progress", nil, &envelope)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Статус: хотели 404, получили %d", rec.Code)
	}
	if envelope.Error.Code != "NOT_FOUND" {
		t.Errorf("Код ошибки: хотели NOT_FOUND, получили %s", envelope.Error.Code)
	}
}

func TestAPIListUploads(t *testing.T) {
	h := setupAPITest(t)
	initAPISession(t, h, 2, 100)
	initAPISession(t, h, 2, 100)

	var list generated.UploadSessionList
	rec := doJSON(t, h, http.MethodGet, "/api/v1/uploads?status=active", nil, &list)
	if rec.Code != http.StatusOK {
		t.Fatalf("Статус списка: хотели 200, получили %d", rec.Code)
	}
	if list.Total != 2 || len(list.Sessions) != 2 {
		t.Errorf("Список: хотели 2 сессии, получили total=%d len=%d", list.Total, len(list.Sessions))
	}
}

func TestAPIHealthLive(t *testing.T) {
	h := setupAPITest(t)

	var resp struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}
	rec := doJSON(t, h, http.MethodGet, "/health/live", nil, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("Статус: хотели 200, получили %d", rec.Code)
	}
	if resp.Status != "ok" || resp.Service != "upload-module" {
		t.Errorf("Хотели ok/upload-module, получили %s/%s", resp.Status, resp.Service)
	}
}

func TestAPIOpenapiSpec(t *testing.T) {
	h := setupAPITest(t)

	var doc map[string]any
	rec := doJSON(t, h, http.MethodGet, "/api/v1/openapi.json", nil, &doc)
	if rec.Code != http.StatusOK {
		t.Fatalf("Статус: хотели 200, получили %d", rec.Code)
	}
	if _, ok := doc["openapi"]; !ok {
		t.Error("В ответе нет поля openapi")
	}
}
