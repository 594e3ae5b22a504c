package service

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	apierrors "github.com/bigkaa/modelreg/upload-module/internal/api/errors"
	"github.com/bigkaa/modelreg/upload-module/internal/config"
	"github.com/bigkaa/modelreg/upload-module/internal/domain/model"
	"github.com/bigkaa/modelreg/upload-module/internal/hash"
	"github.com/bigkaa/modelreg/upload-module/internal/registry"
	"github.com/bigkaa/modelreg/upload-module/internal/repository"
	"github.com/bigkaa/modelreg/upload-module/internal/session"
	"github.com/bigkaa/modelreg/upload-module/internal/storage/chunkstore"
	"github.com/bigkaa/modelreg/upload-module/internal/storage/journal"
	"github.com/bigkaa/modelreg/upload-module/internal/storage/sink"
	"github.com/bigkaa/modelreg/upload-module/internal/validation"
)

// testChunkSize — минимально допустимый размер чанка.
const testChunkSize = model.MinChunkSize

// testEnv — тестовое окружение сервиса загрузки.
type testEnv struct {
	svc   *UploadService
	store *session.Store
	files repository.FileRegistry
}

// setupUploadTestEnv создаёт сервис загрузки на временных директориях
// с in-memory реестром файлов и статическим реестром артефактов.
func setupUploadTestEnv(t *testing.T) *testEnv {
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

	svc := NewUploadService(cfg, store, chunks, jrnl, objectSink, files, artifacts, checks, logger)

	return &testEnv{svc: svc, store: store, files: files}
}

// initTestSession создаёт сессию на totalChunks чанков, где все чанки
// кроме последнего имеют размер testChunkSize, а последний — lastSize.
func initTestSession(t *testing.T, env *testEnv, totalChunks int, lastSize int64) *model.UploadSession {
	t.Helper()

	sess, ue := env.svc.InitSession(context.Background(), InitParams{
		ArtifactID:  "artifact-1",
		Filename:    "model.bin",
		ContentType: "application/octet-stream",
		TotalSize:   testChunkSize*int64(totalChunks-1) + lastSize,
		TotalChunks: totalChunks,
		ChunkSize:   testChunkSize,
		UploadedBy:  "user-1",
	})
	if ue != nil {
		t.Fatalf("Ошибка создания сессии: %v", ue)
	}
	return sess
}

// chunkData генерирует детерминированное содержимое чанка.
func chunkData(n int, size int64) []byte {
	return bytes.Repeat([]byte{byte('a' + n%26)}, int(size))
}

// sendChunk отправляет чанк с корректным дайджестом.
func sendChunk(t *testing.T, env *testEnv, sessionID string, n int, data []byte) *ChunkResult {
	t.Helper()

	res, ue := env.svc.AcceptChunk(context.Background(), ChunkParams{
		SessionID:      sessionID,
		ChunkNumber:    n,
		DeclaredSHA256: hash.SHA256Hex(data),
		Reader:         bytes.NewReader(data),
	})
	if ue != nil {
		t.Fatalf("Ошибка приёма чанка %d: %v", n, ue)
	}
	return res
}

func TestInitSession(t *testing.T) {
	env := setupUploadTestEnv(t)

	sess := initTestSession(t, env, 3, 100)

	if sess.SessionID == "" {
		t.Error("SessionID пустой")
	}
	if sess.Status != model.StatusActive {
		t.Errorf("Status: хотели active, получили %s", sess.Status)
	}
	if sess.DeclaredTotalChunks != 3 {
		t.Errorf("DeclaredTotalChunks: хотели 3, получили %d", sess.DeclaredTotalChunks)
	}
	if got := sess.ExpiresAt.Sub(sess.CreatedAt); got != 24*time.Hour {
		t.Errorf("TTL сессии: хотели 24h, получили %s", got)
	}
}

func TestInitSessionArtifactNotFound(t *testing.T) {
	env := setupUploadTestEnv(t)

	_, ue := env.svc.InitSession(context.Background(), InitParams{
		ArtifactID:  "no-such-artifact",
		Filename:    "model.bin",
		TotalSize:   testChunkSize,
		TotalChunks: 1,
		ChunkSize:   testChunkSize,
	})
	if ue == nil {
		t.Fatal("Хотели ошибку для несуществующего артефакта, получили nil")
	}
	if ue.StatusCode != 404 || ue.Code != apierrors.CodeNotFound {
		t.Errorf("Хотели 404 NOT_FOUND, получили %d %s", ue.StatusCode, ue.Code)
	}
}

func TestInitSessionTooLarge(t *testing.T) {
	env := setupUploadTestEnv(t)

	_, ue := env.svc.InitSession(context.Background(), InitParams{
		ArtifactID:  "artifact-1",
		Filename:    "model.bin",
		TotalSize:   200 * 1024 * 1024, // больше MaxObjectSize окружения
		TotalChunks: 40,
		ChunkSize:   5 * 1024 * 1024,
	})
	if ue == nil {
		t.Fatal("Хотели ошибку превышения размера, получили nil")
	}
	if ue.StatusCode != 413 || ue.Code != apierrors.CodeFileTooLarge {
		t.Errorf("Хотели 413 FILE_TOO_LARGE, получили %d %s", ue.StatusCode, ue.Code)
	}
}

func TestInitSessionBadFilename(t *testing.T) {
	env := setupUploadTestEnv(t)

	_, ue := env.svc.InitSession(context.Background(), InitParams{
		ArtifactID:  "artifact-1",
		Filename:    "../../etc/passwd",
		TotalSize:   testChunkSize,
		TotalChunks: 1,
		ChunkSize:   testChunkSize,
	})
	if ue == nil {
		t.Fatal("Хотели ошибку валидации имени файла, получили nil")
	}
	if ue.StatusCode != 400 || ue.Code != apierrors.CodeValidationError {
		t.Errorf("Хотели 400 VALIDATION_ERROR, получили %d %s", ue.StatusCode, ue.Code)
	}
}

func TestAcceptChunkOutOfOrder(t *testing.T) {
	env := setupUploadTestEnv(t)
	sess := initTestSession(t, env, 3, 100)

	// Чанки в обратном порядке
	sendChunk(t, env, sess.SessionID, 2, chunkData(2, 100))
	sendChunk(t, env, sess.SessionID, 0, chunkData(0, testChunkSize))
	res := sendChunk(t, env, sess.SessionID, 1, chunkData(1, testChunkSize))

	if !res.Session.IsComplete() {
		t.Error("Сессия должна быть полной после приёма всех чанков")
	}
	if res.Session.BytesReceived != sess.DeclaredTotalSize {
		t.Errorf("BytesReceived: хотели %d, получили %d",
			sess.DeclaredTotalSize, res.Session.BytesReceived)
	}
}

func TestAcceptChunkOutOfRange(t *testing.T) {
	env := setupUploadTestEnv(t)
	sess := initTestSession(t, env, 2, 100)

	data := chunkData(0, testChunkSize)
	_, ue := env.svc.AcceptChunk(context.Background(), ChunkParams{
		SessionID:      sess.SessionID,
		ChunkNumber:    2,
		DeclaredSHA256: hash.SHA256Hex(data),
		Reader:         bytes.NewReader(data),
	})
	if ue == nil {
		t.Fatal("Хотели ошибку для индекса вне диапазона, получили nil")
	}
	if ue.StatusCode != 422 || ue.Code != apierrors.CodeChunkOutOfRange {
		t.Errorf("Хотели 422 CHUNK_OUT_OF_RANGE, получили %d %s", ue.StatusCode, ue.Code)
	}
}

func TestAcceptChunkSizeMismatch(t *testing.T) {
	env := setupUploadTestEnv(t)
	sess := initTestSession(t, env, 2, 100)

	// Не последний чанк короче ChunkSizeBytes
	data := chunkData(0, 1000)
	_, ue := env.svc.AcceptChunk(context.Background(), ChunkParams{
		SessionID:      sess.SessionID,
		ChunkNumber:    0,
		DeclaredSHA256: hash.SHA256Hex(data),
		Reader:         bytes.NewReader(data),
	})
	if ue == nil {
		t.Fatal("Хотели ошибку размера чанка, получили nil")
	}
	if ue.StatusCode != 422 || ue.Code != apierrors.CodeChunkSizeMismatch {
		t.Errorf("Хотели 422 CHUNK_SIZE_MISMATCH, получили %d %s", ue.StatusCode, ue.Code)
	}

	// Чанк не учтён
	snap, _ := env.svc.GetSession(context.Background(), sess.SessionID)
	if len(snap.Chunks) != 0 {
		t.Errorf("Чанков учтено: хотели 0, получили %d", len(snap.Chunks))
	}
}

func TestAcceptChunkChecksumMismatch(t *testing.T) {
	env := setupUploadTestEnv(t)
	sess := initTestSession(t, env, 2, 100)

	data := chunkData(0, testChunkSize)
	_, ue := env.svc.AcceptChunk(context.Background(), ChunkParams{
		SessionID:      sess.SessionID,
		ChunkNumber:    0,
		DeclaredSHA256: strings.Repeat("0", 64),
		Reader:         bytes.NewReader(data),
	})
	if ue == nil {
		t.Fatal("Хотели ошибку несовпадения дайджеста, получили nil")
	}
	if ue.StatusCode != 422 || ue.Code != apierrors.CodeChecksumMismatch {
		t.Errorf("Хотели 422 CHECKSUM_MISMATCH, получили %d %s", ue.StatusCode, ue.Code)
	}

	snap, _ := env.svc.GetSession(context.Background(), sess.SessionID)
	if snap.BytesReceived != 0 {
		t.Errorf("BytesReceived после отказа: хотели 0, получили %d", snap.BytesReceived)
	}
}

func TestAcceptChunkInvalidDeclaredDigest(t *testing.T) {
	env := setupUploadTestEnv(t)
	sess := initTestSession(t, env, 2, 100)

	_, ue := env.svc.AcceptChunk(context.Background(), ChunkParams{
		SessionID:      sess.SessionID,
		ChunkNumber:    0,
		DeclaredSHA256: "не hex",
		Reader:         bytes.NewReader(chunkData(0, testChunkSize)),
	})
	if ue == nil {
		t.Fatal("Хотели ошибку валидации дайджеста, получили nil")
	}
	if ue.StatusCode != 400 || ue.Code != apierrors.CodeValidationError {
		t.Errorf("Хотели 400 VALIDATION_ERROR, получили %d %s", ue.StatusCode, ue.Code)
	}
}

func TestAcceptChunkIdempotentRetry(t *testing.T) {
	env := setupUploadTestEnv(t)
	sess := initTestSession(t, env, 2, 100)

	data := chunkData(0, testChunkSize)
	first := sendChunk(t, env, sess.SessionID, 0, data)
	if first.Retried {
		t.Error("Первый приём не должен быть retried")
	}

	// Повтор того же чанка — no-op
	second := sendChunk(t, env, sess.SessionID, 0, data)
	if !second.Retried {
		t.Error("Повтор с тем же дайджестом должен быть retried")
	}
	if second.Session.BytesReceived != testChunkSize {
		t.Errorf("BytesReceived после повтора: хотели %d, получили %d",
			testChunkSize, second.Session.BytesReceived)
	}
}

func TestAcceptChunkConcurrentSameChunk(t *testing.T) {
	env := setupUploadTestEnv(t)
	sess := initTestSession(t, env, 2, 100)

	data := chunkData(0, testChunkSize)
	digest := hash.SHA256Hex(data)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ue := env.svc.AcceptChunk(context.Background(), ChunkParams{
				SessionID:      sess.SessionID,
				ChunkNumber:    0,
				DeclaredSHA256: digest,
				Reader:         bytes.NewReader(data),
			})
			if ue != nil {
				t.Errorf("Параллельный приём чанка: %v", ue)
			}
		}()
	}
	wg.Wait()

	after, err := env.store.Get(sess.SessionID)
	if err != nil {
		t.Fatal("Сессия не найдена после параллельного приёма")
	}
	if after.BytesReceived != testChunkSize {
		t.Errorf("BytesReceived: хотели %d, получили %d", testChunkSize, after.BytesReceived)
	}
	if rec, ok := after.Chunks[0]; !ok || rec.SHA256 != digest {
		t.Errorf("Запись чанка: хотели дайджест %s, получили %+v", digest, rec)
	}

	// Содержимое закоммиченного файла соответствует учтённому дайджесту
	stored, err := os.ReadFile(env.svc.chunks.ChunkPath(sess.SessionID, 0))
	if err != nil {
		t.Fatalf("Ошибка чтения чанка: %v", err)
	}
	if got := hash.SHA256Hex(stored); got != digest {
		t.Errorf("Дайджест содержимого: хотели %s, получили %s", digest, got)
	}
}

func TestAcceptChunkOverwrite(t *testing.T) {
	env := setupUploadTestEnv(t)
	sess := initTestSession(t, env, 2, 100)

	sendChunk(t, env, sess.SessionID, 0, chunkData(0, testChunkSize))
	// Тот же индекс, другое содержимое — замещение без двойного учёта
	res := sendChunk(t, env, sess.SessionID, 0, chunkData(5, testChunkSize))

	if res.Retried {
		t.Error("Замещение с другим дайджестом не должно быть retried")
	}
	if res.Session.BytesReceived != testChunkSize {
		t.Errorf("BytesReceived после замещения: хотели %d, получили %d",
			testChunkSize, res.Session.BytesReceived)
	}
}

func TestAcceptChunkExpiredSession(t *testing.T) {
	env := setupUploadTestEnv(t)
	sess := initTestSession(t, env, 2, 100)

	// Сдвигаем часы сервиса за дедлайн сессии
	env.svc.now = func() time.Time { return sess.ExpiresAt.Add(time.Minute) }

	data := chunkData(0, testChunkSize)
	_, ue := env.svc.AcceptChunk(context.Background(), ChunkParams{
		SessionID:      sess.SessionID,
		ChunkNumber:    0,
		DeclaredSHA256: hash.SHA256Hex(data),
		Reader:         bytes.NewReader(data),
	})
	if ue == nil {
		t.Fatal("Хотели ошибку истёкшей сессии, получили nil")
	}
	if ue.StatusCode != 410 || ue.Code != apierrors.CodeSessionExpired {
		t.Errorf("Хотели 410 SESSION_EXPIRED, получили %d %s", ue.StatusCode, ue.Code)
	}
}

func TestAcceptChunkSessionNotFound(t *testing.T) {
	env := setupUploadTestEnv(t)

	data := chunkData(0, testChunkSize)
	_, ue := env.svc.AcceptChunk(context.Background(), ChunkParams{
		SessionID:      "no-such-session",
		ChunkNumber:    0,
		DeclaredSHA256: hash.SHA256Hex(data),
		Reader:         bytes.NewReader(data),
	})
	if ue == nil {
		t.Fatal("Хотели ошибку для несуществующей сессии, получили nil")
	}
	if ue.StatusCode != 404 || ue.Code != apierrors.CodeNotFound {
		t.Errorf("Хотели 404 NOT_FOUND, получили %d %s", ue.StatusCode, ue.Code)
	}
}

func TestAbort(t *testing.T) {
	env := setupUploadTestEnv(t)
	sess := initTestSession(t, env, 2, 100)
	sendChunk(t, env, sess.SessionID, 0, chunkData(0, testChunkSize))

	if ue := env.svc.Abort(context.Background(), sess.SessionID); ue != nil {
		t.Fatalf("Ошибка прерывания: %v", ue)
	}

	snap, _ := env.svc.GetSession(context.Background(), sess.SessionID)
	if snap.Status != model.StatusAborted {
		t.Errorf("Status: хотели aborted, получили %s", snap.Status)
	}

	// Повторное прерывание — no-op
	if ue := env.svc.Abort(context.Background(), sess.SessionID); ue != nil {
		t.Errorf("Повторное прерывание должно быть no-op, получили %v", ue)
	}

	// Чанки прерванной сессии отклоняются
	data := chunkData(1, 100)
	_, ue := env.svc.AcceptChunk(context.Background(), ChunkParams{
		SessionID:      sess.SessionID,
		ChunkNumber:    1,
		DeclaredSHA256: hash.SHA256Hex(data),
		Reader:         bytes.NewReader(data),
	})
	if ue == nil || ue.Code != apierrors.CodeInvalidState {
		t.Errorf("Хотели INVALID_STATE, получили %v", ue)
	}
}

func TestListSessions(t *testing.T) {
	env := setupUploadTestEnv(t)
	initTestSession(t, env, 1, 100)
	initTestSession(t, env, 1, 200)

	list := env.svc.ListSessions(context.Background())
	if len(list) != 2 {
		t.Fatalf("Количество сессий: хотели 2, получили %d", len(list))
	}
}
