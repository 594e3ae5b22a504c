// Пакет service — бизнес-логика Upload Module.
// upload.go — жизненный цикл upload-сессии: инициализация, приём
// чанков, прерывание.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

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

// Prometheus метрики жизненного цикла загрузок.
var (
	sessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "um_sessions_created_total",
		Help: "Общее количество созданных upload-сессий",
	})

	chunksReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "um_chunks_received_total",
		Help: "Общее количество принятых чанков",
	})

	chunksRetriedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "um_chunks_retried_total",
		Help: "Общее количество повторов чанков с совпавшим дайджестом (no-op)",
	})

	bytesReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "um_bytes_received_total",
		Help: "Общее количество принятых байт",
	})

	sessionsAbortedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "um_sessions_aborted_total",
		Help: "Общее количество прерванных клиентом сессий",
	})
)

// UploadError — ошибка операции загрузки с HTTP-кодом.
type UploadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UploadService — сервис chunked-загрузки файлов.
type UploadService struct {
	cfg       *config.Config
	sessions  *session.Store
	chunks    *chunkstore.ChunkStore
	jrnl      *journal.Journal
	sink      sink.Sink
	files     repository.FileRegistry
	artifacts registry.ArtifactRegistry
	checks    *validation.Pipeline
	logger    *slog.Logger

	// now — источник времени, подменяется в тестах
	now func() time.Time
}

// NewUploadService создаёт сервис загрузки файлов.
func NewUploadService(
	cfg *config.Config,
	sessions *session.Store,
	chunks *chunkstore.ChunkStore,
	jrnl *journal.Journal,
	objectSink sink.Sink,
	files repository.FileRegistry,
	artifacts registry.ArtifactRegistry,
	checks *validation.Pipeline,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		cfg:       cfg,
		sessions:  sessions,
		chunks:    chunks,
		jrnl:      jrnl,
		sink:      objectSink,
		files:     files,
		artifacts: artifacts,
		checks:    checks,
		logger:    logger.With(slog.String("component", "upload_service")),
		now:       time.Now,
	}
}

// InitParams — параметры инициализации upload-сессии.
type InitParams struct {
	// ArtifactID — целевой артефакт реестра
	ArtifactID string
	// Filename — оригинальное имя файла
	Filename string
	// ContentType — заявленный MIME-тип
	ContentType string
	// ArtifactType — тип артефакта (model, dataset, code)
	ArtifactType string
	// TotalSize — полный размер объекта в байтах
	TotalSize int64
	// TotalChunks — количество чанков
	TotalChunks int
	// ChunkSize — размер каждого чанка кроме последнего
	ChunkSize int64
	// UploadedBy — субъект из JWT
	UploadedBy string
}

// InitSession создаёт новую upload-сессию.
//
// Поток:
//  1. Проверка существования артефакта в реестре
//  2. Проверка лимита размера объекта
//  3. Конвейер проверок (имя файла, размер по типу, MIME)
//  4. Создание сессии в арене (валидация геометрии)
//  5. Запись манифеста в staging
func (s *UploadService) InitSession(ctx context.Context, p InitParams) (*model.UploadSession, *UploadError) {
	// 1. Артефакт должен существовать в реестре
	exists, err := s.artifacts.Exists(ctx, p.ArtifactID)
	if err != nil {
		s.logger.Error("Ошибка проверки артефакта в реестре",
			slog.String("artifact_id", p.ArtifactID),
			slog.String("error", err.Error()),
		)
		return nil, &UploadError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Реестр артефактов недоступен",
		}
	}
	if !exists {
		return nil, &UploadError{
			StatusCode: 404,
			Code:       apierrors.CodeNotFound,
			Message:    fmt.Sprintf("Артефакт %s не найден в реестре", p.ArtifactID),
		}
	}

	// 2. Лимит размера объекта
	if p.TotalSize > s.cfg.MaxObjectSize {
		return nil, &UploadError{
			StatusCode: 413,
			Code:       apierrors.CodeFileTooLarge,
			Message: fmt.Sprintf("Размер объекта %d байт превышает максимум %d байт",
				p.TotalSize, s.cfg.MaxObjectSize),
		}
	}

	// 3. Конвейер проверок до создания сессии
	report := s.checks.Run(&validation.Candidate{
		Filename:     p.Filename,
		ContentType:  p.ContentType,
		ArtifactType: p.ArtifactType,
		SizeBytes:    p.TotalSize,
	})
	if fail := report.FirstFailure(); fail != nil {
		return nil, &UploadError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fail.Reason,
		}
	}

	// 4. Создание сессии (геометрия проверяется ареной)
	sess, err := s.sessions.Create(session.CreateParams{
		ArtifactID:  p.ArtifactID,
		Filename:    p.Filename,
		UploadedBy:  p.UploadedBy,
		TotalSize:   p.TotalSize,
		TotalChunks: p.TotalChunks,
		ChunkSize:   p.ChunkSize,
		TTL:         s.cfg.SessionTTL,
	})
	if err != nil {
		return nil, &UploadError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    err.Error(),
		}
	}

	// 5. Манифест в staging — для диагностики осиротевших директорий.
	// Ошибка не фатальна: сессия уже создана.
	if err := s.chunks.WriteManifest(sess); err != nil {
		s.logger.Warn("Не удалось записать манифест сессии",
			slog.String("session_id", sess.SessionID),
			slog.String("error", err.Error()),
		)
	}

	sessionsCreatedTotal.Inc()
	s.logger.Info("Сессия загрузки создана",
		slog.String("session_id", sess.SessionID),
		slog.String("artifact_id", p.ArtifactID),
		slog.String("filename", p.Filename),
		slog.Int64("total_size", p.TotalSize),
		slog.Int("total_chunks", p.TotalChunks),
		slog.String("uploaded_by", p.UploadedBy),
	)

	return sess, nil
}

// ChunkParams — параметры приёма одного чанка.
type ChunkParams struct {
	// SessionID — идентификатор сессии
	SessionID string
	// ChunkNumber — индекс чанка (0-based)
	ChunkNumber int
	// DeclaredSHA256 — заявленный дайджест содержимого чанка
	DeclaredSHA256 string
	// Reader — поток содержимого чанка
	Reader io.Reader
}

// ChunkResult — результат приёма чанка.
type ChunkResult struct {
	// Session — снимок сессии после приёма
	Session *model.UploadSession
	// Retried — чанк уже был принят с тем же дайджестом (no-op)
	Retried bool
}

// AcceptChunk принимает один чанк сессии. Чанки могут приходить в
// любом порядке и параллельно.
//
// Поток:
//  1. Снимок сессии, проверка статуса и дедлайна
//  2. Проверка индекса и заявленного дайджеста
//  3. Запись во временный файл с подсчётом SHA-256 (без блокировок)
//  4. Проверка размера и дайджеста принятого содержимого
//  5. Фиксация под мьютексом сессии: rename + учёт
//
// Идемпотентность: повтор чанка с тем же дайджестом — no-op, чанк
// с другим дайджестом замещает прежний.
func (s *UploadService) AcceptChunk(ctx context.Context, p ChunkParams) (*ChunkResult, *UploadError) {
	// 1. Снимок сессии
	snap, err := s.sessions.Get(p.SessionID)
	if err != nil {
		return nil, sessionLookupError(p.SessionID, err)
	}
	if ue := s.checkAcceptsChunks(snap); ue != nil {
		return nil, ue
	}

	// 2. Индекс и заявленный дайджест
	if p.ChunkNumber < 0 || p.ChunkNumber >= snap.DeclaredTotalChunks {
		return nil, &UploadError{
			StatusCode: 422,
			Code:       apierrors.CodeChunkOutOfRange,
			Message: fmt.Sprintf("Индекс чанка %d вне диапазона 0-%d",
				p.ChunkNumber, snap.DeclaredTotalChunks-1),
		}
	}
	if !hash.IsValidSHA256Hex(p.DeclaredSHA256) {
		return nil, &UploadError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Заявленный SHA-256 должен быть 64-символьной hex-строкой",
		}
	}

	// 3. Запись во временный файл с дайджестом на лету.
	// Тяжёлая часть приёма выполняется вне мьютекса сессии.
	staged, err := s.chunks.Stage(p.SessionID, p.ChunkNumber, p.Reader)
	if err != nil {
		s.logger.Error("Ошибка записи чанка в staging",
			slog.String("session_id", p.SessionID),
			slog.Int("chunk_number", p.ChunkNumber),
			slog.String("error", err.Error()),
		)
		return nil, &UploadError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка записи чанка на диск",
		}
	}

	// 4. Размер и дайджест принятого содержимого
	expectedSize := snap.ExpectedChunkSize(p.ChunkNumber)
	if staged.Digest.Size != expectedSize {
		staged.Discard()
		return nil, &UploadError{
			StatusCode: 422,
			Code:       apierrors.CodeChunkSizeMismatch,
			Message: fmt.Sprintf("Размер чанка %d: получено %d байт, ожидалось %d",
				p.ChunkNumber, staged.Digest.Size, expectedSize),
		}
	}
	if staged.Digest.SHA256 != p.DeclaredSHA256 {
		staged.Discard()
		return nil, &UploadError{
			StatusCode: 422,
			Code:       apierrors.CodeChecksumMismatch,
			Message: fmt.Sprintf("Дайджест чанка %d не совпал: получено %s, заявлено %s",
				p.ChunkNumber, staged.Digest.SHA256, p.DeclaredSHA256),
		}
	}

	// 5. Фиксация под мьютексом сессии
	rec := model.ChunkRecord{
		ChunkNumber: p.ChunkNumber,
		SizeBytes:   staged.Digest.Size,
		SHA256:      staged.Digest.SHA256,
		ReceivedAt:  s.now().UTC(),
	}
	noop, err := s.sessions.RecordChunk(p.SessionID, rec, staged.Commit)
	if err != nil {
		staged.Discard()
		switch {
		case err == session.ErrNotFound:
			return nil, sessionLookupError(p.SessionID, err)
		case err == session.ErrNotActive:
			// Статус сменился между снимком и фиксацией
			again, getErr := s.sessions.Get(p.SessionID)
			if getErr == nil {
				if ue := s.checkAcceptsChunks(again); ue != nil {
					return nil, ue
				}
			}
			return nil, &UploadError{
				StatusCode: 409,
				Code:       apierrors.CodeInvalidState,
				Message:    "Сессия больше не принимает чанки",
			}
		default:
			s.logger.Error("Ошибка фиксации чанка",
				slog.String("session_id", p.SessionID),
				slog.Int("chunk_number", p.ChunkNumber),
				slog.String("error", err.Error()),
			)
			return nil, &UploadError{
				StatusCode: 500,
				Code:       apierrors.CodeInternalError,
				Message:    "Ошибка фиксации чанка",
			}
		}
	}
	if noop {
		staged.Discard()
		chunksRetriedTotal.Inc()
	} else {
		chunksReceivedTotal.Inc()
		bytesReceivedTotal.Add(float64(rec.SizeBytes))
	}

	after, err := s.sessions.Get(p.SessionID)
	if err != nil {
		return nil, sessionLookupError(p.SessionID, err)
	}

	s.logger.Debug("Чанк принят",
		slog.String("session_id", p.SessionID),
		slog.Int("chunk_number", p.ChunkNumber),
		slog.Int64("size", rec.SizeBytes),
		slog.Bool("retried", noop),
	)

	return &ChunkResult{Session: after, Retried: noop}, nil
}

// Abort прерывает сессию и освобождает её staged-данные.
// Идемпотентен: прерывание уже прерванной или истёкшей сессии — no-op.
func (s *UploadService) Abort(ctx context.Context, sessionID string) *UploadError {
	g, err := s.sessions.Acquire(sessionID)
	if err != nil {
		return sessionLookupError(sessionID, err)
	}
	defer g.Release()

	sess := g.Session()
	switch sess.Status {
	case model.StatusAborted, model.StatusExpired:
		return nil
	case model.StatusComplete:
		return &UploadError{
			StatusCode: 409,
			Code:       apierrors.CodeInvalidState,
			Message:    "Завершённую сессию нельзя прервать",
		}
	case model.StatusFinalizing:
		return &UploadError{
			StatusCode: 409,
			Code:       apierrors.CodeInvalidState,
			Message:    "Сессия в процессе финализации",
		}
	}

	if err := g.SetStatus(model.StatusAborted); err != nil {
		return &UploadError{
			StatusCode: 409,
			Code:       apierrors.CodeInvalidState,
			Message:    err.Error(),
		}
	}
	if err := s.chunks.Purge(sessionID); err != nil {
		s.logger.Warn("Не удалось удалить staged-данные прерванной сессии",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}

	sessionsAbortedTotal.Inc()
	s.logger.Info("Сессия прервана клиентом",
		slog.String("session_id", sessionID),
	)
	return nil
}

// GetSession возвращает снимок сессии.
func (s *UploadService) GetSession(_ context.Context, sessionID string) (*model.UploadSession, *UploadError) {
	snap, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, sessionLookupError(sessionID, err)
	}
	return snap, nil
}

// ListSessions возвращает снимки всех сессий, новые первыми.
func (s *UploadService) ListSessions(_ context.Context) []*model.UploadSession {
	out := s.sessions.List()
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// checkAcceptsChunks проверяет, что сессия может принимать чанки.
func (s *UploadService) checkAcceptsChunks(sess *model.UploadSession) *UploadError {
	switch sess.Status {
	case model.StatusExpired:
		return expiredError(sess.SessionID)
	case model.StatusComplete, model.StatusAborted:
		return &UploadError{
			StatusCode: 409,
			Code:       apierrors.CodeInvalidState,
			Message:    fmt.Sprintf("Сессия в статусе %s не принимает чанки", sess.Status),
		}
	case model.StatusFinalizing:
		return &UploadError{
			StatusCode: 409,
			Code:       apierrors.CodeInvalidState,
			Message:    "Сессия в процессе финализации",
		}
	}
	// Дедлайн проверяется по времени, не дожидаясь reaper-а
	if sess.IsExpired(s.now()) {
		return expiredError(sess.SessionID)
	}
	return nil
}

// sessionLookupError маппит ошибку поиска сессии на HTTP-ошибку.
func sessionLookupError(sessionID string, err error) *UploadError {
	if err == session.ErrNotFound {
		return &UploadError{
			StatusCode: 404,
			Code:       apierrors.CodeNotFound,
			Message:    fmt.Sprintf("Сессия %s не найдена", sessionID),
		}
	}
	return &UploadError{
		StatusCode: 500,
		Code:       apierrors.CodeInternalError,
		Message:    err.Error(),
	}
}

// expiredError — стандартная ошибка истёкшей сессии.
func expiredError(sessionID string) *UploadError {
	return &UploadError{
		StatusCode: 410,
		Code:       apierrors.CodeSessionExpired,
		Message:    fmt.Sprintf("Срок сессии %s истёк, staged-данные освобождены", sessionID),
	}
}
