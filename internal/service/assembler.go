// assembler.go — финализация сессии: сборка объекта из staged-чанков.
//
// Сборка выполняется под мьютексом сессии целиком: пока она идёт,
// ни один чанк этой сессии не будет принят и повторный finalize
// будет ждать, а после завершения получит сохранённый результат.
// Статус finalizing — маркер для наблюдателей (progress, reaper),
// жёсткую взаимоисключаемость даёт мьютекс.
//
// Два прохода по чанкам:
//  1. Хэширование в порядке индексов и проверка дайджеста объекта.
//     Несовпадение откатывает сессию в active без побочных эффектов.
//  2. Потоковая запись в durable-хранилище и регистрация в реестре.
//     Пропускается при дедупликации: файл с тем же SHA-256 уже есть.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/modelreg/upload-module/internal/api/errors"
	"github.com/bigkaa/modelreg/upload-module/internal/domain/model"
	"github.com/bigkaa/modelreg/upload-module/internal/hash"
	"github.com/bigkaa/modelreg/upload-module/internal/repository"
	"github.com/bigkaa/modelreg/upload-module/internal/session"
	"github.com/bigkaa/modelreg/upload-module/internal/storage/journal"
	"github.com/bigkaa/modelreg/upload-module/internal/storage/sink"
)

// Prometheus метрики финализации.
var (
	finalizeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "um_finalize_total",
		Help: "Общее количество финализаций по результату",
	}, []string{"result"})

	finalizeDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "um_finalize_duration_seconds",
		Help:    "Длительность финализации в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})
)

// FinalizeParams — параметры финализации.
type FinalizeParams struct {
	// SessionID — идентификатор сессии
	SessionID string
	// DeclaredSHA256 — заявленный дайджест всего объекта,
	// обязателен: без него сверка содержимого невозможна
	DeclaredSHA256 string
}

// Finalize собирает объект из staged-чанков и регистрирует его.
// Идемпотентен: повторный вызов для завершённой сессии возвращает
// сохранённый результат.
func (s *UploadService) Finalize(ctx context.Context, p FinalizeParams) (*model.FinalizedFile, *UploadError) {
	start := time.Now()

	g, err := s.sessions.Acquire(p.SessionID)
	if err != nil {
		return nil, sessionLookupError(p.SessionID, err)
	}
	defer g.Release()

	sess := g.Session()
	switch sess.Status {
	case model.StatusComplete:
		// Повторный finalize: отдаём сохранённый результат
		return sess.Result, nil
	case model.StatusAborted:
		return nil, &UploadError{
			StatusCode: 409,
			Code:       apierrors.CodeInvalidState,
			Message:    "Прерванную сессию нельзя финализировать",
		}
	case model.StatusExpired:
		return nil, expiredError(p.SessionID)
	case model.StatusFinalizing:
		// Видимо только после падения процесса посреди сборки,
		// иначе мьютекс не дал бы сюда попасть
		return nil, &UploadError{
			StatusCode: 409,
			Code:       apierrors.CodeInvalidState,
			Message:    "Сессия в процессе финализации",
		}
	}
	if sess.IsExpired(s.now()) {
		return nil, expiredError(p.SessionID)
	}

	if !sess.IsComplete() {
		missing := sess.MissingChunks()
		return nil, &UploadError{
			StatusCode: 409,
			Code:       apierrors.CodeIncompleteUpload,
			Message: fmt.Sprintf("Принято %d из %d чанков, недостающие: %v",
				len(sess.Chunks), sess.DeclaredTotalChunks, summarizeMissing(missing)),
		}
	}
	if !hash.IsValidSHA256Hex(p.DeclaredSHA256) {
		return nil, &UploadError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Заявленный SHA-256 обязателен и должен быть 64-символьной hex-строкой",
		}
	}

	if err := g.SetStatus(model.StatusFinalizing); err != nil {
		return nil, &UploadError{
			StatusCode: 409,
			Code:       apierrors.CodeInvalidState,
			Message:    err.Error(),
		}
	}

	entry, err := s.jrnl.Begin(journal.OpAssemble, p.SessionID)
	if err != nil {
		s.revertToActive(g, "")
		s.logger.Error("Ошибка создания журнальной записи",
			slog.String("session_id", p.SessionID),
			slog.String("error", err.Error()),
		)
		return nil, internalError("Внутренняя ошибка при создании журнальной записи")
	}

	// Проход 1: дайджест объекта в порядке индексов
	digest, err := s.hashAssembled(sess)
	if err != nil {
		s.revertToActive(g, entry.OpID)
		s.logger.Error("Ошибка хэширования staged-чанков",
			slog.String("session_id", p.SessionID),
			slog.String("error", err.Error()),
		)
		return nil, internalError("Ошибка чтения staged-чанков")
	}
	if digest.Size != sess.DeclaredTotalSize {
		s.revertToActive(g, entry.OpID)
		finalizeTotal.WithLabelValues("integrity_failed").Inc()
		return nil, &UploadError{
			StatusCode: 422,
			Code:       apierrors.CodeIntegrityCheckFailed,
			Message: fmt.Sprintf("Размер собранного объекта %d байт не совпал с заявленным %d",
				digest.Size, sess.DeclaredTotalSize),
		}
	}
	if digest.SHA256 != p.DeclaredSHA256 {
		s.revertToActive(g, entry.OpID)
		finalizeTotal.WithLabelValues("integrity_failed").Inc()
		return nil, &UploadError{
			StatusCode: 422,
			Code:       apierrors.CodeIntegrityCheckFailed,
			Message: fmt.Sprintf("Дайджест собранного объекта %s не совпал с заявленным %s",
				digest.SHA256, p.DeclaredSHA256),
		}
	}

	// Дедупликация: файл с тем же содержимым уже зарегистрирован
	existing, err := s.files.FindBySHA256(ctx, digest.SHA256)
	switch {
	case err == nil:
		result := *existing
		result.IsDuplicate = true
		s.completeSession(g, &result, entry.OpID)
		finalizeTotal.WithLabelValues("dedup").Inc()
		finalizeDurationSeconds.Observe(time.Since(start).Seconds())
		s.logger.Info("Финализация завершена дедупликацией",
			slog.String("session_id", p.SessionID),
			slog.String("file_id", result.FileID),
			slog.String("sha256", digest.SHA256),
		)
		return &result, nil
	case err != repository.ErrNotFound:
		s.revertToActive(g, entry.OpID)
		s.logger.Error("Ошибка поиска дубликата",
			slog.String("session_id", p.SessionID),
			slog.String("error", err.Error()),
		)
		return nil, internalError("Ошибка обращения к реестру файлов")
	}

	// Проход 2: потоковая запись в durable-хранилище
	fileID := uuid.New().String()
	location, err := s.storeAssembled(ctx, sess, sink.ObjectInfo{
		FileID:     fileID,
		ArtifactID: sess.ArtifactID,
		Filename:   sess.Filename,
		SHA256:     digest.SHA256,
		Size:       digest.Size,
	})
	if err != nil {
		s.revertToActive(g, entry.OpID)
		s.logger.Error("Ошибка записи объекта в хранилище",
			slog.String("session_id", p.SessionID),
			slog.String("error", err.Error()),
		)
		return nil, internalError("Ошибка записи собранного объекта")
	}

	result := &model.FinalizedFile{
		FileID:           fileID,
		ArtifactID:       sess.ArtifactID,
		Filename:         sess.Filename,
		SizeBytes:        digest.Size,
		SHA256:           digest.SHA256,
		MD5:              digest.MD5,
		DownloadLocation: location,
		UploadedBy:       sess.UploadedBy,
		UploadedAt:       s.now().UTC(),
	}
	if err := s.files.Insert(ctx, result); err != nil {
		// Объект в content-addressed хранилище безвреден без записи
		// в реестре, убирать его не нужно
		s.revertToActive(g, entry.OpID)
		s.logger.Error("Ошибка регистрации файла",
			slog.String("session_id", p.SessionID),
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, internalError("Ошибка регистрации собранного файла")
	}

	s.completeSession(g, result, entry.OpID)
	finalizeTotal.WithLabelValues("success").Inc()
	finalizeDurationSeconds.Observe(time.Since(start).Seconds())

	s.logger.Info("Файл собран и зарегистрирован",
		slog.String("session_id", p.SessionID),
		slog.String("file_id", result.FileID),
		slog.String("artifact_id", result.ArtifactID),
		slog.String("filename", result.Filename),
		slog.Int64("size", result.SizeBytes),
		slog.String("sha256", result.SHA256),
		slog.Int("version", result.Version),
	)

	return result, nil
}

// hashAssembled читает staged-чанки в порядке индексов и возвращает
// дайджесты будущего объекта. Побочных эффектов нет.
func (s *UploadService) hashAssembled(sess *model.UploadSession) (hash.Digest, error) {
	hw := hash.NewWriter()
	for i := 0; i < sess.DeclaredTotalChunks; i++ {
		f, err := s.chunks.OpenChunk(sess.SessionID, i)
		if err != nil {
			return hash.Digest{}, err
		}
		_, err = io.Copy(hw, f)
		f.Close()
		if err != nil {
			return hash.Digest{}, fmt.Errorf("ошибка чтения чанка %d: %w", i, err)
		}
	}
	return hw.Sum(), nil
}

// storeAssembled передаёт конкатенацию staged-чанков в sink одним
// потоком, не собирая объект в памяти или во временном файле.
func (s *UploadService) storeAssembled(ctx context.Context, sess *model.UploadSession, info sink.ObjectInfo) (string, error) {
	pr, pw := io.Pipe()
	go func() {
		for i := 0; i < sess.DeclaredTotalChunks; i++ {
			f, err := s.chunks.OpenChunk(sess.SessionID, i)
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			_, err = io.Copy(pw, f)
			f.Close()
			if err != nil {
				pw.CloseWithError(fmt.Errorf("ошибка чтения чанка %d: %w", i, err))
				return
			}
		}
		pw.Close()
	}()

	location, err := s.sink.Store(ctx, pr, info)
	if err != nil {
		pr.CloseWithError(err)
		return "", err
	}
	return location, nil
}

// completeSession переводит сессию в complete, сохраняет результат,
// коммитит журнал и освобождает staging.
func (s *UploadService) completeSession(g *session.Guard, result *model.FinalizedFile, opID string) {
	sess := g.Session()
	if err := g.SetStatus(model.StatusComplete); err != nil {
		// finalizing -> complete всегда допустим, сюда не попадаем
		s.logger.Error("Ошибка перевода сессии в complete",
			slog.String("session_id", sess.SessionID),
			slog.String("error", err.Error()),
		)
	}
	now := s.now().UTC()
	sess.CompletedAt = &now
	sess.Result = result

	if err := s.jrnl.Commit(opID); err != nil {
		s.logger.Error("Ошибка коммита журнала (объект зарегистрирован)",
			slog.String("session_id", sess.SessionID),
			slog.String("op_id", opID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.chunks.Purge(sess.SessionID); err != nil {
		s.logger.Warn("Не удалось удалить staged-данные завершённой сессии",
			slog.String("session_id", sess.SessionID),
			slog.String("error", err.Error()),
		)
	}
}

// revertToActive откатывает сессию из finalizing в active и журнал
// в rolled_back. Staged-чанки не трогаются: клиент может дослать
// исправленные чанки и повторить финализацию.
func (s *UploadService) revertToActive(g *session.Guard, opID string) {
	if err := g.SetStatus(model.StatusActive); err != nil {
		s.logger.Error("Ошибка отката сессии в active",
			slog.String("session_id", g.Session().SessionID),
			slog.String("error", err.Error()),
		)
	}
	if opID == "" {
		return
	}
	if err := s.jrnl.Rollback(opID); err != nil {
		s.logger.Error("Ошибка отката журнала",
			slog.String("op_id", opID),
			slog.String("error", err.Error()),
		)
	}
}

// internalError — стандартная внутренняя ошибка.
func internalError(message string) *UploadError {
	return &UploadError{
		StatusCode: 500,
		Code:       apierrors.CodeInternalError,
		Message:    message,
	}
}

// summarizeMissing сокращает длинный список недостающих индексов
// для сообщения об ошибке.
func summarizeMissing(missing []int) []int {
	const limit = 20
	if len(missing) <= limit {
		return missing
	}
	return missing[:limit]
}
