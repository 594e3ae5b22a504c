// Пакет journal — файловый журнал операций сборки.
// Сборка файла из чанков — многошаговая операция (хэширование,
// запись в durable-хранилище, регистрация, очистка staging), падение
// посередине оставляет полусобранное состояние. Журнал фиксирует
// начало операции до первого побочного эффекта; при рестарте
// незавершённые записи восстанавливаются и откатываются.
// Каждая операция — отдельный файл {op_id}.journal.json.
package journal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Operation — тип журналируемой операции.
type Operation string

const (
	// OpAssemble — сборка объекта из staged-чанков
	OpAssemble Operation = "assemble"
	// OpPurge — удаление staged-данных сессии
	OpPurge Operation = "purge"
)

// Status — статус журнальной записи.
type Status string

const (
	// StatusPending — операция начата и не завершена
	StatusPending Status = "pending"
	// StatusCommitted — операция успешно завершена
	StatusCommitted Status = "committed"
	// StatusRolledBack — операция отменена
	StatusRolledBack Status = "rolled_back"
)

// Entry — журнальная запись. Хранится как JSON-файл {op_id}.journal.json.
type Entry struct {
	// OpID — уникальный идентификатор операции (UUID v4)
	OpID string `json:"op_id"`
	// Operation — тип операции
	Operation Operation `json:"operation"`
	// Status — текущий статус
	Status Status `json:"status"`
	// SessionID — сессия, над которой выполняется операция
	SessionID string `json:"session_id"`
	// StartedAt — время начала (UTC)
	StartedAt time.Time `json:"started_at"`
	// CompletedAt — время завершения, nil для pending
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// entryFileName возвращает имя файла для данной операции.
func entryFileName(opID string) string {
	return opID + ".journal.json"
}

// Journal — файловый журнал операций.
type Journal struct {
	// dir — директория хранения журнала (UM_JOURNAL_DIR)
	dir string
	// mu — мьютекс для потокобезопасности
	mu sync.Mutex
	// logger — логгер
	logger *slog.Logger
}

// New создаёт журнал. Проверяет и создаёт директорию,
// убеждается в доступности на запись.
func New(dir string, logger *slog.Logger) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию журнала %s: %w", dir, err)
	}

	testFile := filepath.Join(dir, ".journal_write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o640); err != nil {
		return nil, fmt.Errorf("директория журнала %s недоступна для записи: %w", dir, err)
	}
	os.Remove(testFile)

	return &Journal{
		dir:    dir,
		logger: logger.With(slog.String("component", "journal")),
	}, nil
}

// Begin создаёт запись со статусом pending до первого побочного
// эффекта операции. Запись сохраняется атомарно: temp файл → fsync →
// rename.
func (j *Journal) Begin(op Operation, sessionID string) (*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := &Entry{
		OpID:      uuid.New().String(),
		Operation: op,
		Status:    StatusPending,
		SessionID: sessionID,
		StartedAt: time.Now().UTC(),
	}

	if err := j.writeEntry(entry); err != nil {
		return nil, fmt.Errorf("не удалось создать журнальную запись: %w", err)
	}

	j.logger.Debug("операция начата",
		slog.String("op_id", entry.OpID),
		slog.String("operation", string(entry.Operation)),
		slog.String("session_id", entry.SessionID),
	)

	return entry, nil
}

// Commit помечает операцию как успешно завершённую.
func (j *Journal) Commit(opID string) error {
	return j.finish(opID, StatusCommitted)
}

// Rollback помечает операцию как отменённую.
func (j *Journal) Rollback(opID string) error {
	return j.finish(opID, StatusRolledBack)
}

func (j *Journal) finish(opID string, status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry, err := j.readEntry(opID)
	if err != nil {
		return fmt.Errorf("не удалось прочитать журнальную запись %s: %w", opID, err)
	}
	if entry.Status != StatusPending {
		return fmt.Errorf("журнальная запись %s имеет статус %s, ожидается %s",
			opID, entry.Status, StatusPending)
	}

	now := time.Now().UTC()
	entry.Status = status
	entry.CompletedAt = &now

	if err := j.writeEntry(entry); err != nil {
		return fmt.Errorf("не удалось обновить журнальную запись %s: %w", opID, err)
	}

	j.logger.Debug("операция завершена",
		slog.String("op_id", opID),
		slog.String("status", string(status)),
		slog.Duration("duration", now.Sub(entry.StartedAt)),
	)
	return nil
}

// RecoverPending возвращает все записи со статусом pending.
// Вызывается при старте для отката незавершённых сборок.
func (j *Journal) RecoverPending() ([]*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	paths, err := filepath.Glob(filepath.Join(j.dir, "*.journal.json"))
	if err != nil {
		return nil, fmt.Errorf("не удалось сканировать директорию журнала: %w", err)
	}

	var pending []*Entry
	for _, path := range paths {
		opID := strings.TrimSuffix(filepath.Base(path), ".journal.json")
		entry, err := j.readEntry(opID)
		if err != nil {
			j.logger.Warn("Не удалось прочитать журнальную запись при восстановлении",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		if entry.Status == StatusPending {
			pending = append(pending, entry)
			j.logger.Warn("Обнаружена незавершённая операция",
				slog.String("op_id", entry.OpID),
				slog.String("operation", string(entry.Operation)),
				slog.String("session_id", entry.SessionID),
				slog.Time("started_at", entry.StartedAt),
			)
		}
	}
	return pending, nil
}

// CleanFinished удаляет завершённые (committed/rolled_back) записи.
// Возвращает количество удалённых.
func (j *Journal) CleanFinished() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	paths, err := filepath.Glob(filepath.Join(j.dir, "*.journal.json"))
	if err != nil {
		return 0, fmt.Errorf("не удалось сканировать директорию журнала: %w", err)
	}

	cleaned := 0
	for _, path := range paths {
		opID := strings.TrimSuffix(filepath.Base(path), ".journal.json")
		entry, err := j.readEntry(opID)
		if err != nil {
			continue
		}
		if entry.Status == StatusCommitted || entry.Status == StatusRolledBack {
			if err := os.Remove(path); err != nil {
				j.logger.Warn("Не удалось удалить завершённую журнальную запись",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
				continue
			}
			cleaned++
		}
	}

	if cleaned > 0 {
		j.logger.Info("Очистка журнала завершена", slog.Int("cleaned", cleaned))
	}
	return cleaned, nil
}

// writeEntry атомарно записывает журнальную запись на диск.
// Паттерн: temp файл → fsync → atomic rename.
func (j *Journal) writeEntry(entry *Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации: %w", err)
	}

	targetPath := filepath.Join(j.dir, entryFileName(entry.OpID))
	tmpPath := targetPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

// readEntry читает журнальную запись из файла.
func (j *Journal) readEntry(opID string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(j.dir, entryFileName(opID)))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("ошибка десериализации: %w", err)
	}
	return &entry, nil
}
