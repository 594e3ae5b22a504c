// Пакет chunkstore — staging-область принятых чанков.
// Каждая сессия получает собственную директорию {staging}/{session_id}
// с файлами чанков {NNNNNN}.part и манифестом session.json.
// Запись всегда двухфазная: содержимое пишется во временный файл с
// подсчётом дайджестов на лету, rename на staged-место выполняется
// отдельным шагом под мьютексом сессии.
package chunkstore

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bigkaa/modelreg/upload-module/internal/domain/model"
	"github.com/bigkaa/modelreg/upload-module/internal/hash"
)

// manifestName — имя манифеста сессии внутри её staging-директории.
const manifestName = "session.json"

// ChunkStore — staging-область на локальном диске.
type ChunkStore struct {
	// stagingDir — корневая директория staging (UM_STAGING_DIR)
	stagingDir string
}

// New создаёт ChunkStore. Проверяет и создаёт директорию,
// убеждается в доступности на запись.
func New(stagingDir string) (*ChunkStore, error) {
	if err := os.MkdirAll(stagingDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать staging-директорию %s: %w", stagingDir, err)
	}

	testFile := filepath.Join(stagingDir, ".staging_write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o640); err != nil {
		return nil, fmt.Errorf("staging-директория %s недоступна для записи: %w", stagingDir, err)
	}
	os.Remove(testFile)

	return &ChunkStore{stagingDir: stagingDir}, nil
}

// Dir возвращает корневую staging-директорию.
func (cs *ChunkStore) Dir() string {
	return cs.stagingDir
}

// sessionDir возвращает staging-директорию сессии.
func (cs *ChunkStore) sessionDir(sessionID string) string {
	return filepath.Join(cs.stagingDir, sessionID)
}

// chunkFileName возвращает имя файла чанка с данным индексом.
func chunkFileName(chunkNumber int) string {
	return fmt.Sprintf("%06d.part", chunkNumber)
}

// ChunkPath возвращает абсолютный путь staged-чанка.
func (cs *ChunkStore) ChunkPath(sessionID string, chunkNumber int) string {
	return filepath.Join(cs.sessionDir(sessionID), chunkFileName(chunkNumber))
}

// Staged — чанк, записанный во временный файл и ожидающий Commit.
// Commit переносит файл на staged-место атомарным rename,
// Discard удаляет временный файл. Ровно один из них обязателен.
type Staged struct {
	// Digest — дайджесты содержимого, подсчитанные при записи
	Digest hash.Digest

	tmpPath    string
	finalPath  string
	committed  bool
	discarded  bool
}

// Commit атомарно переносит чанк на staged-место.
func (s *Staged) Commit() error {
	if s.committed || s.discarded {
		return fmt.Errorf("staged-чанк уже обработан")
	}
	if err := os.Rename(s.tmpPath, s.finalPath); err != nil {
		os.Remove(s.tmpPath)
		return fmt.Errorf("ошибка атомарного переименования чанка: %w", err)
	}
	s.committed = true
	return nil
}

// Discard удаляет временный файл. Повторный вызов безопасен.
func (s *Staged) Discard() {
	if s.committed || s.discarded {
		return
	}
	s.discarded = true
	os.Remove(s.tmpPath)
}

// Stage записывает содержимое чанка во временный файл с подсчётом
// SHA-256 и MD5 на лету. Блокировок не берёт: тяжёлая часть приёма
// выполняется вне мьютекса сессии.
func (cs *ChunkStore) Stage(sessionID string, chunkNumber int, r io.Reader) (*Staged, error) {
	dir := cs.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию сессии %s: %w", sessionID, err)
	}

	finalPath := cs.ChunkPath(sessionID, chunkNumber)

	// Имя временного файла уникально для каждого вызова: параллельные
	// приёмы одного и того же чанка не должны затирать друг другу
	// байты между записью и Commit.
	f, err := os.CreateTemp(dir, chunkFileName(chunkNumber)+".tmp.*")
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла чанка: %w", err)
	}
	tmpPath := f.Name()

	hw := hash.NewWriter()
	if _, err := io.Copy(io.MultiWriter(f, hw), r); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи чанка: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	return &Staged{
		Digest:    hw.Sum(),
		tmpPath:   tmpPath,
		finalPath: finalPath,
	}, nil
}

// OpenChunk открывает staged-чанк для чтения.
// Вызывающий код обязан закрыть файл.
func (cs *ChunkStore) OpenChunk(sessionID string, chunkNumber int) (*os.File, error) {
	f, err := os.Open(cs.ChunkPath(sessionID, chunkNumber))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("staged-чанк %d сессии %s не найден", chunkNumber, sessionID)
		}
		return nil, fmt.Errorf("ошибка открытия чанка %d: %w", chunkNumber, err)
	}
	return f, nil
}

// WriteManifest атомарно записывает манифест сессии в её
// staging-директорию. Манифест используется sweep-ом при старте
// для диагностики осиротевших директорий.
func (cs *ChunkStore) WriteManifest(s *model.UploadSession) error {
	dir := cs.sessionDir(s.SessionID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию сессии %s: %w", s.SessionID, err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации манифеста: %w", err)
	}

	targetPath := filepath.Join(dir, manifestName)
	tmpPath := targetPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o640); err != nil {
		return fmt.Errorf("ошибка записи манифеста: %w", err)
	}
	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования манифеста: %w", err)
	}
	return nil
}

// ReadManifest читает манифест сессии из staging-директории.
func (cs *ChunkStore) ReadManifest(sessionID string) (*model.UploadSession, error) {
	data, err := os.ReadFile(filepath.Join(cs.sessionDir(sessionID), manifestName))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения манифеста сессии %s: %w", sessionID, err)
	}
	var s model.UploadSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("ошибка десериализации манифеста сессии %s: %w", sessionID, err)
	}
	return &s, nil
}

// Purge удаляет staging-директорию сессии со всем содержимым.
func (cs *ChunkStore) Purge(sessionID string) error {
	if err := os.RemoveAll(cs.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("ошибка удаления staging-директории сессии %s: %w", sessionID, err)
	}
	return nil
}

// Sweep удаляет staging-директории, для которых known возвращает
// false. Вызывается при старте: сессии живут только в памяти, после
// рестарта все staged-данные осиротели. Возвращает идентификаторы
// удалённых сессий.
func (cs *ChunkStore) Sweep(known func(sessionID string) bool) ([]string, error) {
	entries, err := os.ReadDir(cs.stagingDir)
	if err != nil {
		return nil, fmt.Errorf("не удалось сканировать staging-директорию: %w", err)
	}

	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		if known != nil && known(id) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(cs.stagingDir, id)); err != nil {
			return removed, fmt.Errorf("не удалось удалить осиротевшую директорию %s: %w", id, err)
		}
		removed = append(removed, id)
	}
	return removed, nil
}
