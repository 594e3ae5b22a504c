// Пакет sink — durable-хранилище собранных файлов.
// Sink абстрагирует место, куда Assembler пишет собранный объект:
// локальный диск сейчас, объектное хранилище потом. Хранилище
// контентно-адресуемое: путь объекта выводится из его SHA-256,
// повторная запись того же содержимого — no-op.
package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bigkaa/modelreg/upload-module/internal/hash"
)

// ObjectInfo — метаданные записываемого объекта. SHA256 известен
// до записи: Assembler проверил дайджест на отдельном проходе.
type ObjectInfo struct {
	FileID     string
	ArtifactID string
	Filename   string
	SHA256     string
	Size       int64
}

// Sink — durable-хранилище собранных объектов.
type Sink interface {
	// Store записывает объект и возвращает его локацию.
	Store(ctx context.Context, r io.Reader, info ObjectInfo) (location string, err error)
	// Open открывает объект по локации. Вызывающий код закрывает reader.
	Open(ctx context.Context, location string) (io.ReadCloser, error)
	// Remove удаляет объект по локации.
	Remove(ctx context.Context, location string) error
}

// LocalSink — хранилище на локальном диске.
// Объекты лежат в {dataDir}/blobs/{aa}/{bb}/{sha256}, где aa и bb —
// первые байты дайджеста в hex.
type LocalSink struct {
	// dataDir — корневая директория хранения (UM_DATA_DIR)
	dataDir string
}

// NewLocal создаёт LocalSink. Проверяет и создаёт директорию.
func NewLocal(dataDir string) (*LocalSink, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, "blobs"), 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	return &LocalSink{dataDir: dataDir}, nil
}

// locationFor возвращает относительную локацию объекта по дайджесту.
func locationFor(sha256hex string) string {
	return filepath.Join("blobs", sha256hex[:2], sha256hex[2:4], sha256hex)
}

// Store записывает объект с верификацией SHA-256 на лету.
// Паттерн: temp файл → запись + дайджест → fsync → atomic rename.
// Если объект с этим дайджестом уже записан, содержимое всё равно
// вычитывается для проверки, но rename не выполняется.
func (ls *LocalSink) Store(ctx context.Context, r io.Reader, info ObjectInfo) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !hash.IsValidSHA256Hex(info.SHA256) {
		return "", fmt.Errorf("некорректный SHA-256 объекта: %q", info.SHA256)
	}

	location := locationFor(info.SHA256)
	fullPath := filepath.Join(ls.dataDir, location)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("не удалось создать директорию объекта: %w", err)
	}

	tmpPath := fullPath + ".tmp." + info.FileID
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	hw := hash.NewWriter()
	size, err := io.Copy(io.MultiWriter(f, hw), r)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка записи объекта: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	d := hw.Sum()
	if d.SHA256 != info.SHA256 {
		os.Remove(tmpPath)
		return "", fmt.Errorf("дайджест записанного объекта %s не совпал с ожидаемым %s", d.SHA256, info.SHA256)
	}
	if info.Size > 0 && size != info.Size {
		os.Remove(tmpPath)
		return "", fmt.Errorf("размер записанного объекта %d не совпал с ожидаемым %d", size, info.Size)
	}

	// Контентная адресация: если объект уже лежит на месте, temp
	// просто отбрасывается.
	if _, statErr := os.Stat(fullPath); statErr == nil {
		os.Remove(tmpPath)
		return location, nil
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return location, nil
}

// Open открывает объект для чтения.
func (ls *LocalSink) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(ls.dataDir, location))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("объект не найден: %s", location)
		}
		return nil, fmt.Errorf("ошибка открытия объекта %s: %w", location, err)
	}
	return f, nil
}

// Remove удаляет объект.
func (ls *LocalSink) Remove(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(ls.dataDir, location)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления объекта %s: %w", location, err)
	}
	return nil
}
