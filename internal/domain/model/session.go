// Пакет model — доменные модели Upload Module.
// UploadSession — состояние одной chunked-загрузки, ChunkRecord — принятый
// чанк, FinalizedFile — результат успешной сборки.
package model

import (
	"fmt"
	"time"
)

// Границы конфигурации загрузки.
const (
	// MinChunkSize — минимальный размер чанка (256 КиБ)
	MinChunkSize int64 = 256 * 1024
	// MaxChunkSize — максимальный размер чанка (100 МиБ)
	MaxChunkSize int64 = 100 * 1024 * 1024
	// MaxTotalChunks — максимальное количество чанков на сессию
	MaxTotalChunks int64 = 10000
	// DefaultMaxObjectSize — лимит размера объекта по умолчанию (100 ГБ)
	DefaultMaxObjectSize int64 = 100_000_000_000
	// DefaultSessionTTL — срок жизни сессии (фиксированное окно от создания,
	// активность его не продлевает)
	DefaultSessionTTL = 24 * time.Hour
)

// SessionStatus — статус upload-сессии.
type SessionStatus string

const (
	// StatusActive — сессия принимает чанки
	StatusActive SessionStatus = "active"
	// StatusFinalizing — идёт сборка файла (soft lock от параллельного finalize)
	StatusFinalizing SessionStatus = "finalizing"
	// StatusComplete — файл собран и зарегистрирован
	StatusComplete SessionStatus = "complete"
	// StatusExpired — срок сессии истёк, staged-данные удалены
	StatusExpired SessionStatus = "expired"
	// StatusAborted — сессия явно прервана клиентом
	StatusAborted SessionStatus = "aborted"
)

// validTransitions — матрица допустимых переходов статуса сессии.
// complete, expired и aborted — терминальные.
var validTransitions = map[SessionStatus]map[SessionStatus]bool{
	StatusActive:     {StatusFinalizing: true, StatusExpired: true, StatusAborted: true},
	StatusFinalizing: {StatusComplete: true, StatusActive: true, StatusExpired: true},
	StatusComplete:   {},
	StatusExpired:    {},
	StatusAborted:    {},
}

// CanTransition проверяет допустимость перехода from → to.
func CanTransition(from, to SessionStatus) bool {
	return validTransitions[from][to]
}

// IsTerminal возвращает true для терминальных статусов.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusExpired || s == StatusAborted
}

// ChunkRecord — один принятый чанк сессии.
type ChunkRecord struct {
	// ChunkNumber — индекс чанка (0-based, < DeclaredTotalChunks)
	ChunkNumber int `json:"chunk_number"`
	// SizeBytes — размер чанка в байтах
	SizeBytes int64 `json:"size_bytes"`
	// SHA256 — hex SHA-256 содержимого, проверен до записи
	SHA256 string `json:"sha256"`
	// ReceivedAt — время приёма (UTC)
	ReceivedAt time.Time `json:"received_at"`
}

// UploadSession — состояние одной chunked-загрузки.
// Экземпляры принадлежат session.Store; все мутации выполняются
// под per-session мьютексом арены.
type UploadSession struct {
	// SessionID — уникальный идентификатор сессии (UUID v4, не переиспользуется)
	SessionID string `json:"session_id"`
	// ArtifactID — целевой артефакт реестра (внешняя ссылка)
	ArtifactID string `json:"artifact_id"`
	// Filename — оригинальное имя загружаемого файла
	Filename string `json:"filename"`
	// UploadedBy — субъект из JWT (sub)
	UploadedBy string `json:"uploaded_by"`

	// DeclaredTotalSize — заявленный полный размер объекта в байтах
	DeclaredTotalSize int64 `json:"declared_total_size"`
	// DeclaredTotalChunks — заявленное количество чанков
	DeclaredTotalChunks int `json:"declared_total_chunks"`
	// ChunkSizeBytes — размер каждого чанка кроме последнего
	ChunkSizeBytes int64 `json:"chunk_size_bytes"`

	// Chunks — принятые чанки по индексу
	Chunks map[int]ChunkRecord `json:"chunks"`
	// BytesReceived — суммарно принято байт (монотонно не убывает)
	BytesReceived int64 `json:"bytes_received"`

	// Status — текущий статус жизненного цикла
	Status SessionStatus `json:"status"`
	// CreatedAt — время создания (UTC)
	CreatedAt time.Time `json:"created_at"`
	// ExpiresAt — жёсткий дедлайн (CreatedAt + TTL, активностью не продлевается)
	ExpiresAt time.Time `json:"expires_at"`
	// CompletedAt — время завершения сборки, nil до COMPLETE
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Result — итог сборки; заполняется один раз при переходе в COMPLETE
	// и возвращается повторным finalize-запросам
	Result *FinalizedFile `json:"result,omitempty"`
}

// LastChunkSize возвращает ожидаемый размер последнего чанка.
// Инвариант: DeclaredTotalSize == ChunkSizeBytes*(N-1) + LastChunkSize,
// последний чанк может быть меньше ChunkSizeBytes, но не пустым.
func (s *UploadSession) LastChunkSize() int64 {
	return s.DeclaredTotalSize - s.ChunkSizeBytes*int64(s.DeclaredTotalChunks-1)
}

// ExpectedChunkSize возвращает ожидаемый размер чанка с данным индексом.
func (s *UploadSession) ExpectedChunkSize(chunkNumber int) int64 {
	if chunkNumber == s.DeclaredTotalChunks-1 {
		return s.LastChunkSize()
	}
	return s.ChunkSizeBytes
}

// IsExpired проверяет, истёк ли дедлайн сессии.
func (s *UploadSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsComplete возвращает true, если приняты все заявленные чанки.
func (s *UploadSession) IsComplete() bool {
	return len(s.Chunks) == s.DeclaredTotalChunks
}

// MissingChunks возвращает отсортированный список недостающих индексов.
func (s *UploadSession) MissingChunks() []int {
	var missing []int
	for i := 0; i < s.DeclaredTotalChunks; i++ {
		if _, ok := s.Chunks[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// PercentComplete возвращает долю принятых байт [0, 1].
func (s *UploadSession) PercentComplete() float64 {
	if s.DeclaredTotalSize == 0 {
		return 0
	}
	return float64(s.BytesReceived) / float64(s.DeclaredTotalSize)
}

// ValidateGeometry проверяет согласованность заявленных size/chunks/chunkSize.
// Возвращает ошибку с человекочитаемой причиной для VALIDATION_ERROR.
func (s *UploadSession) ValidateGeometry() error {
	if s.ChunkSizeBytes < MinChunkSize {
		return fmt.Errorf("размер чанка %d байт меньше минимума %d байт", s.ChunkSizeBytes, MinChunkSize)
	}
	if s.ChunkSizeBytes > MaxChunkSize {
		return fmt.Errorf("размер чанка %d байт превышает максимум %d байт", s.ChunkSizeBytes, MaxChunkSize)
	}
	if s.DeclaredTotalChunks < 1 || int64(s.DeclaredTotalChunks) > MaxTotalChunks {
		return fmt.Errorf("количество чанков %d вне диапазона 1-%d", s.DeclaredTotalChunks, MaxTotalChunks)
	}
	if s.DeclaredTotalSize <= 0 {
		return fmt.Errorf("размер объекта должен быть положительным, получено %d", s.DeclaredTotalSize)
	}
	last := s.LastChunkSize()
	if last <= 0 || last > s.ChunkSizeBytes {
		return fmt.Errorf(
			"геометрия не сходится: %d байт не раскладываются на %d чанков по %d байт",
			s.DeclaredTotalSize, s.DeclaredTotalChunks, s.ChunkSizeBytes,
		)
	}
	return nil
}

// FinalizedFile — результат успешно собранной сессии.
// Создаётся Assembler-ом ровно один раз после проверки дайджеста объекта.
type FinalizedFile struct {
	// FileID — уникальный идентификатор файла (UUID v4)
	FileID string `json:"file_id"`
	// ArtifactID — владеющий артефакт
	ArtifactID string `json:"artifact_id"`
	// Filename — оригинальное имя файла
	Filename string `json:"filename"`
	// SizeBytes — размер собранного объекта
	SizeBytes int64 `json:"size_bytes"`
	// SHA256 — строгий дайджест объекта
	SHA256 string `json:"sha256_checksum"`
	// MD5 — быстрая контрольная сумма объекта
	MD5 string `json:"md5_checksum"`
	// Version — монотонный номер версии в рамках артефакта
	Version int `json:"version"`
	// DownloadLocation — durable-локация от storage sink
	DownloadLocation string `json:"download_location"`
	// UploadedBy — субъект, завершивший загрузку
	UploadedBy string `json:"uploaded_by"`
	// UploadedAt — время регистрации файла (UTC)
	UploadedAt time.Time `json:"uploaded_at"`
	// IsDuplicate — файл не записывался: найден существующий с тем же SHA-256
	IsDuplicate bool `json:"is_duplicate"`
}
