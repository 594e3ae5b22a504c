// Пакет session — арена upload-сессий в памяти.
// Глобальной блокировки на путь данных нет: карта сессий защищена
// RWMutex только на время поиска, все мутации конкретной сессии идут
// под её собственным мьютексом. Приём чанков разных сессий не
// конкурирует между собой.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/modelreg/upload-module/internal/domain/model"
)

// Ошибки арены.
var (
	// ErrNotFound — сессия с таким идентификатором не существует.
	ErrNotFound = errors.New("сессия не найдена")
	// ErrNotActive — сессия не в статусе active и чанки не принимает.
	ErrNotActive = errors.New("сессия не принимает чанки")
	// ErrAlreadyExists — попытка создать сессию с занятым идентификатором.
	ErrAlreadyExists = errors.New("сессия уже существует")
)

// speedWindow — окно для оценки скорости приёма.
const speedWindow = 30 * time.Second

// sample — один замер принятых байт для оценки скорости.
type sample struct {
	at    time.Time
	bytes int64
}

// entry — сессия вместе с её мьютексом и замерами скорости.
type entry struct {
	mu      sync.Mutex
	session *model.UploadSession
	samples []sample
}

// Store — арена сессий.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry

	// now — источник времени, подменяется в тестах
	now func() time.Time
}

// NewStore создаёт пустую арену.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// CreateParams — параметры новой сессии.
type CreateParams struct {
	ArtifactID  string
	Filename    string
	UploadedBy  string
	TotalSize   int64
	TotalChunks int
	ChunkSize   int64
	// TTL — срок жизни сессии; 0 означает model.DefaultSessionTTL
	TTL time.Duration
}

// Create регистрирует новую сессию. Геометрия проверяется до вставки:
// несогласованные параметры не оставляют следов в арене.
func (st *Store) Create(p CreateParams) (*model.UploadSession, error) {
	ttl := p.TTL
	if ttl == 0 {
		ttl = model.DefaultSessionTTL
	}
	now := st.now().UTC()

	s := &model.UploadSession{
		SessionID:           uuid.NewString(),
		ArtifactID:          p.ArtifactID,
		Filename:            p.Filename,
		UploadedBy:          p.UploadedBy,
		DeclaredTotalSize:   p.TotalSize,
		DeclaredTotalChunks: p.TotalChunks,
		ChunkSizeBytes:      p.ChunkSize,
		Chunks:              make(map[int]model.ChunkRecord),
		Status:              model.StatusActive,
		CreatedAt:           now,
		ExpiresAt:           now.Add(ttl),
	}
	if err := s.ValidateGeometry(); err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.entries[s.SessionID]; ok {
		return nil, ErrAlreadyExists
	}
	st.entries[s.SessionID] = &entry{session: s}
	return snapshot(s), nil
}

// Get возвращает снимок сессии. Снимок не связан с ареной: его можно
// читать без блокировок.
func (st *Store) Get(sessionID string) (*model.UploadSession, error) {
	e, err := st.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.session), nil
}

// List возвращает снимки всех сессий. Порядок не определён.
func (st *Store) List() []*model.UploadSession {
	st.mu.RLock()
	entries := make([]*entry, 0, len(st.entries))
	for _, e := range st.entries {
		entries = append(entries, e)
	}
	st.mu.RUnlock()

	out := make([]*model.UploadSession, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, snapshot(e.session))
		e.mu.Unlock()
	}
	return out
}

// RecordChunk фиксирует принятый чанк. Вызывается после того, как
// содержимое уже сохранено во временный файл и дайджест проверен.
// commit выполняется под мьютексом сессии и должен атомарно поместить
// чанк на staged-место (rename).
//
// Идемпотентность: повтор чанка с тем же дайджестом — no-op, commit
// не вызывается и учёт не меняется. Чанк с другим дайджестом замещает
// прежний, BytesReceived корректируется на разницу размеров.
func (st *Store) RecordChunk(sessionID string, rec model.ChunkRecord, commit func() error) (noop bool, err error) {
	e, err := st.lookup(sessionID)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session
	if s.Status != model.StatusActive {
		return false, ErrNotActive
	}

	prev, replaced := s.Chunks[rec.ChunkNumber]
	if replaced && prev.SHA256 == rec.SHA256 {
		return true, nil
	}

	if err := commit(); err != nil {
		return false, err
	}

	if replaced {
		s.BytesReceived += rec.SizeBytes - prev.SizeBytes
	} else {
		s.BytesReceived += rec.SizeBytes
	}
	s.Chunks[rec.ChunkNumber] = rec
	e.addSample(st.now(), rec.SizeBytes)
	return false, nil
}

// Speed возвращает скорость приёма в байтах в секунду, усреднённую
// по скользящему окну. Без замеров в окне возвращает 0.
func (st *Store) Speed(sessionID string) (float64, error) {
	e, err := st.lookup(sessionID)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.trim(st.now())
	var total int64
	for _, sm := range e.samples {
		total += sm.bytes
	}
	if total == 0 {
		return 0, nil
	}
	return float64(total) / speedWindow.Seconds(), nil
}

// Remove удаляет сессию из арены. Вызывается reaper-ом после очистки
// staged-данных.
func (st *Store) Remove(sessionID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.entries, sessionID)
}

// Len возвращает количество сессий в арене.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.entries)
}

// Acquire захватывает мьютекс сессии и возвращает Guard с живым
// указателем. Используется finalize и reaper-ом: пока Guard не
// освобождён, ни один чанк этой сессии не будет принят.
func (st *Store) Acquire(sessionID string) (*Guard, error) {
	e, err := st.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	return &Guard{e: e}, nil
}

func (st *Store) lookup(sessionID string) (*entry, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	e, ok := st.entries[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// Guard — эксклюзивный доступ к сессии. Release обязателен.
type Guard struct {
	e        *entry
	released bool
}

// Session возвращает живой указатель на сессию. Разыменовывать только
// до Release.
func (g *Guard) Session() *model.UploadSession {
	return g.e.session
}

// SetStatus переводит сессию в новый статус, проверяя матрицу
// допустимых переходов.
func (g *Guard) SetStatus(to model.SessionStatus) error {
	from := g.e.session.Status
	if !model.CanTransition(from, to) {
		return fmt.Errorf("недопустимый переход статуса %s -> %s", from, to)
	}
	g.e.session.Status = to
	return nil
}

// Release освобождает мьютекс сессии. Повторный вызов безопасен.
func (g *Guard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.e.mu.Unlock()
}

// addSample добавляет замер и отбрасывает устаревшие.
func (e *entry) addSample(now time.Time, bytes int64) {
	e.samples = append(e.samples, sample{at: now, bytes: bytes})
	e.trim(now)
}

// trim отбрасывает замеры старше окна.
func (e *entry) trim(now time.Time) {
	cutoff := now.Add(-speedWindow)
	i := 0
	for i < len(e.samples) && e.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		e.samples = append(e.samples[:0], e.samples[i:]...)
	}
}

// snapshot возвращает глубокую копию сессии. Result не копируется:
// после заполнения он неизменяем.
func snapshot(s *model.UploadSession) *model.UploadSession {
	cp := *s
	cp.Chunks = make(map[int]model.ChunkRecord, len(s.Chunks))
	for k, v := range s.Chunks {
		cp.Chunks[k] = v
	}
	return &cp
}
