package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/bigkaa/modelreg/upload-module/internal/domain/model"
)

// memFileRegistry — реестр файлов в памяти. Используется в тестах и
// при работе без PostgreSQL (UM_DB_HOST не задан).
type memFileRegistry struct {
	mu    sync.RWMutex
	byID  map[string]*model.FinalizedFile
	order []string // порядок регистрации, для FindBySHA256
}

// NewMemory создаёт реестр файлов в памяти.
func NewMemory() FileRegistry {
	return &memFileRegistry{byID: make(map[string]*model.FinalizedFile)}
}

// Insert регистрирует файл, назначая версию при f.Version == 0.
func (r *memFileRegistry) Insert(_ context.Context, f *model.FinalizedFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f.Version == 0 {
		max := 0
		for _, existing := range r.byID {
			if existing.ArtifactID == f.ArtifactID && existing.Version > max {
				max = existing.Version
			}
		}
		f.Version = max + 1
	}

	cp := *f
	r.byID[f.FileID] = &cp
	r.order = append(r.order, f.FileID)
	return nil
}

// GetByID возвращает файл по UUID или ErrNotFound.
func (r *memFileRegistry) GetByID(_ context.Context, fileID string) (*model.FinalizedFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.byID[fileID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

// FindBySHA256 возвращает самый ранний файл с данным дайджестом.
func (r *memFileRegistry) FindBySHA256(_ context.Context, sha256 string) (*model.FinalizedFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if f := r.byID[id]; f != nil && f.SHA256 == sha256 {
			cp := *f
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ListByArtifact возвращает файлы артефакта, новые версии первыми.
func (r *memFileRegistry) ListByArtifact(_ context.Context, artifactID string) ([]*model.FinalizedFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.FinalizedFile
	for _, f := range r.byID {
		if f.ArtifactID == artifactID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}
