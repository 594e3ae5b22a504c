// Пакет repository — слой доступа к реестру собранных файлов.
// Реестр отвечает на два вопроса: какие файлы зарегистрированы у
// артефакта и существует ли уже файл с данным SHA-256 (дедупликация).
// Все запросы — чистый SQL через pgx, без ORM; для работы без
// PostgreSQL есть реализация в памяти.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/modelreg/upload-module/internal/domain/model"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// FileRegistry — реестр собранных файлов.
type FileRegistry interface {
	// Insert регистрирует файл. Если f.Version == 0, версия
	// назначается автоматически: следующая монотонная в рамках
	// артефакта. Назначенная версия записывается в f.Version.
	Insert(ctx context.Context, f *model.FinalizedFile) error
	// GetByID возвращает файл по UUID или ErrNotFound.
	GetByID(ctx context.Context, fileID string) (*model.FinalizedFile, error)
	// FindBySHA256 возвращает файл с данным дайджестом или ErrNotFound.
	// Используется дедупликацией и проверкой дубликатов до загрузки.
	FindBySHA256(ctx context.Context, sha256 string) (*model.FinalizedFile, error)
	// ListByArtifact возвращает файлы артефакта, новые версии первыми.
	ListByArtifact(ctx context.Context, artifactID string) ([]*model.FinalizedFile, error)
}
