package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/modelreg/upload-module/internal/domain/model"
)

// fileColumns — список столбцов таблицы uploaded_files для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const fileColumns = `file_id, artifact_id, filename, size_bytes, sha256_checksum,
	md5_checksum, version, download_location, uploaded_by, uploaded_at`

// pgFileRegistry — реализация FileRegistry через pgx.
type pgFileRegistry struct {
	db DBTX
}

// NewPostgres создаёт реестр файлов поверх PostgreSQL.
func NewPostgres(db DBTX) FileRegistry {
	return &pgFileRegistry{db: db}
}

// Insert регистрирует файл. Версия назначается в том же запросе:
// MAX(version)+1 в рамках артефакта, без гонки между параллельными
// финализациями.
func (r *pgFileRegistry) Insert(ctx context.Context, f *model.FinalizedFile) error {
	if f.Version != 0 {
		query := fmt.Sprintf(`INSERT INTO uploaded_files (%s)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, fileColumns)
		_, err := r.db.Exec(ctx, query,
			f.FileID, f.ArtifactID, f.Filename, f.SizeBytes, f.SHA256,
			f.MD5, f.Version, f.DownloadLocation, f.UploadedBy, f.UploadedAt,
		)
		if err != nil {
			return fmt.Errorf("ошибка регистрации файла: %w", err)
		}
		return nil
	}

	query := fmt.Sprintf(`INSERT INTO uploaded_files (%s)
		SELECT $1, $2, $3, $4, $5, $6,
			COALESCE(MAX(version), 0) + 1, $7, $8, $9
		FROM uploaded_files WHERE artifact_id = $2
		RETURNING version`, fileColumns)
	err := r.db.QueryRow(ctx, query,
		f.FileID, f.ArtifactID, f.Filename, f.SizeBytes, f.SHA256,
		f.MD5, f.DownloadLocation, f.UploadedBy, f.UploadedAt,
	).Scan(&f.Version)
	if err != nil {
		return fmt.Errorf("ошибка регистрации файла: %w", err)
	}
	return nil
}

// GetByID возвращает файл по UUID или ErrNotFound.
func (r *pgFileRegistry) GetByID(ctx context.Context, fileID string) (*model.FinalizedFile, error) {
	query := fmt.Sprintf(`SELECT %s FROM uploaded_files WHERE file_id = $1`, fileColumns)
	f, err := scanFile(r.db.QueryRow(ctx, query, fileID))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения файла %s: %w", fileID, err)
	}
	return f, nil
}

// FindBySHA256 возвращает самый ранний файл с данным дайджестом.
// Ранний, а не последний: дедупликация всегда указывает на одну и
// ту же каноническую запись.
func (r *pgFileRegistry) FindBySHA256(ctx context.Context, sha256 string) (*model.FinalizedFile, error) {
	query := fmt.Sprintf(`SELECT %s FROM uploaded_files
		WHERE sha256_checksum = $1 ORDER BY uploaded_at ASC LIMIT 1`, fileColumns)
	f, err := scanFile(r.db.QueryRow(ctx, query, sha256))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска по дайджесту: %w", err)
	}
	return f, nil
}

// ListByArtifact возвращает файлы артефакта, новые версии первыми.
func (r *pgFileRegistry) ListByArtifact(ctx context.Context, artifactID string) ([]*model.FinalizedFile, error) {
	query := fmt.Sprintf(`SELECT %s FROM uploaded_files
		WHERE artifact_id = $1 ORDER BY version DESC`, fileColumns)

	rows, err := r.db.Query(ctx, query, artifactID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения файлов артефакта %s: %w", artifactID, err)
	}
	defer rows.Close()

	var out []*model.FinalizedFile
	for rows.Next() {
		f := &model.FinalizedFile{}
		if err := rows.Scan(
			&f.FileID, &f.ArtifactID, &f.Filename, &f.SizeBytes, &f.SHA256,
			&f.MD5, &f.Version, &f.DownloadLocation, &f.UploadedBy, &f.UploadedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка обхода результатов: %w", err)
	}
	return out, nil
}

// scanFile читает одну строку в FinalizedFile, маппит pgx.ErrNoRows
// на ErrNotFound.
func scanFile(row pgx.Row) (*model.FinalizedFile, error) {
	f := &model.FinalizedFile{}
	err := row.Scan(
		&f.FileID, &f.ArtifactID, &f.Filename, &f.SizeBytes, &f.SHA256,
		&f.MD5, &f.Version, &f.DownloadLocation, &f.UploadedBy, &f.UploadedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}
