package service

import (
	"context"
	"log/slog"

	apierrors "github.com/bigkaa/modelreg/upload-module/internal/api/errors"
	"github.com/bigkaa/modelreg/upload-module/internal/domain/model"
	"github.com/bigkaa/modelreg/upload-module/internal/hash"
	"github.com/bigkaa/modelreg/upload-module/internal/repository"
	"github.com/bigkaa/modelreg/upload-module/internal/validation"
)

// CheckDuplicate ищет зарегистрированный файл с указанным SHA-256.
// Возвращает nil, если дубликата нет.
func (s *UploadService) CheckDuplicate(ctx context.Context, sha256 string) (*model.FinalizedFile, *UploadError) {
	if !hash.IsValidSHA256Hex(sha256) {
		return nil, &UploadError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "SHA-256 должен быть 64-символьной hex-строкой",
		}
	}

	existing, err := s.files.FindBySHA256(ctx, sha256)
	if err == repository.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("Ошибка поиска дубликата",
			slog.String("sha256", sha256),
			slog.String("error", err.Error()),
		)
		return nil, internalError("Ошибка обращения к реестру файлов")
	}
	return existing, nil
}

// ValidateParams — параметры предварительной проверки файла.
type ValidateParams struct {
	Filename     string
	ContentType  string
	ArtifactType string
	SizeBytes    int64
	// Head — первые байты файла для проверки сигнатуры и сканера.
	// Может быть пустым: соответствующие проверки станут
	// информационными.
	Head []byte
}

// ValidateFile прогоняет файл через полный конвейер проверок и
// возвращает отчёт по всем проверкам. Сессию не создаёт.
func (s *UploadService) ValidateFile(ctx context.Context, p ValidateParams) *validation.Report {
	report := s.checks.RunAll(&validation.Candidate{
		Filename:     p.Filename,
		ContentType:  p.ContentType,
		ArtifactType: p.ArtifactType,
		SizeBytes:    p.SizeBytes,
		Head:         p.Head,
	})
	if !report.AllPassed {
		if f := report.FirstFailure(); f != nil {
			s.logger.Info("Файл не прошёл проверку",
				slog.String("filename", p.Filename),
				slog.String("check", f.Check),
				slog.String("reason", f.Reason),
			)
		}
	}
	return report
}

// GetFile возвращает зарегистрированный файл по идентификатору.
func (s *UploadService) GetFile(ctx context.Context, fileID string) (*model.FinalizedFile, *UploadError) {
	f, err := s.files.GetByID(ctx, fileID)
	if err == repository.ErrNotFound {
		return nil, &UploadError{
			StatusCode: 404,
			Code:       apierrors.CodeNotFound,
			Message:    "Файл " + fileID + " не найден",
		}
	}
	if err != nil {
		s.logger.Error("Ошибка чтения файла из реестра",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, internalError("Ошибка обращения к реестру файлов")
	}
	return f, nil
}

// ListArtifactFiles возвращает все версии файлов артефакта,
// новые версии первыми.
func (s *UploadService) ListArtifactFiles(ctx context.Context, artifactID string) ([]*model.FinalizedFile, *UploadError) {
	files, err := s.files.ListByArtifact(ctx, artifactID)
	if err != nil {
		s.logger.Error("Ошибка чтения файлов артефакта",
			slog.String("artifact_id", artifactID),
			slog.String("error", err.Error()),
		)
		return nil, internalError("Ошибка обращения к реестру файлов")
	}
	return files, nil
}
