// files.go — обработчики проверок файлов: дубликаты и конвейер валидации.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	apierrors "github.com/bigkaa/modelreg/upload-module/internal/api/errors"
	"github.com/bigkaa/modelreg/upload-module/internal/api/generated"
	"github.com/bigkaa/modelreg/upload-module/internal/service"
	"github.com/bigkaa/modelreg/upload-module/internal/validation"
)

// validateHeadBytes — сколько байт файла читается для проверки
// сигнатуры и эвристического сканера.
const validateHeadBytes = 10000

// CheckDuplicate — POST /api/v1/files/check-duplicate.
// Ищет зарегистрированный файл с указанным SHA-256.
func (h *APIHandler) CheckDuplicate(w http.ResponseWriter, r *http.Request) {
	var req generated.CheckDuplicateJSONRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Невалидный JSON в теле запроса: "+err.Error())
		return
	}

	existing, ue := h.upload.CheckDuplicate(r.Context(), req.Sha256Checksum)
	if ue != nil {
		writeServiceError(w, ue)
		return
	}

	resp := generated.CheckDuplicateResponse{Duplicate: existing != nil}
	if existing != nil {
		view := fileView(existing)
		resp.File = &view
	}

	writeJSON(w, http.StatusOK, resp)
}

// ValidateFile — POST /api/v1/files/validate.
// Прогоняет файл через полный конвейер проверок без создания сессии.
// Файл стримится: в память читаются только первые байты для проверки
// сигнатуры, остальное учитывается лишь в размере.
func (h *APIHandler) ValidateFile(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		apierrors.ValidationError(w, "Ожидается multipart/form-data с полем file")
		return
	}

	var (
		filename     string
		contentType  string
		artifactType string
		head         []byte
		size         int64
		found        bool
	)

	for {
		part, partErr := mr.NextPart()
		if partErr == io.EOF {
			break
		}
		if partErr != nil {
			apierrors.ValidationError(w, "Ошибка чтения multipart-тела: "+partErr.Error())
			return
		}

		switch part.FormName() {
		case "file":
			found = true
			filename = part.FileName()
			contentType = part.Header.Get("Content-Type")

			head = make([]byte, validateHeadBytes)
			n, readErr := io.ReadFull(part, head)
			if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
				apierrors.ValidationError(w, "Ошибка чтения файла: "+readErr.Error())
				return
			}
			head = head[:n]

			rest, copyErr := io.Copy(io.Discard, part)
			if copyErr != nil {
				apierrors.ValidationError(w, "Ошибка чтения файла: "+copyErr.Error())
				return
			}
			size = int64(n) + rest

		case "artifact_type":
			buf, readErr := io.ReadAll(io.LimitReader(part, 64))
			if readErr == nil {
				artifactType = string(buf)
			}
		}
		_ = part.Close()
	}

	if !found {
		apierrors.ValidationError(w, "Отсутствует multipart-поле file")
		return
	}

	report := h.upload.ValidateFile(r.Context(), service.ValidateParams{
		Filename:     filename,
		ContentType:  contentType,
		ArtifactType: artifactType,
		SizeBytes:    size,
		Head:         head,
	})

	writeJSON(w, http.StatusOK, reportView(report))
}

// reportView конвертирует отчёт конвейера проверок в API-тип.
func reportView(report *validation.Report) generated.ValidationReport {
	resp := generated.ValidationReport{
		OverallStatus: generated.ValidationReportOverallStatus(report.Status()),
		Results:       make([]generated.ValidationCheckResult, 0, len(report.Results)),
	}
	for _, res := range report.Results {
		item := generated.ValidationCheckResult{
			Check:  res.Check,
			Ok:     res.OK,
			Reason: strPtr(res.Reason),
		}
		if res.Warning {
			warning := true
			item.Warning = &warning
		}
		if len(res.Details) > 0 {
			details := res.Details
			item.Details = &details
		}
		resp.Results = append(resp.Results, item)
	}
	return resp
}
