// uploads.go — обработчики chunked-загрузки: init, chunk, finalize,
// progress, abort, list.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	apierrors "github.com/bigkaa/modelreg/upload-module/internal/api/errors"
	"github.com/bigkaa/modelreg/upload-module/internal/api/generated"
	"github.com/bigkaa/modelreg/upload-module/internal/api/middleware"
	"github.com/bigkaa/modelreg/upload-module/internal/domain/model"
	"github.com/bigkaa/modelreg/upload-module/internal/service"
)

// InitUpload — POST /api/v1/uploads.
// Создаёт upload-сессию. Владелец сессии берётся из sub JWT.
func (h *APIHandler) InitUpload(w http.ResponseWriter, r *http.Request) {
	var req generated.InitUploadJSONRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Невалидный JSON в теле запроса: "+err.Error())
		return
	}

	p := service.InitParams{
		ArtifactID:  req.ArtifactId,
		Filename:    req.Filename,
		TotalSize:   req.TotalSize,
		TotalChunks: req.TotalChunks,
		ChunkSize:   req.ChunkSize,
		UploadedBy:  middleware.SubjectFromContext(r.Context()),
	}
	if req.ContentType != nil {
		p.ContentType = *req.ContentType
	}
	if req.ArtifactType != nil {
		p.ArtifactType = *req.ArtifactType
	}

	sess, ue := h.upload.InitSession(r.Context(), p)
	if ue != nil {
		writeServiceError(w, ue)
		return
	}

	writeJSON(w, http.StatusCreated, sessionView(sess))
}

// ListUploads — GET /api/v1/uploads.
// Список сессий с фильтром по статусу и пагинацией, новые первыми.
func (h *APIHandler) ListUploads(w http.ResponseWriter, r *http.Request, params generated.ListUploadsParams) {
	sessions := h.upload.ListSessions(r.Context())

	if params.Status != nil {
		want := model.SessionStatus(*params.Status)
		filtered := sessions[:0]
		for _, s := range sessions {
			if s.Status == want {
				filtered = append(filtered, s)
			}
		}
		sessions = filtered
	}

	total := len(sessions)
	limit, offset := paginationDefaults(params.Limit, params.Offset)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := sessions[offset:end]

	resp := generated.UploadSessionList{
		Sessions: make([]generated.UploadSession, 0, len(page)),
		Total:    total,
	}
	for _, s := range page {
		resp.Sessions = append(resp.Sessions, sessionView(s))
	}

	writeJSON(w, http.StatusOK, resp)
}

// AbortUpload — DELETE /api/v1/uploads/{session_id}.
func (h *APIHandler) AbortUpload(w http.ResponseWriter, r *http.Request, sessionId generated.SessionId) { //nolint:revive // имя из сгенерированного интерфейса oapi-codegen
	if ue := h.upload.Abort(r.Context(), sessionId.String()); ue != nil {
		writeServiceError(w, ue)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadChunk — POST /api/v1/uploads/{session_id}/chunks.
// Содержимое чанка передаётся multipart-полем chunk и стримится
// в staging без буферизации в памяти.
func (h *APIHandler) UploadChunk(w http.ResponseWriter, r *http.Request, sessionId generated.SessionId, params generated.UploadChunkParams) { //nolint:revive // имя из сгенерированного интерфейса oapi-codegen
	// Защита от тел, заведомо превышающих максимальный размер чанка
	r.Body = http.MaxBytesReader(w, r.Body, model.MaxChunkSize+1024*1024)

	mr, err := r.MultipartReader()
	if err != nil {
		apierrors.ValidationError(w, "Ожидается multipart/form-data с полем chunk")
		return
	}

	var chunkPart io.Reader
	for {
		part, partErr := mr.NextPart()
		if partErr == io.EOF {
			break
		}
		if partErr != nil {
			apierrors.ValidationError(w, "Ошибка чтения multipart-тела: "+partErr.Error())
			return
		}
		if part.FormName() == "chunk" {
			chunkPart = part
			break
		}
		_ = part.Close()
	}
	if chunkPart == nil {
		apierrors.ValidationError(w, "Отсутствует multipart-поле chunk")
		return
	}

	res, ue := h.upload.AcceptChunk(r.Context(), service.ChunkParams{
		SessionID:      sessionId.String(),
		ChunkNumber:    params.ChunkNumber,
		DeclaredSHA256: params.ChunkHash,
		Reader:         chunkPart,
	})
	if ue != nil {
		writeServiceError(w, ue)
		return
	}

	writeJSON(w, http.StatusAccepted, generated.ChunkAccepted{
		SessionId:      sessionId,
		ChunkNumber:    params.ChunkNumber,
		Retried:        res.Retried,
		BytesReceived:  res.Session.BytesReceived,
		ReceivedChunks: len(res.Session.Chunks),
		TotalChunks:    res.Session.DeclaredTotalChunks,
	})
}

// FinalizeUpload — POST /api/v1/uploads/{session_id}/finalize.
func (h *APIHandler) FinalizeUpload(w http.ResponseWriter, r *http.Request, sessionId generated.SessionId) { //nolint:revive // имя из сгенерированного интерфейса oapi-codegen
	var req generated.FinalizeUploadJSONRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Невалидный JSON в теле запроса: "+err.Error())
		return
	}

	result, ue := h.upload.Finalize(r.Context(), service.FinalizeParams{
		SessionID:      sessionId.String(),
		DeclaredSHA256: req.FinalSha256,
	})
	if ue != nil {
		writeServiceError(w, ue)
		return
	}

	writeJSON(w, http.StatusOK, fileView(result))
}

// GetUploadProgress — GET /api/v1/uploads/{session_id}/progress.
func (h *APIHandler) GetUploadProgress(w http.ResponseWriter, r *http.Request, sessionId generated.SessionId) { //nolint:revive // имя из сгенерированного интерфейса oapi-codegen
	info, ue := h.upload.Progress(r.Context(), sessionId.String())
	if ue != nil {
		writeServiceError(w, ue)
		return
	}

	sess := info.Session
	resp := generated.UploadProgress{
		SessionId:       sessionId,
		Status:          string(sess.Status),
		PercentComplete: info.PercentComplete,
		BytesReceived:   sess.BytesReceived,
		BytesRemaining:  info.BytesRemaining,
		TotalSize:       sess.DeclaredTotalSize,
		ReceivedChunks:  len(sess.Chunks),
		TotalChunks:     sess.DeclaredTotalChunks,
		SpeedBps:        info.SpeedBPS,
		SpeedMbps:       info.SpeedBPS / 1e6,
		EtaSeconds:      info.ETASeconds,
	}
	if len(info.MissingChunks) > 0 {
		resp.MissingChunks = &info.MissingChunks
	}

	writeJSON(w, http.StatusOK, resp)
}
