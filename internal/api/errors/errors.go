// Пакет errors — конструкторы стандартных ошибок в формате реестра.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Коды образуют закрытую таксономию ошибок цикла загрузки: клиент
// ветвится по code, не разбирая message.
package errors //nolint:revive // TODO: переименовать пакет errors, конфликт со stdlib

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeValidationError      = "VALIDATION_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeSessionExpired       = "SESSION_EXPIRED"
	CodeChunkOutOfRange      = "CHUNK_OUT_OF_RANGE"
	CodeChunkSizeMismatch    = "CHUNK_SIZE_MISMATCH"
	CodeChecksumMismatch     = "CHECKSUM_MISMATCH"
	CodeFileTooLarge         = "FILE_TOO_LARGE"
	CodeIncompleteUpload     = "INCOMPLETE_UPLOAD"
	CodeIntegrityCheckFailed = "INTEGRITY_CHECK_FAILED"
	CodeInvalidState         = "INVALID_STATE"
	CodeInternalError        = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 сессия или файл не найдены.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// SessionExpired — 410 дедлайн сессии истёк, данные освобождены.
func SessionExpired(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusGone, CodeSessionExpired, message)
}

// ChunkOutOfRange — 422 индекс чанка вне заявленного диапазона.
func ChunkOutOfRange(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnprocessableEntity, CodeChunkOutOfRange, message)
}

// ChunkSizeMismatch — 422 размер чанка не совпадает с ожидаемым.
func ChunkSizeMismatch(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnprocessableEntity, CodeChunkSizeMismatch, message)
}

// ChecksumMismatch — 422 дайджест чанка не совпал с заявленным.
func ChecksumMismatch(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnprocessableEntity, CodeChecksumMismatch, message)
}

// FileTooLarge — 413 превышен лимит размера объекта.
func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

// IncompleteUpload — 409 финализация при недостающих чанках.
func IncompleteUpload(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeIncompleteUpload, message)
}

// IntegrityCheckFailed — 422 дайджест собранного объекта не совпал.
func IntegrityCheckFailed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnprocessableEntity, CodeIntegrityCheckFailed, message)
}

// InvalidState — 409 операция недопустима в текущем статусе сессии.
func InvalidState(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeInvalidState, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
