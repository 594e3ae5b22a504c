// spec.go — обработчик GET /api/v1/openapi.json.
// Встроенная openapi.yaml валидируется при старте и отдаётся клиентам
// в формате JSON.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/bigkaa/modelreg/upload-module/api"
)

// SpecHandler — обработчик OpenAPI-спецификации.
type SpecHandler struct {
	specJSON []byte
}

// NewSpecHandler парсит встроенную спецификацию и готовит её
// JSON-представление. Ошибка парсинга означает дефект сборки.
func NewSpecHandler() (*SpecHandler, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(api.OpenAPISpec)
	if err != nil {
		return nil, fmt.Errorf("парсинг openapi.yaml: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("валидация openapi.yaml: %w", err)
	}

	specJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("сериализация спецификации: %w", err)
	}

	return &SpecHandler{specJSON: specJSON}, nil
}

// GetOpenapiSpec отдаёт спецификацию в формате JSON.
func (h *SpecHandler) GetOpenapiSpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.specJSON)
}
