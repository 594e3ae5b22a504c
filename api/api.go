// Пакет api содержит встроенную OpenAPI-спецификацию Upload Module.
package api

import _ "embed"

// OpenAPISpec — исходный текст api/openapi.yaml, встроенный в бинарник.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
