// Package responses escreve os documentos JSON devolvidos pela API do relay.
package responses

import (
	"bytes"
	"encoding/json"
	"net/http"
)

const contentTypeJSON = "application/json"

// fallbackBody é enviado quando o payload não pode ser serializado.
var fallbackBody = []byte(`{"error":"internal server error"}` + "\n")

// JSON serializa data antes de escrever qualquer byte, de modo que uma falha
// de serialização ainda produz um 500 completo em vez de um corpo truncado.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(fallbackBody)
		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// Error escreve {"error": message}.
func Error(w http.ResponseWriter, statusCode int, message string) {
	JSON(w, statusCode, struct {
		Error string `json:"error"`
	}{
		Error: message,
	})
}

// ErrorWithDetails escreve {"error": message, "details": details}.
// Útil para erros de validação que precisam de contexto adicional.
func ErrorWithDetails(w http.ResponseWriter, statusCode int, message string, details any) {
	JSON(w, statusCode, struct {
		Error   string `json:"error"`
		Details any    `json:"details,omitempty"`
	}{
		Error:   message,
		Details: details,
	})
}
