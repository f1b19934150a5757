// Package api provides HTTP handlers for the promptlab API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ashureev/promptlab/internal/identity"
)

const maxRequestBodySize = 64 << 10

// Envelope is the response body of every API endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"success":false,"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Success writes {success:true,result}.
func Success(w http.ResponseWriter, result any) {
	JSON(w, http.StatusOK, Envelope{Success: true, Result: result})
}

// Error writes {success:false,error}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Envelope{Success: false, Error: message})
}

// decodeJSON reads a bounded JSON body into v and writes the error response
// itself when decoding fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// requireText rejects a missing text field, and a blank one unless
// allowBlank is set. It writes the 400 itself.
func requireText(w http.ResponseWriter, text *string, allowBlank bool) (string, bool) {
	if text == nil || (!allowBlank && strings.TrimSpace(*text) == "") {
		Error(w, http.StatusBadRequest, "Text is required")
		return "", false
	}
	return *text, true
}

// sessionKey prefers an explicit, well-formed session id from the body and
// otherwise uses the caller's device-scoped tab session.
func sessionKey(r *http.Request, explicit string) string {
	if explicit != "" && identity.ValidSessionID(explicit) {
		return explicit
	}
	return identity.FromContext(r.Context()).SessionKey()
}
