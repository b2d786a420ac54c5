package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/signalix/loginbroker/internal/model"
)

// maxBodyBytes caps request bodies; every request here is a few short strings
const maxBodyBytes = 1 << 16

// okResponse is the body of operations that only report success
type okResponse struct {
	OK bool `json:"ok"`
}

// decodeJSON reads a JSON request body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// respondJSON sends v as a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

// logMaskedPhone logs a message with masked phone number
func logMaskedPhone(phone, msg string, err error) {
	log.Printf("Phone %s: %s: %v", model.MaskPhone(phone), msg, err)
}
