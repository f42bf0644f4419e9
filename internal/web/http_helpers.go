package web

import (
	"encoding/json"
	"net/http"
)

// Client-facing error messages. Details stay in the logs.
const (
	msgInvalidCredentials = "Invalid username or password"
	msgInternalError      = "Internal server error. Please try again later."
	msgTooManyAttempts    = "Too many failed login attempts. Please try again later."
	msgMethodNotAllowed   = "Method not allowed"
)

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErrorJSON writes {"error": message}.
func writeErrorJSON(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// methodNotAllowed writes a JSON 405 listing the accepted methods.
func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeErrorJSON(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
}
