package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

// envelope is the generic response wrapper.
// All JSON endpoints reply {data: T, success: bool}; callers unwrap data.
type envelope struct {
	Data    any  `json:"data"`
	Success bool `json:"success"`
}

// errorResponse is the body for failed requests.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// sendData writes a success envelope with the given status code.
func sendData(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data, Success: true})
}

// sendError writes an error response with a machine-readable code.
func sendError(w http.ResponseWriter, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Success: false, Error: message, Code: code})
}

// decodeJSON decodes the request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// getClientIP returns the client IP respecting reverse proxy headers
func getClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if i := strings.IndexByte(ip, ','); i >= 0 {
			return strings.TrimSpace(ip[:i])
		}
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
