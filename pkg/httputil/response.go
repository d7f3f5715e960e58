package httputil

import (
	"encoding/json"
	"log"
	"net/http"

	"finstack-backend/internal/models"
)

// RespondJSON writes payload as JSON with the given status code.
func RespondJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are already out; nothing left to tell the client.
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// RespondError writes {"error": message} with the given status code.
func RespondError(w http.ResponseWriter, statusCode int, message string) {
	RespondJSON(w, statusCode, models.ErrorResponse{Error: message})
}

// RespondStatus writes the {"status", "message"/"error"} envelope the chat widget expects.
func RespondStatus(w http.ResponseWriter, statusCode int, status, message string) {
	resp := models.StatusResponse{Status: status}
	if statusCode >= http.StatusBadRequest {
		resp.Error = message
	} else {
		resp.Message = message
	}
	RespondJSON(w, statusCode, resp)
}
