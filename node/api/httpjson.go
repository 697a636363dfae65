// Package api implements the wire servers for the coordinator and the
// worker: thin httprouter handlers that decode a request, call into the
// corresponding package, and serialize the result as JSON.
package api

import (
	"encoding/json"
	"net/http"
)

// Error is the JSON error envelope returned by every handler on failure.
type Error struct {
	Message string `json:"message"`
}

func (e Error) Error() string { return e.Message }

// WriteJSON marshals obj as the response body with a 200 status and the
// standard JSON content type.
func WriteJSON(w http.ResponseWriter, obj interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(obj)
}

// WriteError writes an Error envelope with the given HTTP status code.
func WriteError(w http.ResponseWriter, err Error, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(err)
}
