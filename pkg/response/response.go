package response

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON body written for failed requests.
type ErrorBody struct {
	Error string `json:"error"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// OK writes a 200 response.
func OK(w http.ResponseWriter, v interface{}) error {
	return JSON(w, http.StatusOK, v)
}

// Error writes {"error": message} with the given status code.
func Error(w http.ResponseWriter, status int, message string) error {
	return JSON(w, status, ErrorBody{Error: message})
}

// BadRequest writes a 400 error response.
func BadRequest(w http.ResponseWriter, message string) error {
	return Error(w, http.StatusBadRequest, message)
}
