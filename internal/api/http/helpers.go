package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/classforge/classforge-lms/internal/assessment"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps the engine's error taxonomy onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case assessment.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case assessment.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case assessment.IsConflict(err):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
