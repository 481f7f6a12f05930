package http

import (
	"net/http"
	"strconv"

	"github.com/classforge/classforge-lms/internal/eventlog"
)

// GET /events?after=0&limit=100
//
// Admin-only tail of the lifecycle event log, for result caches and
// gradebook exports to poll.
func TailEventsHandler(repo *eventlog.Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		limit := parseIntDefault(r.URL.Query().Get("limit"), 100)
		events, err := repo.Tail(r.Context(), after, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, events)
	}
}
