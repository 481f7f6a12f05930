package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/classforge/classforge-lms/internal/assessment"
	"github.com/classforge/classforge-lms/internal/rbac"
)

func StartAttemptHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuizID string `json:"quiz_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.QuizID == "" {
			http.Error(w, "quiz_id required", http.StatusBadRequest)
			return
		}
		a, err := store.StartAttempt(r.Context(), req.QuizID, rbac.SubjectFromContext(r.Context()))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, a)
	}
}

// loadOwned fetches the attempt and enforces that students only touch their
// own attempts. Teachers and admins pass through.
func loadOwned(store assessment.Store, w http.ResponseWriter, r *http.Request) (assessment.Attempt, bool) {
	a, err := store.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeErr(w, err)
		return assessment.Attempt{}, false
	}
	role := rbac.RoleFromContext(r.Context())
	if role != "admin" && role != "teacher" && a.StudentID != rbac.SubjectFromContext(r.Context()) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return assessment.Attempt{}, false
	}
	return a, true
}

func RecordAnswerHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadOwned(store, w, r)
		if !ok {
			return
		}
		var req struct {
			ChoiceID  *string  `json:"choice_id"`
			ChoiceIDs []string `json:"choice_ids"`
			Text      *string  `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		var resp assessment.Response
		switch {
		case req.Text != nil:
			resp = assessment.TextAnswer{Text: *req.Text}
		case req.ChoiceID != nil:
			resp = assessment.SelectedChoice{ChoiceID: *req.ChoiceID}
		default:
			resp = assessment.SelectedChoices{ChoiceIDs: req.ChoiceIDs}
		}
		ans, err := store.RecordAnswer(r.Context(), a.ID, chi.URLParam(r, "questionID"), resp)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, ans)
	}
}

func SubmitAttemptHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadOwned(store, w, r)
		if !ok {
			return
		}
		out, err := store.SubmitAttempt(r.Context(), a.ID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, out)
	}
}

func GetAttemptHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadOwned(store, w, r)
		if !ok {
			return
		}
		writeJSON(w, a)
	}
}

func GetAttemptAnswersHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadOwned(store, w, r)
		if !ok {
			return
		}
		answers, err := store.GetAnswers(r.Context(), a.ID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, answers)
	}
}

// GET /attempts?quiz_id=...&student_id=...&status=...&limit=50&offset=0
//
// Callers with attempt:view-all may filter freely; everyone else is scoped
// to their own attempts regardless of the student_id filter.
func ListAttemptsHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := rbac.RoleFromContext(r.Context())
		if role == "" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		studentID := strings.TrimSpace(r.URL.Query().Get("student_id"))
		if role != "admin" && role != "teacher" {
			studentID = rbac.SubjectFromContext(r.Context())
		}
		list, err := store.ListAttempts(r.Context(), assessment.AttemptListOpts{
			QuizID:    strings.TrimSpace(r.URL.Query().Get("quiz_id")),
			StudentID: studentID,
			Status:    strings.TrimSpace(r.URL.Query().Get("status")),
			Limit:     parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset:    parseIntDefault(r.URL.Query().Get("offset"), 0),
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, list)
	}
}

func GradeAttemptHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := store.GradeAll(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, a)
	}
}

func GradeAnswerHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ans, err := store.GradeAnswer(r.Context(), chi.URLParam(r, "attemptID"), chi.URLParam(r, "questionID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, ans)
	}
}

func RecomputeAttemptHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := store.RecomputeAttempt(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, a)
	}
}
