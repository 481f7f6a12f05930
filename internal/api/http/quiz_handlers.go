package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/classforge/classforge-lms/internal/assessment"
	"github.com/classforge/classforge-lms/internal/rbac"
)

func CreateQuizHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q assessment.Quiz
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		q.ID = ""
		if q.TeacherID == "" {
			q.TeacherID = rbac.SubjectFromContext(r.Context())
		}
		if q.Status == "" {
			q.Status = assessment.QuizDraft
		}
		out, err := store.SaveQuiz(r.Context(), q)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, out)
	}
}

func UpdateQuizHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q assessment.Quiz
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		q.ID = chi.URLParam(r, "quizID")
		out, err := store.SaveQuiz(r.Context(), q)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, out)
	}
}

// POST /quizzes/{quizID}/publish  { "start_time": ..., "end_time": ..., "close": false }
//
// Status transitions are a separate permission from content authoring so a
// department head can go live without edit rights.
func PublishQuizHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			StartTime *time.Time `json:"start_time"`
			EndTime   *time.Time `json:"end_time"`
			Close     bool       `json:"close"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		q, err := store.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		q.Questions = nil
		if req.Close {
			q.Status = assessment.QuizClosed
		} else {
			q.Status = assessment.QuizPublished
		}
		if req.StartTime != nil {
			q.StartTime = req.StartTime
		}
		if req.EndTime != nil {
			q.EndTime = req.EndTime
		}
		out, err := store.SaveQuiz(r.Context(), q)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, out)
	}
}

func GetQuizHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := store.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		role := rbac.RoleFromContext(r.Context())
		if role != "admin" && role != "teacher" {
			redactQuiz(&q)
		}
		writeJSON(w, q)
	}
}

// redactQuiz strips everything that would reveal the answer key from the
// student-facing view.
func redactQuiz(q *assessment.Quiz) {
	for i := range q.Questions {
		qq := &q.Questions[i]
		qq.AnswerKeys = nil
		qq.Explanation = ""
		for j := range qq.Choices {
			qq.Choices[j].IsCorrect = false
		}
	}
}

func AuthorQuestionHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q assessment.Question
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		q.QuizID = chi.URLParam(r, "quizID")
		out, err := store.AuthorQuestion(r.Context(), q)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, out)
	}
}

func AuthorChoiceHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c assessment.Choice
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		c.QuestionID = chi.URLParam(r, "questionID")
		out, err := store.AuthorChoice(r.Context(), c)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, out)
	}
}

func AuthorAnswerKeyHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var k assessment.ShortAnswerKey
		if err := json.NewDecoder(r.Body).Decode(&k); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		k.QuestionID = chi.URLParam(r, "questionID")
		out, err := store.AuthorAnswerKey(r.Context(), k)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, out)
	}
}
