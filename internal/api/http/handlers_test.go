package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	api "github.com/classforge/classforge-lms/internal/api/http"
	"github.com/classforge/classforge-lms/internal/assessment"
	"github.com/classforge/classforge-lms/internal/rbac"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

// newRouter wires the handlers under test with an identity injected straight
// into the context, standing in for the JWT middleware.
func newRouter(store assessment.Store, sub, role string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := rbac.WithSubject(req.Context(), sub)
			ctx = rbac.WithRole(ctx, role)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Get("/quizzes/{quizID}", api.GetQuizHandler(store))
	r.Post("/attempts", api.StartAttemptHandler(store))
	r.Put("/attempts/{attemptID}/answers/{questionID}", api.RecordAnswerHandler(store))
	r.Post("/attempts/{attemptID}/submit", api.SubmitAttemptHandler(store))
	return r
}

func publishedQuiz(t *testing.T, st *assessment.MemoryStore) (assessment.Quiz, assessment.Question, assessment.Choice) {
	t.Helper()
	ctx := context.Background()
	quiz, err := st.SaveQuiz(ctx, assessment.Quiz{
		OfferingID: "off-1", TeacherID: "teach-1", Title: "HTTP quiz",
		Status: assessment.QuizDraft, MaxAttempts: 1,
	})
	if err != nil {
		t.Fatalf("save quiz: %v", err)
	}
	q, err := st.AuthorQuestion(ctx, assessment.Question{
		QuizID: quiz.ID, Type: assessment.SingleChoice, Prompt: "p", Marks: 5,
		Explanation: "because",
	})
	if err != nil {
		t.Fatalf("author question: %v", err)
	}
	c, err := st.AuthorChoice(ctx, assessment.Choice{QuestionID: q.ID, Label: "A", IsCorrect: true})
	if err != nil {
		t.Fatalf("author choice: %v", err)
	}

	quiz.Status = assessment.QuizPublished
	start, end := testNow.Add(-time.Hour), testNow.Add(time.Hour)
	quiz.StartTime, quiz.EndTime = &start, &end
	if quiz, err = st.SaveQuiz(ctx, quiz); err != nil {
		t.Fatalf("publish: %v", err)
	}
	return quiz, q, c
}

func TestGetQuizRedactsForStudents(t *testing.T) {
	st := assessment.NewMemoryStore(nil, testClock)
	quiz, _, _ := publishedQuiz(t, st)

	get := func(role string) assessment.Quiz {
		t.Helper()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/quizzes/"+quiz.ID, nil)
		newRouter(st, "u1", role).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d: %s", rec.Code, rec.Body)
		}
		var out assessment.Quiz
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return out
	}

	teacherView := get("teacher")
	if !teacherView.Questions[0].Choices[0].IsCorrect || teacherView.Questions[0].Explanation == "" {
		t.Fatalf("teacher view should keep the key")
	}

	studentView := get("student")
	if studentView.Questions[0].Choices[0].IsCorrect {
		t.Fatalf("student view leaked is_correct")
	}
	if studentView.Questions[0].Explanation != "" || studentView.Questions[0].AnswerKeys != nil {
		t.Fatalf("student view leaked explanation or keys")
	}
}

func TestGetQuizNotFound(t *testing.T) {
	st := assessment.NewMemoryStore(nil, testClock)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/quizzes/nope", nil)
	newRouter(st, "u1", "teacher").ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAttemptFlowOverHTTP(t *testing.T) {
	st := assessment.NewMemoryStore(nil, testClock)
	quiz, q, c := publishedQuiz(t, st)
	r := newRouter(st, "stu-1", "student")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/attempts",
		strings.NewReader(`{"quiz_id":"`+quiz.ID+`"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("start attempt: %d %s", rec.Code, rec.Body)
	}
	var a assessment.Attempt
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.StudentID != "stu-1" {
		t.Fatalf("attempt owner = %q, want the token subject", a.StudentID)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("PUT", "/attempts/"+a.ID+"/answers/"+q.ID,
		strings.NewReader(`{"choice_id":"`+c.ID+`"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("record answer: %d %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/attempts/"+a.ID+"/submit", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body)
	}
	var graded assessment.Attempt
	if err := json.Unmarshal(rec.Body.Bytes(), &graded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if graded.Status != assessment.AttemptGraded || graded.MarksObtained == nil || *graded.MarksObtained != 5 {
		t.Fatalf("graded = %+v", graded)
	}

	// another student cannot touch the attempt
	rec = httptest.NewRecorder()
	newRouter(st, "stu-2", "student").ServeHTTP(rec,
		httptest.NewRequest("POST", "/attempts/"+a.ID+"/submit", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign submit: status = %d, want 403", rec.Code)
	}
}
