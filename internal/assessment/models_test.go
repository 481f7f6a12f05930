package assessment_test

import (
	"testing"
	"time"

	"github.com/classforge/classforge-lms/internal/assessment"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func timePtr(t time.Time) *time.Time { return &t }

func TestQuizValidate(t *testing.T) {
	base := assessment.Quiz{
		Title:       "Algebra unit 3",
		Status:      assessment.QuizDraft,
		MaxAttempts: 1,
	}
	if err := base.Validate(now); err != nil {
		t.Fatalf("valid quiz rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*assessment.Quiz)
	}{
		{"empty title", func(q *assessment.Quiz) { q.Title = "" }},
		{"unknown status", func(q *assessment.Quiz) { q.Status = "archived" }},
		{"zero max attempts", func(q *assessment.Quiz) { q.MaxAttempts = 0 }},
		{"negative duration", func(q *assessment.Quiz) { q.DurationMinutes = -5 }},
		{"end before start", func(q *assessment.Quiz) {
			q.StartTime = timePtr(now.Add(2 * time.Hour))
			q.EndTime = timePtr(now.Add(time.Hour))
		}},
		{"end equals start", func(q *assessment.Quiz) {
			q.StartTime = timePtr(now.Add(time.Hour))
			q.EndTime = timePtr(now.Add(time.Hour))
		}},
		{"end in the past", func(q *assessment.Quiz) {
			q.StartTime = timePtr(now.Add(-2 * time.Hour))
			q.EndTime = timePtr(now.Add(-time.Hour))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := base
			tc.mutate(&q)
			err := q.Validate(now)
			if !assessment.IsValidation(err) {
				t.Fatalf("want validation error, got %v", err)
			}
		})
	}
}

func TestQuizIsActive(t *testing.T) {
	window := assessment.Quiz{
		Title:       "t",
		Status:      assessment.QuizPublished,
		MaxAttempts: 1,
		StartTime:   timePtr(now.Add(-time.Hour)),
		EndTime:     timePtr(now.Add(time.Hour)),
	}
	if !window.IsActive(now) {
		t.Fatalf("published quiz inside window should be active")
	}

	draft := window
	draft.Status = assessment.QuizDraft
	if draft.IsActive(now) {
		t.Fatalf("draft quiz must not be active")
	}

	closed := window
	closed.Status = assessment.QuizClosed
	if closed.IsActive(now) {
		t.Fatalf("closed quiz must not be active")
	}

	unbounded := window
	unbounded.EndTime = nil
	if unbounded.IsActive(now) {
		t.Fatalf("quiz missing a window bound must not be active")
	}

	if window.IsActive(now.Add(2 * time.Hour)) {
		t.Fatalf("quiz past its end must not be active")
	}
	if window.IsActive(now.Add(-2 * time.Hour)) {
		t.Fatalf("quiz before its start must not be active")
	}
	// boundaries are inclusive
	if !window.IsActive(*window.StartTime) || !window.IsActive(*window.EndTime) {
		t.Fatalf("window bounds should be inclusive")
	}
}

func TestQuizIsPastDue(t *testing.T) {
	q := assessment.Quiz{
		Title:       "t",
		Status:      assessment.QuizPublished,
		MaxAttempts: 1,
		StartTime:   timePtr(now.Add(-2 * time.Hour)),
		EndTime:     timePtr(now.Add(-time.Hour)),
	}
	if !q.IsPastDue(now) {
		t.Fatalf("quiz after its end should be past due")
	}
	if q.IsPastDue(*q.EndTime) {
		t.Fatalf("the end instant itself is not past due")
	}

	open := q
	open.EndTime = timePtr(now.Add(time.Hour))
	if open.IsPastDue(now) {
		t.Fatalf("quiz before its end must not be past due")
	}

	unbounded := q
	unbounded.EndTime = nil
	if unbounded.IsPastDue(now) {
		t.Fatalf("quiz without an end must never be past due")
	}
}

func TestTotalMarks(t *testing.T) {
	q := assessment.Quiz{
		Questions: []assessment.Question{
			{Marks: 10}, {Marks: 9}, {Marks: 3},
		},
	}
	if got := q.TotalMarks(); got != 22 {
		t.Fatalf("total marks = %d, want 22", got)
	}
}

func TestUnansweredRequired(t *testing.T) {
	q := assessment.Quiz{
		Questions: []assessment.Question{
			{ID: "q1", Required: true},
			{ID: "q2"},
			{ID: "q3", Required: true},
		},
	}
	missing := q.UnansweredRequired([]assessment.StudentAnswer{{QuestionID: "q1"}})
	if len(missing) != 1 || missing[0].ID != "q3" {
		t.Fatalf("missing = %+v, want just q3", missing)
	}
	if got := q.UnansweredRequired([]assessment.StudentAnswer{{QuestionID: "q1"}, {QuestionID: "q3"}}); got != nil {
		t.Fatalf("all required answered, got %+v", got)
	}
}

func TestAttemptTimeExpired(t *testing.T) {
	a := assessment.Attempt{StartedAt: now}
	timed := assessment.Quiz{DurationMinutes: 30}
	if a.TimeExpired(timed, now.Add(29*time.Minute)) {
		t.Fatalf("attempt within duration should not be expired")
	}
	if !a.TimeExpired(timed, now.Add(31*time.Minute)) {
		t.Fatalf("attempt past duration should be expired")
	}
	untimed := assessment.Quiz{DurationMinutes: 0}
	if a.TimeExpired(untimed, now.Add(100*time.Hour)) {
		t.Fatalf("untimed quiz never expires")
	}
}
