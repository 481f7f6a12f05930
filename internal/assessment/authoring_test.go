package assessment_test

import (
	"context"
	"testing"
	"time"

	"github.com/classforge/classforge-lms/internal/assessment"
)

func newDraftQuiz(t *testing.T, st *assessment.MemoryStore) assessment.Quiz {
	t.Helper()
	q, err := st.SaveQuiz(context.Background(), assessment.Quiz{
		OfferingID:  "off-1",
		TeacherID:   "teach-1",
		Title:       "Fractions",
		Status:      assessment.QuizDraft,
		MaxAttempts: 1,
	})
	if err != nil {
		t.Fatalf("save quiz: %v", err)
	}
	return q
}

func addQuestion(t *testing.T, st *assessment.MemoryStore, q assessment.Question) assessment.Question {
	t.Helper()
	out, err := st.AuthorQuestion(context.Background(), q)
	if err != nil {
		t.Fatalf("author question: %v", err)
	}
	return out
}

func TestQuestionOrderAutoAssign(t *testing.T) {
	st := assessment.NewMemoryStore(nil, clock)
	quiz := newDraftQuiz(t, st)

	q1 := addQuestion(t, st, assessment.Question{
		QuizID: quiz.ID, Type: assessment.ShortAnswer, Prompt: "p1", Marks: 1,
	})
	q2 := addQuestion(t, st, assessment.Question{
		QuizID: quiz.ID, Type: assessment.ShortAnswer, Prompt: "p2", Marks: 1,
	})
	if q1.Order != 1 || q2.Order != 2 {
		t.Fatalf("auto order = %d, %d; want 1, 2", q1.Order, q2.Order)
	}

	// explicit order that collides is a conflict, not silently rewritten
	_, err := st.AuthorQuestion(context.Background(), assessment.Question{
		QuizID: quiz.ID, Type: assessment.ShortAnswer, Prompt: "p3", Marks: 1, Order: 2,
	})
	if !assessment.IsConflict(err) {
		t.Fatalf("want conflict error, got %v", err)
	}

	// a gap is filled relative to max, not to count
	q9 := addQuestion(t, st, assessment.Question{
		QuizID: quiz.ID, Type: assessment.ShortAnswer, Prompt: "p9", Marks: 1, Order: 9,
	})
	qNext := addQuestion(t, st, assessment.Question{
		QuizID: quiz.ID, Type: assessment.ShortAnswer, Prompt: "p10", Marks: 1,
	})
	if q9.Order != 9 || qNext.Order != 10 {
		t.Fatalf("orders = %d, %d; want 9, 10", q9.Order, qNext.Order)
	}
}

func TestAuthoringRequiresDraft(t *testing.T) {
	st := assessment.NewMemoryStore(nil, clock)
	quiz := newDraftQuiz(t, st)
	q := addQuestion(t, st, assessment.Question{
		QuizID: quiz.ID, Type: assessment.SingleChoice, Prompt: "p", Marks: 5,
	})

	quiz.Status = assessment.QuizPublished
	quiz.StartTime = timePtr(now.Add(-time.Hour))
	quiz.EndTime = timePtr(now.Add(time.Hour))
	if _, err := st.SaveQuiz(context.Background(), quiz); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if _, err := st.AuthorQuestion(context.Background(), assessment.Question{
		QuizID: quiz.ID, Type: assessment.ShortAnswer, Prompt: "late", Marks: 1,
	}); !assessment.IsValidation(err) {
		t.Fatalf("question on published quiz: want validation error, got %v", err)
	}
	if _, err := st.AuthorChoice(context.Background(), assessment.Choice{
		QuestionID: q.ID, Label: "A",
	}); !assessment.IsValidation(err) {
		t.Fatalf("choice on published quiz: want validation error, got %v", err)
	}
}

func TestQuestionValidation(t *testing.T) {
	st := assessment.NewMemoryStore(nil, clock)
	quiz := newDraftQuiz(t, st)

	cases := []assessment.Question{
		{QuizID: quiz.ID, Type: "essay", Prompt: "p", Marks: 1},             // unknown type
		{QuizID: quiz.ID, Type: assessment.ShortAnswer, Marks: 1},           // no prompt
		{QuizID: quiz.ID, Type: assessment.ShortAnswer, Prompt: "p"},        // zero marks
		{QuizID: quiz.ID, Type: assessment.ShortAnswer, Prompt: "p", Marks: -2},
	}
	for _, q := range cases {
		if _, err := st.AuthorQuestion(context.Background(), q); !assessment.IsValidation(err) {
			t.Fatalf("%+v: want validation error, got %v", q, err)
		}
	}
}

func TestSingleChoiceOneCorrect(t *testing.T) {
	st := assessment.NewMemoryStore(nil, clock)
	quiz := newDraftQuiz(t, st)
	q := addQuestion(t, st, assessment.Question{
		QuizID: quiz.ID, Type: assessment.SingleChoice, Prompt: "p", Marks: 5,
	})

	if _, err := st.AuthorChoice(context.Background(), assessment.Choice{
		QuestionID: q.ID, Label: "A", IsCorrect: true,
	}); err != nil {
		t.Fatalf("first correct choice: %v", err)
	}
	_, err := st.AuthorChoice(context.Background(), assessment.Choice{
		QuestionID: q.ID, Label: "B", IsCorrect: true,
	})
	if !assessment.IsValidation(err) {
		t.Fatalf("second correct choice: want validation error, got %v", err)
	}
	// a second incorrect choice is fine
	if _, err := st.AuthorChoice(context.Background(), assessment.Choice{
		QuestionID: q.ID, Label: "B",
	}); err != nil {
		t.Fatalf("incorrect choice: %v", err)
	}
}

func TestTrueFalseChoiceRules(t *testing.T) {
	st := assessment.NewMemoryStore(nil, clock)
	quiz := newDraftQuiz(t, st)
	q := addQuestion(t, st, assessment.Question{
		QuizID: quiz.ID, Type: assessment.TrueFalse, Prompt: "p", Marks: 2,
	})

	if _, err := st.AuthorChoice(context.Background(), assessment.Choice{
		QuestionID: q.ID, Label: "maybe",
	}); !assessment.IsValidation(err) {
		t.Fatalf("bad label: want validation error, got %v", err)
	}

	if _, err := st.AuthorChoice(context.Background(), assessment.Choice{
		QuestionID: q.ID, Label: "True", IsCorrect: true,
	}); err != nil {
		t.Fatalf("true choice: %v", err)
	}
	// only single-choice questions restrict corrects to one; a second
	// correct true/false choice is accepted
	if _, err := st.AuthorChoice(context.Background(), assessment.Choice{
		QuestionID: q.ID, Label: "FALSE", IsCorrect: true,
	}); err != nil {
		t.Fatalf("false choice: %v", err)
	}
	if _, err := st.AuthorChoice(context.Background(), assessment.Choice{
		QuestionID: q.ID, Label: "true",
	}); !assessment.IsValidation(err) {
		t.Fatalf("third choice: want validation error, got %v", err)
	}
}

func TestQuestionTypeChangeGuard(t *testing.T) {
	ctx := context.Background()
	st := assessment.NewMemoryStore(nil, clock)
	quiz := newDraftQuiz(t, st)

	choiceQ := addQuestion(t, st, assessment.Question{
		QuizID: quiz.ID, Type: assessment.MultiChoice, Prompt: "pick", Marks: 4,
	})
	addChoice(t, st, choiceQ.ID, "a", true)
	addChoice(t, st, choiceQ.ID, "b", true)

	// choices survive the update, so a text type is invalid
	choiceQ.Type = assessment.ShortAnswer
	if _, err := st.AuthorQuestion(ctx, choiceQ); !assessment.IsValidation(err) {
		t.Fatalf("multi->short with choices: want validation error, got %v", err)
	}

	// two correct choices violate the single-choice invariant
	choiceQ.Type = assessment.SingleChoice
	if _, err := st.AuthorQuestion(ctx, choiceQ); !assessment.IsValidation(err) {
		t.Fatalf("multi->single with two corrects: want validation error, got %v", err)
	}

	textQ := addQuestion(t, st, assessment.Question{
		QuizID: quiz.ID, Type: assessment.ShortAnswer, Prompt: "answer", Marks: 1,
	})
	if _, err := st.AuthorAnswerKey(ctx, assessment.ShortAnswerKey{QuestionID: textQ.ID, Text: "42"}); err != nil {
		t.Fatalf("author key: %v", err)
	}
	textQ.Type = assessment.MultiChoice
	if _, err := st.AuthorQuestion(ctx, textQ); !assessment.IsValidation(err) {
		t.Fatalf("short->multi with keys: want validation error, got %v", err)
	}

	// compatible retype goes through
	choiceQ.Type = assessment.MultiChoice
	choiceQ.Prompt = "pick all"
	got, err := st.AuthorQuestion(ctx, choiceQ)
	if err != nil {
		t.Fatalf("same-type update: %v", err)
	}
	if got.Prompt != "pick all" {
		t.Fatalf("prompt = %q", got.Prompt)
	}
}

func TestAnswerKeyNormalizationAndDuplicates(t *testing.T) {
	st := assessment.NewMemoryStore(nil, clock)
	quiz := newDraftQuiz(t, st)
	q := addQuestion(t, st, assessment.Question{
		QuizID: quiz.ID, Type: assessment.ShortAnswer, Prompt: "p", Marks: 3,
	})

	k, err := st.AuthorAnswerKey(context.Background(), assessment.ShortAnswerKey{
		QuestionID: q.ID, Text: "  Forty-Two ",
	})
	if err != nil {
		t.Fatalf("author key: %v", err)
	}
	if k.Text != "forty-two" {
		t.Fatalf("key stored as %q, want normalized %q", k.Text, "forty-two")
	}

	// differs only by case/whitespace: a duplicate after normalization
	if _, err := st.AuthorAnswerKey(context.Background(), assessment.ShortAnswerKey{
		QuestionID: q.ID, Text: "FORTY-TWO",
	}); !assessment.IsValidation(err) {
		t.Fatalf("duplicate key: want validation error, got %v", err)
	}

	// answer keys only make sense on short-answer questions
	mc := addQuestion(t, st, assessment.Question{
		QuizID: quiz.ID, Type: assessment.MultiChoice, Prompt: "p", Marks: 9,
	})
	if _, err := st.AuthorAnswerKey(context.Background(), assessment.ShortAnswerKey{
		QuestionID: mc.ID, Text: "nope",
	}); !assessment.IsValidation(err) {
		t.Fatalf("key on multi-choice: want validation error, got %v", err)
	}
	// and choices never belong on short-answer questions
	if _, err := st.AuthorChoice(context.Background(), assessment.Choice{
		QuestionID: q.ID, Label: "A",
	}); !assessment.IsValidation(err) {
		t.Fatalf("choice on short answer: want validation error, got %v", err)
	}
}
