package assessment

import (
	"strings"
	"time"
)

type QuizStatus string

const (
	QuizDraft     QuizStatus = "draft"
	QuizPublished QuizStatus = "published"
	QuizClosed    QuizStatus = "closed"
)

type QuestionType string

const (
	SingleChoice QuestionType = "single_choice"
	MultiChoice  QuestionType = "multi_choice"
	TrueFalse    QuestionType = "true_false"
	ShortAnswer  QuestionType = "short_answer"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptGraded     AttemptStatus = "graded"
)

// Quiz is the assessment container. Status transitions (draft -> published ->
// closed) are authored by the caller; the engine only computes the active
// window from the stored timestamps.
type Quiz struct {
	ID         string     `json:"id"`
	OfferingID string     `json:"offering_id"` // owning course offering, opaque here
	TeacherID  string     `json:"teacher_id"`
	Title      string     `json:"title"`
	Status     QuizStatus `json:"status"`

	DurationMinutes int        `json:"duration_minutes"` // 0 = untimed
	MaxAttempts     int        `json:"max_attempts"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`

	Questions []Question `json:"questions,omitempty"`
}

// TotalMarks is derived from the child questions, never stored.
func (q Quiz) TotalMarks() int {
	total := 0
	for _, qu := range q.Questions {
		total += qu.Marks
	}
	return total
}

// IsActive requires published status and both window bounds; a quiz with a
// missing bound is never active.
func (q Quiz) IsActive(now time.Time) bool {
	if q.Status != QuizPublished {
		return false
	}
	if q.StartTime == nil || q.EndTime == nil {
		return false
	}
	return !now.Before(*q.StartTime) && !now.After(*q.EndTime)
}

func (q Quiz) IsPastDue(now time.Time) bool {
	return q.EndTime != nil && now.After(*q.EndTime)
}

// Question looks up a child question by ID.
func (q Quiz) Question(id string) (Question, bool) {
	for _, qu := range q.Questions {
		if qu.ID == id {
			return qu, true
		}
	}
	return Question{}, false
}

// UnansweredRequired lists the quiz's required questions that have no
// recorded answer yet. Advisory: submission proceeds regardless, callers use
// it to warn before submit.
func (q Quiz) UnansweredRequired(answers []StudentAnswer) []Question {
	answered := make(map[string]bool, len(answers))
	for _, a := range answers {
		answered[a.QuestionID] = true
	}
	var out []Question
	for _, qu := range q.Questions {
		if qu.Required && !answered[qu.ID] {
			out = append(out, qu)
		}
	}
	return out
}

// Validate rejects malformed quiz writes. The window checks run against the
// injected clock so they stay deterministic in tests.
func (q Quiz) Validate(now time.Time) error {
	switch q.Status {
	case QuizDraft, QuizPublished, QuizClosed:
	default:
		return Invalidf("unknown quiz status %q", q.Status)
	}
	if q.Title == "" {
		return Invalidf("quiz title is required")
	}
	if q.DurationMinutes < 0 {
		return Invalidf("duration_minutes must not be negative")
	}
	if q.MaxAttempts < 1 {
		return Invalidf("max_attempts must be at least 1")
	}
	if q.StartTime != nil && q.EndTime != nil && !q.EndTime.After(*q.StartTime) {
		return Invalidf("end_time must be after start_time")
	}
	if q.EndTime != nil && q.EndTime.Before(now) {
		return Invalidf("end_time must not be in the past")
	}
	return nil
}

type Question struct {
	ID          string       `json:"id"`
	QuizID      string       `json:"quiz_id"`
	Type        QuestionType `json:"type"`
	Prompt      string       `json:"prompt"`
	Marks       int          `json:"marks"`
	Order       int          `json:"order"` // unique per quiz; 0 = assign max+1
	Required    bool         `json:"required"`
	Explanation string       `json:"explanation,omitempty"` // shown post-submission

	Choices    []Choice         `json:"choices,omitempty"`
	AnswerKeys []ShortAnswerKey `json:"answer_keys,omitempty"`
}

func (q Question) Validate() error {
	switch q.Type {
	case SingleChoice, MultiChoice, TrueFalse, ShortAnswer:
	default:
		return Invalidf("unknown question type %q", q.Type)
	}
	if q.QuizID == "" {
		return Invalidf("question must belong to a quiz")
	}
	if q.Prompt == "" {
		return Invalidf("question prompt is required")
	}
	if q.Marks <= 0 {
		return Invalidf("question marks must be a positive integer")
	}
	if q.Order < 0 {
		return Invalidf("question order must not be negative")
	}
	return nil
}

// CorrectChoiceIDs is the authored correct set C for choice-based grading.
func (q Question) CorrectChoiceIDs() []string {
	var ids []string
	for _, c := range q.Choices {
		if c.IsCorrect {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// AcceptedAnswers returns the normalized short-answer key set.
func (q Question) AcceptedAnswers() []string {
	var out []string
	for _, k := range q.AnswerKeys {
		out = append(out, k.Text)
	}
	return out
}

func (q Question) hasChoice(id string) bool {
	for _, c := range q.Choices {
		if c.ID == id {
			return true
		}
	}
	return false
}

type Choice struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`
	Label      string `json:"label"`
	IsCorrect  bool   `json:"is_correct"`
	Order      int    `json:"order"` // unique per question; 0 = assign max+1
}

// validateChoiceWrite enforces the per-type choice invariants against the
// current sibling set. siblings must exclude the choice itself on update.
func validateChoiceWrite(q Question, siblings []Choice, c Choice) error {
	if c.Label == "" {
		return Invalidf("choice label is required")
	}
	if c.Order < 0 {
		return Invalidf("choice order must not be negative")
	}
	switch q.Type {
	case ShortAnswer:
		return Invalidf("choices are not allowed on short-answer questions")
	case SingleChoice:
		if c.IsCorrect {
			for _, s := range siblings {
				if s.IsCorrect {
					return Invalidf("single-choice question already has a correct choice")
				}
			}
		}
	case TrueFalse:
		if len(siblings) >= 2 {
			return Invalidf("true/false question allows at most two choices")
		}
		label := strings.ToLower(strings.TrimSpace(c.Label))
		if label != "true" && label != "false" {
			return Invalidf(`true/false choice label must be "true" or "false"`)
		}
	}
	return nil
}

// validateQuestionChildren checks a question's surviving choices and answer
// keys against a (possibly new) type. Used when an update changes the type so
// the per-type invariants cannot be bypassed.
func validateQuestionChildren(t QuestionType, choices []Choice, keys []ShortAnswerKey) error {
	if t == ShortAnswer {
		if len(choices) > 0 {
			return Invalidf("choices are not allowed on short-answer questions")
		}
		return nil
	}
	if len(keys) > 0 {
		return Invalidf("answer keys are only allowed on short-answer questions")
	}
	switch t {
	case SingleChoice:
		correct := 0
		for _, c := range choices {
			if c.IsCorrect {
				correct++
			}
		}
		if correct > 1 {
			return Invalidf("single-choice question allows at most one correct choice")
		}
	case TrueFalse:
		if len(choices) > 2 {
			return Invalidf("true/false question allows at most two choices")
		}
		for _, c := range choices {
			label := strings.ToLower(strings.TrimSpace(c.Label))
			if label != "true" && label != "false" {
				return Invalidf(`true/false choice label must be "true" or "false"`)
			}
		}
	}
	return nil
}

// ShortAnswerKey is one accepted free-text answer. Text is stored trimmed and
// case-folded so grading is plain set membership.
type ShortAnswerKey struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
}

func validateAnswerKeyWrite(q Question, siblings []ShortAnswerKey, k ShortAnswerKey) error {
	if q.Type != ShortAnswer {
		return Invalidf("answer keys are only allowed on short-answer questions")
	}
	if k.Text == "" {
		return Invalidf("answer key text is required")
	}
	for _, s := range siblings {
		if s.Text == k.Text {
			return Invalidf("duplicate answer key for question")
		}
	}
	return nil
}

// Attempt is one student's run through a quiz. Number starts at 1 per
// (quiz, student) and is assigned by the store.
type Attempt struct {
	ID            string        `json:"id"`
	QuizID        string        `json:"quiz_id"`
	StudentID     string        `json:"student_id"`
	Number        int           `json:"attempt_number"`
	Status        AttemptStatus `json:"status"`
	MarksObtained *float64      `json:"marks_obtained,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	SubmittedAt   *time.Time    `json:"submitted_at,omitempty"`
}

// TimeExpired reports whether the attempt has outlived the quiz duration.
// Advisory only: the engine never force-terminates an attempt. A zero
// duration means untimed.
func (a Attempt) TimeExpired(q Quiz, now time.Time) bool {
	if q.DurationMinutes <= 0 {
		return false
	}
	return now.After(a.StartedAt.Add(time.Duration(q.DurationMinutes) * time.Minute))
}

// StudentAnswer is the recorded response to one question within one attempt.
// IsCorrect and MarksAwarded stay nil until the answer is graded.
type StudentAnswer struct {
	ID         string   `json:"id"`
	AttemptID  string   `json:"attempt_id"`
	QuestionID string   `json:"question_id"`
	Response   Response `json:"response"`

	IsCorrect    *bool    `json:"is_correct,omitempty"`
	MarksAwarded *float64 `json:"marks_awarded,omitempty"`
}

func (a StudentAnswer) graded() bool { return a.MarksAwarded != nil }
