package assessment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classforge/classforge-lms/internal/grading"
)

// MemoryStore backs tests and offline single-process runs. A single mutex
// serializes every operation, which trivially satisfies the order-assignment
// and attempt-limit race requirements.
type MemoryStore struct {
	mu     sync.Mutex
	grader grading.Grader
	now    func() time.Time

	quizzes   map[string]Quiz     // metadata only; questions held separately
	questions map[string]Question // includes nested choices and answer keys
	attempts  map[string]Attempt
	answers   map[string]map[string]StudentAnswer // attemptID -> questionID -> answer
}

func NewMemoryStore(grader grading.Grader, now func() time.Time) *MemoryStore {
	if grader == nil {
		grader = grading.NewDefaultGrader()
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		grader:    grader,
		now:       now,
		quizzes:   map[string]Quiz{},
		questions: map[string]Question{},
		attempts:  map[string]Attempt{},
		answers:   map[string]map[string]StudentAnswer{},
	}
}

func (m *MemoryStore) SaveQuiz(_ context.Context, q Quiz) (Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := q.Validate(m.now()); err != nil {
		return Quiz{}, err
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	} else if _, ok := m.quizzes[q.ID]; !ok {
		return Quiz{}, notFound("quiz", q.ID)
	}
	q.Questions = nil
	m.quizzes[q.ID] = q
	return q, nil
}

func (m *MemoryStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getQuizLocked(id)
}

func (m *MemoryStore) getQuizLocked(id string) (Quiz, error) {
	q, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, notFound("quiz", id)
	}
	for _, qu := range m.questions {
		if qu.QuizID == id {
			q.Questions = append(q.Questions, qu)
		}
	}
	sort.Slice(q.Questions, func(i, j int) bool { return q.Questions[i].Order < q.Questions[j].Order })
	return q, nil
}

func (m *MemoryStore) AuthorQuestion(_ context.Context, q Question) (Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	quiz, ok := m.quizzes[q.QuizID]
	if !ok {
		return Question{}, notFound("quiz", q.QuizID)
	}
	if quiz.Status != QuizDraft {
		return Question{}, Invalidf("quiz %s is %s; questions are only editable while draft", quiz.ID, quiz.Status)
	}
	if err := q.Validate(); err != nil {
		return Question{}, err
	}

	if q.ID == "" {
		q.ID = uuid.NewString()
		if q.Order == 0 {
			q.Order = m.maxQuestionOrder(q.QuizID) + 1
		} else if m.questionOrderTaken(q.QuizID, q.Order, q.ID) {
			return Question{}, conflict("author question")
		}
		q.Choices, q.AnswerKeys = nil, nil
		m.questions[q.ID] = q
		return q, nil
	}

	prev, ok := m.questions[q.ID]
	if !ok || prev.QuizID != q.QuizID {
		return Question{}, notFound("question", q.ID)
	}
	if q.Order == 0 {
		q.Order = prev.Order
	} else if m.questionOrderTaken(q.QuizID, q.Order, q.ID) {
		return Question{}, conflict("author question")
	}
	if q.Type != prev.Type {
		if err := validateQuestionChildren(q.Type, prev.Choices, prev.AnswerKeys); err != nil {
			return Question{}, err
		}
	}
	q.Choices, q.AnswerKeys = prev.Choices, prev.AnswerKeys
	m.questions[q.ID] = q
	return q, nil
}

func (m *MemoryStore) AuthorChoice(_ context.Context, c Choice) (Choice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.questions[c.QuestionID]
	if !ok {
		return Choice{}, notFound("question", c.QuestionID)
	}
	quiz := m.quizzes[q.QuizID]
	if quiz.Status != QuizDraft {
		return Choice{}, Invalidf("quiz %s is %s; choices are only editable while draft", quiz.ID, quiz.Status)
	}

	siblings := make([]Choice, 0, len(q.Choices))
	var prev *Choice
	for i, s := range q.Choices {
		if s.ID == c.ID {
			prev = &q.Choices[i]
			continue
		}
		siblings = append(siblings, s)
	}
	if c.ID != "" && prev == nil {
		return Choice{}, notFound("choice", c.ID)
	}
	if err := validateChoiceWrite(q, siblings, c); err != nil {
		return Choice{}, err
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
		if c.Order == 0 {
			c.Order = maxChoiceOrder(siblings) + 1
		} else if choiceOrderTaken(siblings, c.Order) {
			return Choice{}, conflict("author choice")
		}
		q.Choices = append(q.Choices, c)
	} else {
		if c.Order == 0 {
			c.Order = prev.Order
		} else if choiceOrderTaken(siblings, c.Order) {
			return Choice{}, conflict("author choice")
		}
		*prev = c
	}
	sort.Slice(q.Choices, func(i, j int) bool { return q.Choices[i].Order < q.Choices[j].Order })
	m.questions[q.ID] = q
	return c, nil
}

func (m *MemoryStore) AuthorAnswerKey(_ context.Context, k ShortAnswerKey) (ShortAnswerKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.questions[k.QuestionID]
	if !ok {
		return ShortAnswerKey{}, notFound("question", k.QuestionID)
	}
	quiz := m.quizzes[q.QuizID]
	if quiz.Status != QuizDraft {
		return ShortAnswerKey{}, Invalidf("quiz %s is %s; answer keys are only editable while draft", quiz.ID, quiz.Status)
	}

	k.Text = grading.Normalize(k.Text)

	siblings := make([]ShortAnswerKey, 0, len(q.AnswerKeys))
	var prev *ShortAnswerKey
	for i, s := range q.AnswerKeys {
		if s.ID == k.ID {
			prev = &q.AnswerKeys[i]
			continue
		}
		siblings = append(siblings, s)
	}
	if k.ID != "" && prev == nil {
		return ShortAnswerKey{}, notFound("answer key", k.ID)
	}
	if err := validateAnswerKeyWrite(q, siblings, k); err != nil {
		return ShortAnswerKey{}, err
	}

	if k.ID == "" {
		k.ID = uuid.NewString()
		q.AnswerKeys = append(q.AnswerKeys, k)
	} else {
		*prev = k
	}
	m.questions[q.ID] = q
	return k, nil
}

func (m *MemoryStore) StartAttempt(_ context.Context, quizID, studentID string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	quiz, ok := m.quizzes[quizID]
	if !ok {
		return Attempt{}, notFound("quiz", quizID)
	}
	now := m.now()
	if !quiz.IsActive(now) {
		return Attempt{}, Invalidf("quiz %s is not active", quizID)
	}
	prior := 0
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.StudentID == studentID {
			prior++
		}
	}
	if prior >= quiz.MaxAttempts {
		return Attempt{}, Invalidf("attempt limit of %d reached for quiz %s", quiz.MaxAttempts, quizID)
	}
	a := Attempt{
		ID:        uuid.NewString(),
		QuizID:    quizID,
		StudentID: studentID,
		Number:    prior + 1,
		Status:    AttemptInProgress,
		StartedAt: now,
	}
	m.attempts[a.ID] = a
	return a, nil
}

func (m *MemoryStore) RecordAnswer(_ context.Context, attemptID, questionID string, r Response) (StudentAnswer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.attempts[attemptID]
	if !ok {
		return StudentAnswer{}, notFound("attempt", attemptID)
	}
	if a.Status != AttemptInProgress {
		return StudentAnswer{}, Invalidf("attempt %s is %s; answers can no longer change", attemptID, a.Status)
	}
	q, ok := m.questions[questionID]
	if !ok || q.QuizID != a.QuizID {
		return StudentAnswer{}, notFound("question", questionID)
	}
	if err := validateResponse(q, r); err != nil {
		return StudentAnswer{}, err
	}

	byQ := m.answers[attemptID]
	if byQ == nil {
		byQ = map[string]StudentAnswer{}
		m.answers[attemptID] = byQ
	}
	ans, ok := byQ[questionID]
	if !ok {
		ans = StudentAnswer{ID: uuid.NewString(), AttemptID: attemptID, QuestionID: questionID}
	}
	// Re-recording resets any prior verdict.
	ans.Response = r
	ans.IsCorrect = nil
	ans.MarksAwarded = nil
	byQ[questionID] = ans
	return ans, nil
}

func (m *MemoryStore) SubmitAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, notFound("attempt", attemptID)
	}
	if a.Status != AttemptInProgress {
		// Re-entrant: submitting again is a no-op.
		return a, nil
	}
	now := m.now()
	a.Status = AttemptSubmitted
	a.SubmittedAt = &now
	m.attempts[attemptID] = a
	return m.gradeAllLocked(ctx, a)
}

func (m *MemoryStore) GradeAnswer(ctx context.Context, attemptID, questionID string) (StudentAnswer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.attempts[attemptID]
	if !ok {
		return StudentAnswer{}, notFound("attempt", attemptID)
	}
	if a.Status == AttemptInProgress {
		return StudentAnswer{}, Invalidf("attempt %s has not been submitted", attemptID)
	}
	ans, ok := m.answers[attemptID][questionID]
	if !ok {
		return StudentAnswer{}, notFound("answer for question", questionID)
	}
	q, ok := m.questions[questionID]
	if !ok {
		return StudentAnswer{}, notFound("question", questionID)
	}
	graded, err := gradeOne(ctx, m.grader, q, ans)
	if err != nil {
		return StudentAnswer{}, err
	}
	m.answers[attemptID][questionID] = graded
	return graded, nil
}

func (m *MemoryStore) GradeAll(ctx context.Context, attemptID string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, notFound("attempt", attemptID)
	}
	if a.Status == AttemptInProgress {
		return Attempt{}, Invalidf("attempt %s has not been submitted", attemptID)
	}
	return m.gradeAllLocked(ctx, a)
}

func (m *MemoryStore) gradeAllLocked(ctx context.Context, a Attempt) (Attempt, error) {
	for qid, ans := range m.answers[a.ID] {
		q, ok := m.questions[qid]
		if !ok {
			continue
		}
		graded, err := gradeOne(ctx, m.grader, q, ans)
		if err != nil {
			continue // leave ungraded; recompute keeps the attempt submitted
		}
		m.answers[a.ID][qid] = graded
	}
	a = recompute(a, m.answersLocked(a.ID))
	m.attempts[a.ID] = a
	return a, nil
}

func (m *MemoryStore) RecomputeAttempt(_ context.Context, attemptID string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, notFound("attempt", attemptID)
	}
	if a.Status == AttemptInProgress {
		return Attempt{}, Invalidf("attempt %s has not been submitted", attemptID)
	}
	a = recompute(a, m.answersLocked(attemptID))
	m.attempts[attemptID] = a
	return a, nil
}

func (m *MemoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, notFound("attempt", id)
	}
	return a, nil
}

func (m *MemoryStore) GetAnswers(_ context.Context, attemptID string) ([]StudentAnswer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[attemptID]; !ok {
		return nil, notFound("attempt", attemptID)
	}
	return m.answersLocked(attemptID), nil
}

func (m *MemoryStore) answersLocked(attemptID string) []StudentAnswer {
	out := make([]StudentAnswer, 0, len(m.answers[attemptID]))
	for _, ans := range m.answers[attemptID] {
		out = append(out, ans)
	}
	sort.Slice(out, func(i, j int) bool {
		return m.questions[out[i].QuestionID].Order < m.questions[out[j].QuestionID].Order
	})
	return out
}

func (m *MemoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Attempt
	for _, a := range m.attempts {
		if opts.QuizID != "" && a.QuizID != opts.QuizID {
			continue
		}
		if opts.StudentID != "" && a.StudentID != opts.StudentID {
			continue
		}
		if opts.Status != "" && string(a.Status) != opts.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *MemoryStore) maxQuestionOrder(quizID string) int {
	max := 0
	for _, q := range m.questions {
		if q.QuizID == quizID && q.Order > max {
			max = q.Order
		}
	}
	return max
}

func (m *MemoryStore) questionOrderTaken(quizID string, order int, exceptID string) bool {
	for _, q := range m.questions {
		if q.QuizID == quizID && q.Order == order && q.ID != exceptID {
			return true
		}
	}
	return false
}

func maxChoiceOrder(siblings []Choice) int {
	max := 0
	for _, c := range siblings {
		if c.Order > max {
			max = c.Order
		}
	}
	return max
}

func choiceOrderTaken(siblings []Choice, order int) bool {
	for _, c := range siblings {
		if c.Order == order {
			return true
		}
	}
	return false
}
