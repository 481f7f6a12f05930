package assessment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/classforge/classforge-lms/internal/eventlog"
	"github.com/classforge/classforge-lms/internal/grading"
)

// SQLStore implements Store over the relational schema in internal/db. It
// works against sqlite and postgres through the same statements; the driver
// string only selects row locking, which postgres needs and sqlite's single
// writer makes redundant.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	grader grading.Grader
	now    func() time.Time
	events *eventlog.Repo
}

func NewSQLStore(db *sql.DB, driver string, grader grading.Grader, now func() time.Time) *SQLStore {
	if grader == nil {
		grader = grading.NewDefaultGrader()
	}
	if now == nil {
		now = time.Now
	}
	return &SQLStore{db: db, driver: driver, grader: grader, now: now}
}

// WithEventLog makes the store append lifecycle events on submit/grade,
// stamped with the store's clock.
func (s *SQLStore) WithEventLog(r *eventlog.Repo) *SQLStore {
	s.events = r.WithClock(s.now)
	return s
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) forUpdate() string {
	if s.driver == "postgres" {
		return " FOR UPDATE"
	}
	return ""
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || // sqlite
		strings.Contains(msg, "duplicate key") // postgres
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timeFromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0).UTC()
	return &t
}

// --- Quiz ---

func (s *SQLStore) SaveQuiz(ctx context.Context, q Quiz) (Quiz, error) {
	now := s.now()
	if err := q.Validate(now); err != nil {
		return Quiz{}, err
	}
	q.Questions = nil
	if q.ID == "" {
		q.ID = uuid.NewString()
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO quizzes (id,offering_id,teacher_id,title,status,duration_minutes,max_attempts,start_time,end_time,created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			q.ID, q.OfferingID, q.TeacherID, q.Title, string(q.Status),
			q.DurationMinutes, q.MaxAttempts, unixOrNil(q.StartTime), unixOrNil(q.EndTime), now.Unix())
		if err != nil {
			return Quiz{}, err
		}
		return q, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE quizzes SET offering_id=$1, teacher_id=$2, title=$3, status=$4,
		        duration_minutes=$5, max_attempts=$6, start_time=$7, end_time=$8
		 WHERE id=$9`,
		q.OfferingID, q.TeacherID, q.Title, string(q.Status),
		q.DurationMinutes, q.MaxAttempts, unixOrNil(q.StartTime), unixOrNil(q.EndTime), q.ID)
	if err != nil {
		return Quiz{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Quiz{}, notFound("quiz", q.ID)
	}
	return q, nil
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	q, err := s.loadQuiz(ctx, s.db, id, false)
	if err != nil {
		return Quiz{}, err
	}
	q.Questions, err = s.loadQuestions(ctx, s.db, id)
	if err != nil {
		return Quiz{}, err
	}
	return q, nil
}

func (s *SQLStore) loadQuiz(ctx context.Context, x dbtx, id string, lock bool) (Quiz, error) {
	query := `SELECT id,offering_id,teacher_id,title,status,duration_minutes,max_attempts,start_time,end_time
	          FROM quizzes WHERE id=$1`
	if lock {
		query += s.forUpdate()
	}
	var q Quiz
	var status string
	var start, end sql.NullInt64
	err := x.QueryRowContext(ctx, query, id).Scan(
		&q.ID, &q.OfferingID, &q.TeacherID, &q.Title, &status,
		&q.DurationMinutes, &q.MaxAttempts, &start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, notFound("quiz", id)
	}
	if err != nil {
		return Quiz{}, err
	}
	q.Status = QuizStatus(status)
	q.StartTime = timeFromNull(start)
	q.EndTime = timeFromNull(end)
	return q, nil
}

func (s *SQLStore) loadQuestions(ctx context.Context, x dbtx, quizID string) ([]Question, error) {
	rows, err := x.QueryContext(ctx,
		`SELECT id,quiz_id,qtype,prompt,marks,ord,required,explanation
		 FROM questions WHERE quiz_id=$1 ORDER BY ord`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []Question
	index := map[string]int{}
	for rows.Next() {
		var q Question
		var qtype string
		if err := rows.Scan(&q.ID, &q.QuizID, &qtype, &q.Prompt, &q.Marks, &q.Order, &q.Required, &q.Explanation); err != nil {
			return nil, err
		}
		q.Type = QuestionType(qtype)
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	crows, err := x.QueryContext(ctx,
		`SELECT c.id,c.question_id,c.label,c.is_correct,c.ord
		 FROM choices c JOIN questions q ON q.id=c.question_id
		 WHERE q.quiz_id=$1 ORDER BY c.ord`, quizID)
	if err != nil {
		return nil, err
	}
	defer crows.Close()
	for crows.Next() {
		var c Choice
		if err := crows.Scan(&c.ID, &c.QuestionID, &c.Label, &c.IsCorrect, &c.Order); err != nil {
			return nil, err
		}
		if i, ok := index[c.QuestionID]; ok {
			questions[i].Choices = append(questions[i].Choices, c)
		}
	}
	if err := crows.Err(); err != nil {
		return nil, err
	}

	krows, err := x.QueryContext(ctx,
		`SELECT k.id,k.question_id,k.answer_text
		 FROM short_answer_keys k JOIN questions q ON q.id=k.question_id
		 WHERE q.quiz_id=$1`, quizID)
	if err != nil {
		return nil, err
	}
	defer krows.Close()
	for krows.Next() {
		var k ShortAnswerKey
		if err := krows.Scan(&k.ID, &k.QuestionID, &k.Text); err != nil {
			return nil, err
		}
		if i, ok := index[k.QuestionID]; ok {
			questions[i].AnswerKeys = append(questions[i].AnswerKeys, k)
		}
	}
	return questions, krows.Err()
}

func (s *SQLStore) loadQuestion(ctx context.Context, x dbtx, id string) (Question, error) {
	var q Question
	var qtype string
	err := x.QueryRowContext(ctx,
		`SELECT id,quiz_id,qtype,prompt,marks,ord,required,explanation
		 FROM questions WHERE id=$1`, id).Scan(
		&q.ID, &q.QuizID, &qtype, &q.Prompt, &q.Marks, &q.Order, &q.Required, &q.Explanation)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, notFound("question", id)
	}
	if err != nil {
		return Question{}, err
	}
	q.Type = QuestionType(qtype)

	crows, err := x.QueryContext(ctx,
		`SELECT id,question_id,label,is_correct,ord FROM choices WHERE question_id=$1 ORDER BY ord`, id)
	if err != nil {
		return Question{}, err
	}
	defer crows.Close()
	for crows.Next() {
		var c Choice
		if err := crows.Scan(&c.ID, &c.QuestionID, &c.Label, &c.IsCorrect, &c.Order); err != nil {
			return Question{}, err
		}
		q.Choices = append(q.Choices, c)
	}
	if err := crows.Err(); err != nil {
		return Question{}, err
	}

	krows, err := x.QueryContext(ctx,
		`SELECT id,question_id,answer_text FROM short_answer_keys WHERE question_id=$1`, id)
	if err != nil {
		return Question{}, err
	}
	defer krows.Close()
	for krows.Next() {
		var k ShortAnswerKey
		if err := krows.Scan(&k.ID, &k.QuestionID, &k.Text); err != nil {
			return Question{}, err
		}
		q.AnswerKeys = append(q.AnswerKeys, k)
	}
	return q, krows.Err()
}

// --- Authoring ---

func (s *SQLStore) AuthorQuestion(ctx context.Context, q Question) (Question, error) {
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	autoOrder := q.ID == "" && q.Order == 0
	for i := 0; i < 3; i++ {
		out, err := s.authorQuestionTx(ctx, q)
		if err != nil && isUniqueViolation(err) {
			if autoOrder {
				continue // lost the max+1 race; re-read and retry
			}
			return Question{}, conflict("author question")
		}
		return out, err
	}
	return Question{}, conflict("author question")
}

func (s *SQLStore) authorQuestionTx(ctx context.Context, q Question) (Question, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Question{}, err
	}
	defer tx.Rollback()

	if err := s.draftGate(ctx, tx, q.QuizID, "questions"); err != nil {
		return Question{}, err
	}

	if q.ID == "" {
		q.ID = uuid.NewString()
		if q.Order == 0 {
			var max int
			if err := tx.QueryRowContext(ctx,
				`SELECT COALESCE(MAX(ord),0) FROM questions WHERE quiz_id=$1`, q.QuizID).Scan(&max); err != nil {
				return Question{}, err
			}
			q.Order = max + 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO questions (id,quiz_id,qtype,prompt,marks,ord,required,explanation)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			q.ID, q.QuizID, string(q.Type), q.Prompt, q.Marks, q.Order, q.Required, q.Explanation); err != nil {
			return Question{}, err
		}
	} else {
		prev, err := s.loadQuestion(ctx, tx, q.ID)
		if err != nil {
			return Question{}, err
		}
		if prev.QuizID != q.QuizID {
			return Question{}, notFound("question", q.ID)
		}
		if q.Order == 0 {
			q.Order = prev.Order
		}
		if q.Type != prev.Type {
			if err := validateQuestionChildren(q.Type, prev.Choices, prev.AnswerKeys); err != nil {
				return Question{}, err
			}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE questions SET qtype=$1, prompt=$2, marks=$3, ord=$4, required=$5, explanation=$6
			 WHERE id=$7 AND quiz_id=$8`,
			string(q.Type), q.Prompt, q.Marks, q.Order, q.Required, q.Explanation, q.ID, q.QuizID)
		if err != nil {
			return Question{}, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return Question{}, notFound("question", q.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return Question{}, err
	}
	q.Choices, q.AnswerKeys = nil, nil
	return q, nil
}

// draftGate locks the owning quiz row and rejects authoring writes once the
// quiz has left draft.
func (s *SQLStore) draftGate(ctx context.Context, tx *sql.Tx, quizID, what string) error {
	var status string
	err := tx.QueryRowContext(ctx,
		`SELECT status FROM quizzes WHERE id=$1`+s.forUpdate(), quizID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("quiz", quizID)
	}
	if err != nil {
		return err
	}
	if QuizStatus(status) != QuizDraft {
		return Invalidf("quiz %s is %s; %s are only editable while draft", quizID, status, what)
	}
	return nil
}

func (s *SQLStore) AuthorChoice(ctx context.Context, c Choice) (Choice, error) {
	autoOrder := c.ID == "" && c.Order == 0
	for i := 0; i < 3; i++ {
		out, err := s.authorChoiceTx(ctx, c)
		if err != nil && isUniqueViolation(err) {
			if autoOrder {
				continue
			}
			return Choice{}, conflict("author choice")
		}
		return out, err
	}
	return Choice{}, conflict("author choice")
}

func (s *SQLStore) authorChoiceTx(ctx context.Context, c Choice) (Choice, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Choice{}, err
	}
	defer tx.Rollback()

	var quizID, qtype string
	err = tx.QueryRowContext(ctx,
		`SELECT quiz_id, qtype FROM questions WHERE id=$1`, c.QuestionID).Scan(&quizID, &qtype)
	if errors.Is(err, sql.ErrNoRows) {
		return Choice{}, notFound("question", c.QuestionID)
	}
	if err != nil {
		return Choice{}, err
	}
	if err := s.draftGate(ctx, tx, quizID, "choices"); err != nil {
		return Choice{}, err
	}

	var siblings []Choice
	rows, err := tx.QueryContext(ctx,
		`SELECT id,question_id,label,is_correct,ord FROM choices WHERE question_id=$1 AND id<>$2`,
		c.QuestionID, c.ID)
	if err != nil {
		return Choice{}, err
	}
	for rows.Next() {
		var sib Choice
		if err := rows.Scan(&sib.ID, &sib.QuestionID, &sib.Label, &sib.IsCorrect, &sib.Order); err != nil {
			rows.Close()
			return Choice{}, err
		}
		siblings = append(siblings, sib)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Choice{}, err
	}

	if err := validateChoiceWrite(Question{Type: QuestionType(qtype)}, siblings, c); err != nil {
		return Choice{}, err
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
		if c.Order == 0 {
			c.Order = maxChoiceOrder(siblings) + 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO choices (id,question_id,label,is_correct,ord) VALUES ($1,$2,$3,$4,$5)`,
			c.ID, c.QuestionID, c.Label, c.IsCorrect, c.Order); err != nil {
			return Choice{}, err
		}
	} else {
		if c.Order == 0 {
			err := tx.QueryRowContext(ctx,
				`SELECT ord FROM choices WHERE id=$1 AND question_id=$2`, c.ID, c.QuestionID).Scan(&c.Order)
			if errors.Is(err, sql.ErrNoRows) {
				return Choice{}, notFound("choice", c.ID)
			}
			if err != nil {
				return Choice{}, err
			}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE choices SET label=$1, is_correct=$2, ord=$3 WHERE id=$4 AND question_id=$5`,
			c.Label, c.IsCorrect, c.Order, c.ID, c.QuestionID)
		if err != nil {
			return Choice{}, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return Choice{}, notFound("choice", c.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return Choice{}, err
	}
	return c, nil
}

func (s *SQLStore) AuthorAnswerKey(ctx context.Context, k ShortAnswerKey) (ShortAnswerKey, error) {
	out, err := s.authorAnswerKeyTx(ctx, k)
	if err != nil && isUniqueViolation(err) {
		// Same normalized text raced in concurrently; either way it is a dup.
		return ShortAnswerKey{}, Invalidf("duplicate answer key for question")
	}
	return out, err
}

func (s *SQLStore) authorAnswerKeyTx(ctx context.Context, k ShortAnswerKey) (ShortAnswerKey, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ShortAnswerKey{}, err
	}
	defer tx.Rollback()

	var quizID, qtype string
	err = tx.QueryRowContext(ctx,
		`SELECT quiz_id, qtype FROM questions WHERE id=$1`, k.QuestionID).Scan(&quizID, &qtype)
	if errors.Is(err, sql.ErrNoRows) {
		return ShortAnswerKey{}, notFound("question", k.QuestionID)
	}
	if err != nil {
		return ShortAnswerKey{}, err
	}
	if err := s.draftGate(ctx, tx, quizID, "answer keys"); err != nil {
		return ShortAnswerKey{}, err
	}

	k.Text = grading.Normalize(k.Text)

	var siblings []ShortAnswerKey
	rows, err := tx.QueryContext(ctx,
		`SELECT id,question_id,answer_text FROM short_answer_keys WHERE question_id=$1 AND id<>$2`,
		k.QuestionID, k.ID)
	if err != nil {
		return ShortAnswerKey{}, err
	}
	for rows.Next() {
		var sib ShortAnswerKey
		if err := rows.Scan(&sib.ID, &sib.QuestionID, &sib.Text); err != nil {
			rows.Close()
			return ShortAnswerKey{}, err
		}
		siblings = append(siblings, sib)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ShortAnswerKey{}, err
	}

	if err := validateAnswerKeyWrite(Question{Type: QuestionType(qtype)}, siblings, k); err != nil {
		return ShortAnswerKey{}, err
	}

	if k.ID == "" {
		k.ID = uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO short_answer_keys (id,question_id,answer_text) VALUES ($1,$2,$3)`,
			k.ID, k.QuestionID, k.Text); err != nil {
			return ShortAnswerKey{}, err
		}
	} else {
		res, err := tx.ExecContext(ctx,
			`UPDATE short_answer_keys SET answer_text=$1 WHERE id=$2 AND question_id=$3`,
			k.Text, k.ID, k.QuestionID)
		if err != nil {
			return ShortAnswerKey{}, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ShortAnswerKey{}, notFound("answer key", k.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return ShortAnswerKey{}, err
	}
	return k, nil
}

// --- Attempts ---

func (s *SQLStore) StartAttempt(ctx context.Context, quizID, studentID string) (Attempt, error) {
	// The attempt_number unique constraint backstops the count: two racing
	// starts collide on the same number and the loser re-checks the limit.
	for i := 0; i < 3; i++ {
		a, err := s.startAttemptTx(ctx, quizID, studentID)
		if err != nil && isUniqueViolation(err) {
			continue
		}
		return a, err
	}
	return Attempt{}, conflict("start attempt")
}

func (s *SQLStore) startAttemptTx(ctx context.Context, quizID, studentID string) (Attempt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, err
	}
	defer tx.Rollback()

	quiz, err := s.loadQuiz(ctx, tx, quizID, true)
	if err != nil {
		return Attempt{}, err
	}
	now := s.now()
	if !quiz.IsActive(now) {
		return Attempt{}, Invalidf("quiz %s is not active", quizID)
	}
	var prior int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE quiz_id=$1 AND student_id=$2`,
		quizID, studentID).Scan(&prior); err != nil {
		return Attempt{}, err
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
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO attempts (id,quiz_id,student_id,attempt_number,status,started_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, a.QuizID, a.StudentID, a.Number, string(a.Status), a.StartedAt.Unix()); err != nil {
		return Attempt{}, err
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, err
	}
	return a, nil
}

func (s *SQLStore) loadAttempt(ctx context.Context, x dbtx, id string, lock bool) (Attempt, error) {
	query := `SELECT id,quiz_id,student_id,attempt_number,status,marks_obtained,started_at,submitted_at
	          FROM attempts WHERE id=$1`
	if lock {
		query += s.forUpdate()
	}
	var a Attempt
	var status string
	var marks sql.NullFloat64
	var started int64
	var submitted sql.NullInt64
	err := x.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.QuizID, &a.StudentID, &a.Number, &status, &marks, &started, &submitted)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, notFound("attempt", id)
	}
	if err != nil {
		return Attempt{}, err
	}
	a.Status = AttemptStatus(status)
	if marks.Valid {
		a.MarksObtained = &marks.Float64
	}
	a.StartedAt = time.Unix(started, 0).UTC()
	a.SubmittedAt = timeFromNull(submitted)
	return a, nil
}

func (s *SQLStore) RecordAnswer(ctx context.Context, attemptID, questionID string, r Response) (StudentAnswer, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return StudentAnswer{}, err
	}
	defer tx.Rollback()

	a, err := s.loadAttempt(ctx, tx, attemptID, false)
	if err != nil {
		return StudentAnswer{}, err
	}
	if a.Status != AttemptInProgress {
		return StudentAnswer{}, Invalidf("attempt %s is %s; answers can no longer change", attemptID, a.Status)
	}
	q, err := s.loadQuestion(ctx, tx, questionID)
	if err != nil {
		return StudentAnswer{}, err
	}
	if q.QuizID != a.QuizID {
		return StudentAnswer{}, notFound("question", questionID)
	}
	if err := validateResponse(q, r); err != nil {
		return StudentAnswer{}, err
	}
	raw, err := EncodeResponse(r)
	if err != nil {
		return StudentAnswer{}, err
	}

	// Upsert keeps the original row id; re-recording resets the verdict.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO answers (id,attempt_id,question_id,response_json)
		 VALUES ($1,$2,$3,$4)
		 ON CONFLICT (attempt_id,question_id)
		 DO UPDATE SET response_json=EXCLUDED.response_json, is_correct=NULL, marks_awarded=NULL`,
		uuid.NewString(), attemptID, questionID, string(raw)); err != nil {
		return StudentAnswer{}, err
	}
	ans := StudentAnswer{AttemptID: attemptID, QuestionID: questionID, Response: r}
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM answers WHERE attempt_id=$1 AND question_id=$2`,
		attemptID, questionID).Scan(&ans.ID); err != nil {
		return StudentAnswer{}, err
	}
	if err := tx.Commit(); err != nil {
		return StudentAnswer{}, err
	}
	return ans, nil
}

func (s *SQLStore) SubmitAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, err
	}
	defer tx.Rollback()

	a, err := s.loadAttempt(ctx, tx, attemptID, true)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != AttemptInProgress {
		// Re-entrant: submitting again is a no-op.
		return a, nil
	}
	now := s.now()
	a.Status = AttemptSubmitted
	a.SubmittedAt = &now
	if _, err := tx.ExecContext(ctx,
		`UPDATE attempts SET status=$1, submitted_at=$2 WHERE id=$3`,
		string(a.Status), now.Unix(), a.ID); err != nil {
		return Attempt{}, err
	}
	a, err = s.gradeAndRecomputeTx(ctx, tx, a)
	if err != nil {
		return Attempt{}, err
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, err
	}
	if s.events != nil {
		_ = s.events.Append(ctx, eventlog.TypeAttemptSubmitted, a.ID, a)
		if a.Status == AttemptGraded {
			_ = s.events.Append(ctx, eventlog.TypeAttemptGraded, a.ID, a)
		}
	}
	return a, nil
}

func (s *SQLStore) GradeAnswer(ctx context.Context, attemptID, questionID string) (StudentAnswer, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return StudentAnswer{}, err
	}
	defer tx.Rollback()

	a, err := s.loadAttempt(ctx, tx, attemptID, false)
	if err != nil {
		return StudentAnswer{}, err
	}
	if a.Status == AttemptInProgress {
		return StudentAnswer{}, Invalidf("attempt %s has not been submitted", attemptID)
	}
	q, err := s.loadQuestion(ctx, tx, questionID)
	if err != nil {
		return StudentAnswer{}, err
	}
	var ans StudentAnswer
	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT id,attempt_id,question_id,response_json FROM answers
		 WHERE attempt_id=$1 AND question_id=$2`,
		attemptID, questionID).Scan(&ans.ID, &ans.AttemptID, &ans.QuestionID, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return StudentAnswer{}, notFound("answer for question", questionID)
	}
	if err != nil {
		return StudentAnswer{}, err
	}
	ans.Response, err = DecodeResponse(q.Type, []byte(raw))
	if err != nil {
		return StudentAnswer{}, err
	}
	graded, err := gradeOne(ctx, s.grader, q, ans)
	if err != nil {
		return StudentAnswer{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE answers SET is_correct=$1, marks_awarded=$2 WHERE id=$3`,
		*graded.IsCorrect, *graded.MarksAwarded, graded.ID); err != nil {
		return StudentAnswer{}, err
	}
	if err := tx.Commit(); err != nil {
		return StudentAnswer{}, err
	}
	return graded, nil
}

func (s *SQLStore) GradeAll(ctx context.Context, attemptID string) (Attempt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, err
	}
	defer tx.Rollback()

	a, err := s.loadAttempt(ctx, tx, attemptID, true)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status == AttemptInProgress {
		return Attempt{}, Invalidf("attempt %s has not been submitted", attemptID)
	}
	prev := a.Status
	a, err = s.gradeAndRecomputeTx(ctx, tx, a)
	if err != nil {
		return Attempt{}, err
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, err
	}
	if s.events != nil && a.Status == AttemptGraded && prev != AttemptGraded {
		_ = s.events.Append(ctx, eventlog.TypeAttemptGraded, a.ID, a)
	}
	return a, nil
}

// gradeAndRecomputeTx re-reads ground truth (questions, choices, keys) and
// every child answer inside the caller's transaction, scores them, and rolls
// the totals into the attempt row. The locked attempt row serializes
// concurrent grading of the same attempt.
func (s *SQLStore) gradeAndRecomputeTx(ctx context.Context, tx *sql.Tx, a Attempt) (Attempt, error) {
	questions, err := s.loadQuestions(ctx, tx, a.QuizID)
	if err != nil {
		return Attempt{}, err
	}
	qmap := make(map[string]Question, len(questions))
	for _, q := range questions {
		qmap[q.ID] = q
	}
	answers, err := s.loadAnswers(ctx, tx, a.ID)
	if err != nil {
		return Attempt{}, err
	}
	for i, ans := range answers {
		q, ok := qmap[ans.QuestionID]
		if !ok {
			continue
		}
		graded, err := gradeOne(ctx, s.grader, q, ans)
		if err != nil {
			continue // leave ungraded; recompute keeps the attempt submitted
		}
		answers[i] = graded
		if _, err := tx.ExecContext(ctx,
			`UPDATE answers SET is_correct=$1, marks_awarded=$2 WHERE id=$3`,
			*graded.IsCorrect, *graded.MarksAwarded, graded.ID); err != nil {
			return Attempt{}, err
		}
	}
	a = recompute(a, answers)
	if _, err := tx.ExecContext(ctx,
		`UPDATE attempts SET marks_obtained=$1, status=$2 WHERE id=$3`,
		*a.MarksObtained, string(a.Status), a.ID); err != nil {
		return Attempt{}, err
	}
	return a, nil
}

func (s *SQLStore) RecomputeAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, err
	}
	defer tx.Rollback()

	a, err := s.loadAttempt(ctx, tx, attemptID, true)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status == AttemptInProgress {
		return Attempt{}, Invalidf("attempt %s has not been submitted", attemptID)
	}
	prev := a.Status
	answers, err := s.loadAnswers(ctx, tx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	a = recompute(a, answers)
	if _, err := tx.ExecContext(ctx,
		`UPDATE attempts SET marks_obtained=$1, status=$2 WHERE id=$3`,
		*a.MarksObtained, string(a.Status), a.ID); err != nil {
		return Attempt{}, err
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, err
	}
	if s.events != nil && a.Status == AttemptGraded && prev != AttemptGraded {
		_ = s.events.Append(ctx, eventlog.TypeAttemptGraded, a.ID, a)
	}
	return a, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return s.loadAttempt(ctx, s.db, id, false)
}

func (s *SQLStore) GetAnswers(ctx context.Context, attemptID string) ([]StudentAnswer, error) {
	if _, err := s.loadAttempt(ctx, s.db, attemptID, false); err != nil {
		return nil, err
	}
	return s.loadAnswers(ctx, s.db, attemptID)
}

func (s *SQLStore) loadAnswers(ctx context.Context, x dbtx, attemptID string) ([]StudentAnswer, error) {
	rows, err := x.QueryContext(ctx,
		`SELECT a.id,a.attempt_id,a.question_id,a.response_json,a.is_correct,a.marks_awarded,q.qtype
		 FROM answers a JOIN questions q ON q.id=a.question_id
		 WHERE a.attempt_id=$1 ORDER BY q.ord`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StudentAnswer
	for rows.Next() {
		var a StudentAnswer
		var raw, qtype string
		var correct sql.NullBool
		var marks sql.NullFloat64
		if err := rows.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &raw, &correct, &marks, &qtype); err != nil {
			return nil, err
		}
		if correct.Valid {
			a.IsCorrect = &correct.Bool
		}
		if marks.Valid {
			a.MarksAwarded = &marks.Float64
		}
		a.Response, err = DecodeResponse(QuestionType(qtype), []byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	query := `SELECT id,quiz_id,student_id,attempt_number,status,marks_obtained,started_at,submitted_at
	          FROM attempts`
	var where []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if opts.QuizID != "" {
		add("quiz_id", opts.QuizID)
	}
	if opts.StudentID != "" {
		add("student_id", opts.StudentID)
	}
	if opts.Status != "" {
		add("status", opts.Status)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var status string
		var marks sql.NullFloat64
		var started int64
		var submitted sql.NullInt64
		if err := rows.Scan(&a.ID, &a.QuizID, &a.StudentID, &a.Number, &status, &marks, &started, &submitted); err != nil {
			return nil, err
		}
		a.Status = AttemptStatus(status)
		if marks.Valid {
			a.MarksObtained = &marks.Float64
		}
		a.StartedAt = time.Unix(started, 0).UTC()
		a.SubmittedAt = timeFromNull(submitted)
		out = append(out, a)
	}
	return out, rows.Err()
}
