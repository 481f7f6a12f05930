package assessment

import "context"

type AttemptListOpts struct {
	QuizID    string
	StudentID string
	Status    string // optional: in_progress|submitted|graded
	Limit     int
	Offset    int
}

// Store is the engine's operation set. Both implementations enforce the same
// policy: validation runs before any write, order and attempt-number
// assignment are race-free, and grading re-reads ground truth on every call
// so an answer key edited while a quiz is still draft is always picked up.
type Store interface {
	SaveQuiz(ctx context.Context, q Quiz) (Quiz, error)
	GetQuiz(ctx context.Context, id string) (Quiz, error)

	// Authoring is gated on the owning quiz being draft.
	AuthorQuestion(ctx context.Context, q Question) (Question, error)
	AuthorChoice(ctx context.Context, c Choice) (Choice, error)
	AuthorAnswerKey(ctx context.Context, k ShortAnswerKey) (ShortAnswerKey, error)

	StartAttempt(ctx context.Context, quizID, studentID string) (Attempt, error)
	RecordAnswer(ctx context.Context, attemptID, questionID string, r Response) (StudentAnswer, error)
	SubmitAttempt(ctx context.Context, attemptID string) (Attempt, error)

	GradeAnswer(ctx context.Context, attemptID, questionID string) (StudentAnswer, error)
	GradeAll(ctx context.Context, attemptID string) (Attempt, error)
	RecomputeAttempt(ctx context.Context, attemptID string) (Attempt, error)

	GetAttempt(ctx context.Context, id string) (Attempt, error)
	GetAnswers(ctx context.Context, attemptID string) ([]StudentAnswer, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)
}
