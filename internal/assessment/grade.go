package assessment

import (
	"context"

	"github.com/classforge/classforge-lms/internal/grading"
)

// gradingView projects a question into the grading engine's input shape.
func gradingView(q Question) grading.Q {
	return grading.Q{
		Type:            string(q.Type),
		Marks:           float64(q.Marks),
		CorrectChoices:  q.CorrectChoiceIDs(),
		AcceptedAnswers: q.AcceptedAnswers(),
	}
}

func gradingResponse(r Response) interface{} {
	switch v := r.(type) {
	case SelectedChoice:
		return v.ChoiceID
	case SelectedChoices:
		return v.ChoiceIDs
	case TextAnswer:
		return v.Text
	default:
		return nil
	}
}

// gradeOne scores a single answer against its question and writes the verdict
// onto the answer. Re-runnable: same inputs, same outcome.
func gradeOne(ctx context.Context, g grading.Grader, q Question, a StudentAnswer) (StudentAnswer, error) {
	res, err := g.Grade(ctx, gradingView(q), gradingResponse(a.Response))
	if err != nil {
		return a, err
	}
	correct := res.Correct
	awarded := res.Awarded
	a.IsCorrect = &correct
	a.MarksAwarded = &awarded
	return a, nil
}

// recompute rolls the child answers into the attempt-level total. It is a
// full recomputation from current child state, never an incremental add, so
// re-running it cannot double count. Ungraded answers contribute zero to the
// sum but hold the attempt at submitted.
func recompute(a Attempt, answers []StudentAnswer) Attempt {
	total := 0.0
	allGraded := true
	for _, ans := range answers {
		if ans.graded() {
			total += *ans.MarksAwarded
		} else {
			allGraded = false
		}
	}
	a.MarksObtained = &total
	if allGraded {
		a.Status = AttemptGraded
	} else {
		a.Status = AttemptSubmitted
	}
	return a
}
