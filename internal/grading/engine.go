package grading

import (
	"context"
	"errors"
)

// Q is a minimal view of a question needed for grading, decoupled from the
// authoring model so the engine stays a pure function over plain data.
type Q struct {
	Type            string
	Marks           float64
	CorrectChoices  []string // choice IDs flagged correct
	AcceptedAnswers []string // normalized short-answer keys
}

// Result is the outcome of grading a single question response.
type Result struct {
	Correct bool    // full correctness verdict
	Awarded float64 // marks awarded (may be partial for multi-choice)
	Max     float64 // the question's marks
}

// Strategy grades a single question.
type Strategy interface {
	Grade(ctx context.Context, q Q, response interface{}) (Result, error)
}

// Grader routes by question type to the correct Strategy. Grading is
// idempotent: the same inputs always yield the same Result.
type Grader interface {
	Grade(ctx context.Context, q Q, response interface{}) (Result, error)
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, response interface{}) (Result, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{Max: q.Marks}, errors.New("no strategy for question type " + q.Type)
	}
	return s.Grade(ctx, q, response)
}

// Engine options

type Option func(*config)

type config struct {
	PartialCredit bool // partial credit for multi-choice
}

func WithPartialCredit(b bool) Option { return func(c *config) { c.PartialCredit = b } }

// NewDefaultGrader installs the built-in strategies for the four supported
// question types.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{PartialCredit: true}
	for _, o := range opts {
		o(cfg)
	}
	return &defaultGrader{
		strategies: map[string]Strategy{
			"single_choice": singleChoiceStrategy{},
			"true_false":    singleChoiceStrategy{},
			"multi_choice":  multiChoiceStrategy{partial: cfg.PartialCredit},
			"short_answer":  shortAnswerStrategy{},
		},
	}
}

// --- Strategies ---

type singleChoiceStrategy struct{}

func (singleChoiceStrategy) Grade(_ context.Context, q Q, response interface{}) (Result, error) {
	res := Result{Max: q.Marks}
	resp, ok := response.(string)
	if !ok {
		return res, errors.New("response must be a choice id string")
	}
	for _, id := range q.CorrectChoices {
		if resp == id {
			res.Correct = true
			res.Awarded = q.Marks
			return res, nil
		}
	}
	return res, nil
}

// multiChoiceStrategy compares the selected set S against the correct set C.
// Exactly C earns full marks; anything else keeps the verdict incorrect and,
// when enabled, awards max(0, (|S∩C| - |S\C|) * marks/|C|) partial credit.
type multiChoiceStrategy struct{ partial bool }

func (s multiChoiceStrategy) Grade(_ context.Context, q Q, response interface{}) (Result, error) {
	res := Result{Max: q.Marks}
	respSlice, ok := toStringSlice(response)
	if !ok {
		return res, errors.New("response must be a choice id list")
	}
	correct := toSet(q.CorrectChoices)
	sel := toSet(respSlice)

	// Degenerate key: nothing authored correct. Never divide by |C|=0.
	if len(correct) == 0 {
		return res, nil
	}
	if len(sel) == 0 {
		return res, nil
	}
	if setEqual(correct, sel) {
		res.Correct = true
		res.Awarded = q.Marks
		return res, nil
	}
	if !s.partial {
		return res, nil
	}
	hits, wrong := 0, 0
	for id := range sel {
		if _, ok := correct[id]; ok {
			hits++
		} else {
			wrong++
		}
	}
	unit := q.Marks / float64(len(correct))
	if pts := float64(hits-wrong) * unit; pts > 0 {
		res.Awarded = pts
	}
	return res, nil
}

type shortAnswerStrategy struct{}

func (shortAnswerStrategy) Grade(_ context.Context, q Q, response interface{}) (Result, error) {
	res := Result{Max: q.Marks}
	resp, ok := response.(string)
	if !ok {
		return res, errors.New("response must be a text string")
	}
	norm := Normalize(resp)
	if norm == "" {
		return res, nil
	}
	for _, k := range q.AcceptedAnswers {
		if norm == k {
			res.Correct = true
			res.Awarded = q.Marks
			return res, nil
		}
	}
	return res, nil
}

// helpers

func toStringSlice(v interface{}) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
