package grading_test

import (
	"context"
	"testing"

	"github.com/classforge/classforge-lms/internal/grading"
)

func TestSingleChoice(t *testing.T) {
	g := grading.NewDefaultGrader()
	q := grading.Q{Type: "single_choice", Marks: 10, CorrectChoices: []string{"c2"}}

	res, err := g.Grade(context.Background(), q, "c2")
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if !res.Correct || res.Awarded != 10 {
		t.Fatalf("want full marks, got correct=%v awarded=%v", res.Correct, res.Awarded)
	}

	res, err = g.Grade(context.Background(), q, "c1")
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.Correct || res.Awarded != 0 {
		t.Fatalf("want zero marks, got correct=%v awarded=%v", res.Correct, res.Awarded)
	}
}

func TestTrueFalse(t *testing.T) {
	g := grading.NewDefaultGrader()
	q := grading.Q{Type: "true_false", Marks: 2, CorrectChoices: []string{"ch-true"}}

	res, err := g.Grade(context.Background(), q, "ch-true")
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if !res.Correct || res.Awarded != 2 {
		t.Fatalf("got correct=%v awarded=%v", res.Correct, res.Awarded)
	}
}

func TestMultiChoicePartialCredit(t *testing.T) {
	g := grading.NewDefaultGrader()
	q := grading.Q{Type: "multi_choice", Marks: 9, CorrectChoices: []string{"a", "b", "c"}}

	cases := []struct {
		name     string
		selected []string
		correct  bool
		awarded  float64
	}{
		{"exact match", []string{"a", "b", "c"}, true, 9},
		{"order irrelevant", []string{"c", "a", "b"}, true, 9},
		{"subset", []string{"a", "b"}, false, 6},
		{"subset plus wrong", []string{"a", "b", "d"}, false, 3},
		{"wrong outweighs right", []string{"a", "d", "e", "f"}, false, 0},
		{"all wrong", []string{"d", "e"}, false, 0},
		{"empty selection", []string{}, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := g.Grade(context.Background(), q, tc.selected)
			if err != nil {
				t.Fatalf("grade: %v", err)
			}
			if res.Correct != tc.correct || res.Awarded != tc.awarded {
				t.Fatalf("got correct=%v awarded=%v, want correct=%v awarded=%v",
					res.Correct, res.Awarded, tc.correct, tc.awarded)
			}
		})
	}
}

func TestMultiChoiceAllOrNothing(t *testing.T) {
	g := grading.NewDefaultGrader(grading.WithPartialCredit(false))
	q := grading.Q{Type: "multi_choice", Marks: 9, CorrectChoices: []string{"a", "b", "c"}}

	res, err := g.Grade(context.Background(), q, []string{"a", "b"})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.Correct || res.Awarded != 0 {
		t.Fatalf("partial set should score zero without partial credit, got %v", res.Awarded)
	}

	res, err = g.Grade(context.Background(), q, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if !res.Correct || res.Awarded != 9 {
		t.Fatalf("exact set should score full, got %v", res.Awarded)
	}
}

func TestMultiChoiceNoCorrectChoices(t *testing.T) {
	g := grading.NewDefaultGrader()
	q := grading.Q{Type: "multi_choice", Marks: 5} // misconfigured: no key

	res, err := g.Grade(context.Background(), q, []string{"a"})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.Correct || res.Awarded != 0 {
		t.Fatalf("no key should never divide by zero, got awarded=%v", res.Awarded)
	}
}

func TestShortAnswerNormalization(t *testing.T) {
	g := grading.NewDefaultGrader()
	q := grading.Q{Type: "short_answer", Marks: 3, AcceptedAnswers: []string{"42", "forty-two"}}

	for _, in := range []string{"42", " 42 ", "Forty-Two", "FORTY-TWO\t"} {
		res, err := g.Grade(context.Background(), q, in)
		if err != nil {
			t.Fatalf("grade %q: %v", in, err)
		}
		if !res.Correct || res.Awarded != 3 {
			t.Fatalf("%q should match, got correct=%v awarded=%v", in, res.Correct, res.Awarded)
		}
	}

	res, err := g.Grade(context.Background(), q, "43")
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.Correct || res.Awarded != 0 {
		t.Fatalf("43 should not match")
	}
}

func TestUnknownType(t *testing.T) {
	g := grading.NewDefaultGrader()
	if _, err := g.Grade(context.Background(), grading.Q{Type: "essay"}, "anything"); err == nil {
		t.Fatalf("expected error for unregistered type")
	}
}

func TestNormalize(t *testing.T) {
	if got := grading.Normalize("  Hello World \n"); got != "hello world" {
		t.Fatalf("got %q", got)
	}
}
