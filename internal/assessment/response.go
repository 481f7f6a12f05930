package assessment

import (
	"encoding/json"
	"strings"
)

// Response is the tagged answer variant. Exactly one concrete shape exists
// per question type, so a malformed combination (say, free text on a
// single-choice question) is unrepresentable once validated.
type Response interface {
	isResponse()
}

// SelectedChoice answers single-choice and true/false questions.
type SelectedChoice struct {
	ChoiceID string `json:"choice_id"`
}

// SelectedChoices answers multi-choice questions. An empty set is recordable;
// it only fails at grading time.
type SelectedChoices struct {
	ChoiceIDs []string `json:"choice_ids"`
}

// TextAnswer answers short-answer questions.
type TextAnswer struct {
	Text string `json:"text"`
}

func (SelectedChoice) isResponse()  {}
func (SelectedChoices) isResponse() {}
func (TextAnswer) isResponse()      {}

// validateResponse checks the answer shape against the parent question's type
// before anything is persisted.
func validateResponse(q Question, r Response) error {
	switch q.Type {
	case SingleChoice, TrueFalse:
		sc, ok := r.(SelectedChoice)
		if !ok {
			return Invalidf("%s question requires exactly one selected choice", q.Type)
		}
		if sc.ChoiceID == "" {
			return Invalidf("selected choice is required")
		}
		if !q.hasChoice(sc.ChoiceID) {
			return Invalidf("choice %s does not belong to question %s", sc.ChoiceID, q.ID)
		}
	case MultiChoice:
		mc, ok := r.(SelectedChoices)
		if !ok {
			return Invalidf("multi-choice question requires a set of selected choices")
		}
		for _, id := range mc.ChoiceIDs {
			if !q.hasChoice(id) {
				return Invalidf("choice %s does not belong to question %s", id, q.ID)
			}
		}
	case ShortAnswer:
		ta, ok := r.(TextAnswer)
		if !ok {
			return Invalidf("short-answer question requires a free-text answer")
		}
		if strings.TrimSpace(ta.Text) == "" {
			return Invalidf("free-text answer is required")
		}
	default:
		return Invalidf("unknown question type %q", q.Type)
	}
	return nil
}

// responseEnvelope is the wire/storage form of a Response.
type responseEnvelope struct {
	ChoiceID  string   `json:"choice_id,omitempty"`
	ChoiceIDs []string `json:"choice_ids,omitempty"`
	Text      string   `json:"text,omitempty"`
}

// EncodeResponse flattens a Response for storage as JSON.
func EncodeResponse(r Response) ([]byte, error) {
	var env responseEnvelope
	switch v := r.(type) {
	case SelectedChoice:
		env.ChoiceID = v.ChoiceID
	case SelectedChoices:
		env.ChoiceIDs = v.ChoiceIDs
	case TextAnswer:
		env.Text = v.Text
	case nil:
		// recorded answer cleared; keep empty envelope
	default:
		return nil, Invalidf("unknown response shape")
	}
	return json.Marshal(env)
}

// DecodeResponse rebuilds the variant for a question of the given type.
func DecodeResponse(t QuestionType, raw []byte) (Response, error) {
	var env responseEnvelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, err
		}
	}
	switch t {
	case SingleChoice, TrueFalse:
		return SelectedChoice{ChoiceID: env.ChoiceID}, nil
	case MultiChoice:
		return SelectedChoices{ChoiceIDs: env.ChoiceIDs}, nil
	case ShortAnswer:
		return TextAnswer{Text: env.Text}, nil
	default:
		return nil, Invalidf("unknown question type %q", t)
	}
}
