package questionnaire

import (
	"fmt"

	"filippo.io/age"

	"github.com/dohr-michael/ozzie/internal/secrets"
)

// Section is an ordered group of questions, gated by an optional
// visibility Condition.
type Section struct {
	ID          string
	Name        string
	Description string
	Condition   *Condition

	questions   []*Question
	questionIdx map[string]int
}

// newSection constructs an empty section. Questions are added via
// Questionnaire.AddQuestion, which rejects a question id already used in
// the same section.
func newSection(id, name, description string, condition *Condition) *Section {
	return &Section{
		ID:          id,
		Name:        name,
		Description: description,
		Condition:   condition,
		questionIdx: make(map[string]int),
	}
}

func (s *Section) addQuestion(q *Question) {
	s.questionIdx[q.ID] = len(s.questions)
	s.questions = append(s.questions, q)
}

func (s *Section) question(id string) (*Question, bool) {
	idx, ok := s.questionIdx[id]
	if !ok {
		return nil, false
	}
	return s.questions[idx], true
}

// Questions returns the section's questions in declaration order.
func (s *Section) Questions() []*Question {
	return append([]*Question(nil), s.questions...)
}

// Completed reports whether every non-skipped question has a value.
// Sections with no questions are never completed (spec.md §3).
func (s *Section) Completed() bool {
	if len(s.questions) == 0 {
		return false
	}
	for _, q := range s.questions {
		if !q.Answered() {
			return false
		}
	}
	return true
}

// ToMapping renders the section as a plain JSON-serializable value, used
// by the schema-less JSON fallback rendering path (§4.3.5 step 3).
//
// A spelling-sensitive question's value is sealed with recipient (if one
// is configured) before it leaves the process: the rendered payload
// carries an ENC[age:...] blob rather than the spelled-out plaintext
// (SPEC_FULL.md's questionnaire supplement, internal/secrets.SealSpellingSensitiveAnswer).
func (s *Section) ToMapping(recipient *age.X25519Recipient) map[string]any {
	questions := make([]map[string]any, 0, len(s.questions))
	for _, q := range s.questions {
		value, err := secrets.SealSpellingSensitiveAnswer(q.Value, q.SpellingSensitive, recipient)
		if err != nil {
			value = q.Value
		}
		qm := map[string]any{
			"question_id":   q.ID,
			"question_text": q.Text,
			"question_type": q.Type,
			"skippable":     q.Skippable,
			"skipped":       q.Skipped,
			"value":         value,
		}
		if opts := q.Options(); len(opts) > 0 {
			qm["options"] = opts
		}
		if q.SpellingSensitive {
			qm["spelling_sensitive"] = true
		}
		questions = append(questions, qm)
	}
	m := map[string]any{
		"section_id":   s.ID,
		"section_name": s.Name,
		"questions":    questions,
	}
	if s.Description != "" {
		m["section_description"] = s.Description
	}
	return m
}

func (s *Section) String() string {
	return fmt.Sprintf("Section(%s)", s.ID)
}
