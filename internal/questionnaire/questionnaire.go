// Package questionnaire implements the tree-of-sections-and-questions data
// model, its typed-answer acceptance rules, its boolean visibility algebra
// (AND/OR/NOT/VISIBLE/COMPLETED/ALWAYS) with cycle protection, and its
// template/schema/JSON/fallback rendering (spec.md §4.3).
package questionnaire

import (
	"fmt"
	"strings"

	"filippo.io/age"

	"github.com/dohr-michael/ozzie/internal/brokerrors"
)

// Questionnaire is an ordered sequence of Sections plus an optional
// rendering strategy (a template, a schema, or neither).
type Questionnaire struct {
	Template       string
	Schema         any
	FallbackPrompt string

	// Recipient seals spelling-sensitive answers before they're rendered
	// into a questionnaire payload. Nil means answers render in plaintext
	// (e.g. no age key is configured).
	Recipient *age.X25519Recipient

	sections   []*Section
	sectionIdx map[string]int
}

// New creates an empty questionnaire.
func New() *Questionnaire {
	return &Questionnaire{sectionIdx: make(map[string]int)}
}

// AddSection appends a new section. Duplicate ids are rejected.
func (q *Questionnaire) AddSection(id, name, description string, condition *Condition) (*Section, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: section_id must be non-empty", brokerrors.ErrInvalidArgument)
	}
	if _, exists := q.sectionIdx[id]; exists {
		return nil, fmt.Errorf("%w: duplicate section id %q", brokerrors.ErrInvalidArgument, id)
	}

	s := newSection(id, name, description, condition)
	q.sectionIdx[id] = len(q.sections)
	q.sections = append(q.sections, s)
	return s, nil
}

// AddQuestion appends a question to an existing section.
func (q *Questionnaire) AddQuestion(sectionID, questionID, text string, opts ...QuestionOption) (*Question, error) {
	s, ok := q.section(sectionID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown section %q", brokerrors.ErrInvalidArgument, sectionID)
	}
	if _, exists := s.question(questionID); exists {
		return nil, fmt.Errorf("%w: duplicate question id %q in section %q", brokerrors.ErrInvalidArgument, questionID, sectionID)
	}
	question, err := NewQuestion(questionID, text, opts...)
	if err != nil {
		return nil, err
	}
	s.addQuestion(question)
	return question, nil
}

// Sections returns every section in declaration order (visible or not).
func (q *Questionnaire) Sections() []*Section {
	return append([]*Section(nil), q.sections...)
}

func (q *Questionnaire) section(id string) (*Section, bool) {
	idx, ok := q.sectionIdx[id]
	if !ok {
		return nil, false
	}
	return q.sections[idx], true
}

// Get resolves a dotted "<section_id>.<question_id>" address.
func (q *Questionnaire) Get(dotted string) (*Question, error) {
	sectionID, questionID, err := splitAddress(dotted)
	if err != nil {
		return nil, err
	}
	s, ok := q.section(sectionID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown section %q", brokerrors.ErrInvalidArgument, sectionID)
	}
	question, ok := s.question(questionID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown question %q in section %q", brokerrors.ErrInvalidArgument, questionID, sectionID)
	}
	return question, nil
}

func splitAddress(dotted string) (section, question string, err error) {
	parts := strings.SplitN(dotted, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: question address %q must be \"<section_id>.<question_id>\"", brokerrors.ErrInvalidArgument, dotted)
	}
	// Exactly one '.' is required. SplitN splits at the first dot, so any
	// further dot can only be in the question id half.
	if strings.Contains(parts[1], ".") {
		return "", "", fmt.Errorf("%w: question address %q must contain exactly one \".\"", brokerrors.ErrInvalidArgument, dotted)
	}
	return parts[0], parts[1], nil
}

// SetAnswer sets a question's value via its dotted address.
func (q *Questionnaire) SetAnswer(dotted string, value any) error {
	question, err := q.Get(dotted)
	if err != nil {
		return err
	}
	return question.SetValue(value)
}

// ClearQuestion clears a question's value via its dotted address.
func (q *Questionnaire) ClearQuestion(dotted string) error {
	question, err := q.Get(dotted)
	if err != nil {
		return err
	}
	question.Clear()
	return nil
}

// SkipQuestion marks a question skipped via its dotted address.
func (q *Questionnaire) SkipQuestion(dotted string) error {
	question, err := q.Get(dotted)
	if err != nil {
		return err
	}
	return question.Skip()
}

// UnskipQuestion clears a question's skipped flag via its dotted address.
func (q *Questionnaire) UnskipQuestion(dotted string) error {
	question, err := q.Get(dotted)
	if err != nil {
		return err
	}
	question.Unskip()
	return nil
}

// GetVisibleSections returns the ordered subset of sections for which
// resolve(section) is true (spec.md §4.3.4). Evaluation uses a per-call
// memo and a per-call in-progress set: a section re-entered during its own
// evaluation resolves to false for that inner call, guaranteeing
// termination on cyclic VISIBLE/COMPLETED references without erroring.
func (q *Questionnaire) GetVisibleSections() []*Section {
	memo := make(map[string]bool, len(q.sections))
	inProgress := make(map[string]bool, len(q.sections))

	visible := make([]*Section, 0, len(q.sections))
	for _, s := range q.sections {
		if q.resolve(s.ID, memo, inProgress) {
			visible = append(visible, s)
		}
	}
	return visible
}

func (q *Questionnaire) resolve(sectionID string, memo, inProgress map[string]bool) bool {
	if v, ok := memo[sectionID]; ok {
		return v
	}
	if inProgress[sectionID] {
		// Cycle: the inner evaluation treats the section as hidden; the
		// outer evaluation that re-enters here still completes normally.
		return false
	}

	s, ok := q.section(sectionID)
	if !ok {
		return false
	}
	if s.Condition == nil {
		memo[sectionID] = true
		return true
	}

	inProgress[sectionID] = true
	result := q.evalCondition(*s.Condition, memo, inProgress)
	delete(inProgress, sectionID)

	memo[sectionID] = result
	return result
}

func (q *Questionnaire) evalCondition(c Condition, memo, inProgress map[string]bool) bool {
	switch c.Op {
	case OpAnd:
		if len(c.Conditions) == 0 {
			return false
		}
		for _, sub := range c.Conditions {
			if !q.evalCondition(sub, memo, inProgress) {
				return false
			}
		}
		return true

	case OpOr:
		for _, sub := range c.Conditions {
			if q.evalCondition(sub, memo, inProgress) {
				return true
			}
		}
		return false

	case OpNot:
		if c.Condition == nil {
			return true
		}
		return !q.evalCondition(*c.Condition, memo, inProgress)

	case OpVisible:
		return q.resolveVisible(c.SectionID, memo, inProgress)

	case OpCompleted:
		s, ok := q.section(c.SectionID)
		if !ok {
			return false
		}
		return s.Completed()

	case OpAlways:
		return c.Value

	default:
		return false
	}
}

// resolveVisible evaluates a VISIBLE(section_id) reference using the same
// memo/in-progress bookkeeping as the top-level resolve, so a VISIBLE
// cycle is broken the same way a section's own condition cycle would be.
func (q *Questionnaire) resolveVisible(sectionID string, memo, inProgress map[string]bool) bool {
	return q.resolve(sectionID, memo, inProgress)
}
