package questionnaire

import (
	"fmt"
	"strings"

	"github.com/dohr-michael/ozzie/internal/brokerrors"
)

// Question is a single prompt owned by exactly one Section.
type Question struct {
	ID                string
	Text              string
	Type              string // default "text"
	options           []string
	optionsFold       map[string]string // casefold(option) -> canonical option
	Skippable         bool
	SpellingSensitive bool
	Value             any
	Skipped           bool
}

// NewQuestion constructs a Question, validating the invariants spec.md §3
// places on its shape: a non-skippable question cannot start skipped, and
// options (if any) must be non-empty, unique case-insensitively, and are
// rejected outright when combined with spelling_sensitive (spec.md §9,
// Open Question (b)).
func NewQuestion(id, text string, opts ...QuestionOption) (*Question, error) {
	q := &Question{
		ID:        id,
		Text:      text,
		Type:      "text",
		Skippable: true,
	}
	for _, opt := range opts {
		opt(q)
	}

	if len(q.options) > 0 && q.SpellingSensitive {
		return nil, fmt.Errorf("%w: options and spelling_sensitive cannot both be set", brokerrors.ErrInvalidArgument)
	}

	if len(q.options) > 0 {
		fold := make(map[string]string, len(q.options))
		for _, o := range q.options {
			if o == "" {
				return nil, fmt.Errorf("%w: question options must be non-empty strings", brokerrors.ErrInvalidArgument)
			}
			key := strings.ToLower(o)
			if _, dup := fold[key]; dup {
				return nil, fmt.Errorf("%w: duplicate option %q (case-insensitive)", brokerrors.ErrInvalidArgument, o)
			}
			fold[key] = o
		}
		q.optionsFold = fold
	}

	return q, nil
}

// QuestionOption configures a Question at construction time.
type QuestionOption func(*Question)

func WithType(t string) QuestionOption {
	return func(q *Question) {
		if t != "" {
			q.Type = t
		}
	}
}

func WithOptions(opts []string) QuestionOption {
	return func(q *Question) { q.options = append([]string(nil), opts...) }
}

func WithSkippable(skippable bool) QuestionOption {
	return func(q *Question) { q.Skippable = skippable }
}

func WithSpellingSensitive(sensitive bool) QuestionOption {
	return func(q *Question) { q.SpellingSensitive = sensitive }
}

// Options returns the question's configured options, or nil if none.
func (q *Question) Options() []string {
	return append([]string(nil), q.options...)
}

// SetValue applies §4.3.2's acceptance rules. Setting a value clears the
// skipped flag.
func (q *Question) SetValue(value any) error {
	switch {
	case len(q.options) > 0:
		if s, isStr := value.(string); isStr {
			canon, ok := q.optionsFold[strings.ToLower(s)]
			if !ok {
				return fmt.Errorf("%w: %q is not one of the configured options", brokerrors.ErrInvalidArgument, s)
			}
			q.Value = canon
		} else {
			matched := false
			for _, o := range q.options {
				if o == value {
					matched = true
					break
				}
			}
			if !matched {
				return fmt.Errorf("%w: value does not match any configured option", brokerrors.ErrInvalidArgument)
			}
			q.Value = value
		}

	case q.SpellingSensitive:
		chars, err := spelledSequence(value)
		if err != nil {
			return err
		}
		q.Value = strings.Join(chars, "")

	default:
		q.Value = value
	}

	q.Skipped = false
	return nil
}

// spelledSequence validates that value is a sequence of single-character
// strings and returns them in order.
func spelledSequence(value any) ([]string, error) {
	seq, ok := value.([]string)
	if ok {
		for _, s := range seq {
			if len([]rune(s)) != 1 {
				return nil, fmt.Errorf("%w: spelling_sensitive elements must be single characters, got %q", brokerrors.ErrTypeError, s)
			}
		}
		return seq, nil
	}

	items, isSlice := value.([]any)
	if !isSlice {
		return nil, fmt.Errorf("%w: spelling_sensitive value must be a sequence of single-character strings", brokerrors.ErrTypeError)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, isStr := item.(string)
		if !isStr || len([]rune(s)) != 1 {
			return nil, fmt.Errorf("%w: spelling_sensitive elements must be single-character strings, got %v", brokerrors.ErrTypeError, item)
		}
		out = append(out, s)
	}
	return out, nil
}

// Clear resets the answer to null without altering Skipped.
func (q *Question) Clear() {
	q.Value = nil
}

// Skip marks the question skipped. Non-skippable questions reject this.
func (q *Question) Skip() error {
	if !q.Skippable {
		return fmt.Errorf("%w: question %q is not skippable", brokerrors.ErrInvalidArgument, q.ID)
	}
	q.Skipped = true
	return nil
}

// Unskip clears the skipped flag without touching Value.
func (q *Question) Unskip() {
	q.Skipped = false
}

// Answered reports whether the question counts toward section completion:
// skipped questions are exempt, everything else needs a non-nil value.
func (q *Question) Answered() bool {
	return q.Skipped || q.Value != nil
}
