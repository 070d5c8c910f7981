package questionnaire

import (
	"fmt"
	"strings"

	"github.com/dohr-michael/ozzie/internal/brokerrors"
)

// Operator is one of the six boolean-visibility-algebra operators a
// Condition tree may use.
type Operator string

const (
	OpAnd       Operator = "AND"
	OpOr        Operator = "OR"
	OpNot       Operator = "NOT"
	OpVisible   Operator = "VISIBLE"
	OpCompleted Operator = "COMPLETED"
	OpAlways    Operator = "ALWAYS"
)

// Condition is a normalized node of a section's visibility tree. Only the
// fields relevant to Op are populated; operators are case-insensitive on
// input and stored uppercase.
type Condition struct {
	Op         Operator
	Conditions []Condition // AND, OR
	Condition  *Condition  // NOT
	SectionID  string      // VISIBLE, COMPLETED
	Value      bool        // ALWAYS
}

// And builds an AND condition over a non-empty list of sub-conditions.
func And(conditions ...Condition) (Condition, error) {
	if len(conditions) == 0 {
		return Condition{}, fmt.Errorf("%w: AND requires a non-empty condition list", brokerrors.ErrInvalidArgument)
	}
	return Condition{Op: OpAnd, Conditions: conditions}, nil
}

// Or builds an OR condition over a non-empty list of sub-conditions.
func Or(conditions ...Condition) (Condition, error) {
	if len(conditions) == 0 {
		return Condition{}, fmt.Errorf("%w: OR requires a non-empty condition list", brokerrors.ErrInvalidArgument)
	}
	return Condition{Op: OpOr, Conditions: conditions}, nil
}

// Not negates a single sub-condition.
func Not(inner Condition) Condition {
	c := inner
	return Condition{Op: OpNot, Condition: &c}
}

// Visible references another section's current visibility.
func Visible(sectionID string) (Condition, error) {
	if strings.TrimSpace(sectionID) == "" {
		return Condition{}, fmt.Errorf("%w: VISIBLE requires a non-empty section_id", brokerrors.ErrInvalidArgument)
	}
	return Condition{Op: OpVisible, SectionID: sectionID}, nil
}

// Completed references another section's current completion state.
func Completed(sectionID string) (Condition, error) {
	if strings.TrimSpace(sectionID) == "" {
		return Condition{}, fmt.Errorf("%w: COMPLETED requires a non-empty section_id", brokerrors.ErrInvalidArgument)
	}
	return Condition{Op: OpCompleted, SectionID: sectionID}, nil
}

// Always is a constant condition (default true).
func Always(value bool) Condition {
	return Condition{Op: OpAlways, Value: value}
}

// ParseCondition normalizes an arbitrary JSON-decoded condition tree (e.g.
// loaded from config) into a Condition, validating shape per operator.
// Operator matching is case-insensitive; the parsed tree always stores the
// uppercase form.
func ParseCondition(raw map[string]any) (Condition, error) {
	opRaw, ok := raw["operator"]
	if !ok {
		opRaw, ok = raw["op"]
	}
	opStr, isStr := opRaw.(string)
	if !ok || !isStr || strings.TrimSpace(opStr) == "" {
		return Condition{}, fmt.Errorf("%w: condition requires an operator", brokerrors.ErrInvalidArgument)
	}

	switch Operator(strings.ToUpper(opStr)) {
	case OpAnd, OpOr:
		list, err := parseConditionList(raw["conditions"])
		if err != nil {
			return Condition{}, err
		}
		if len(list) == 0 {
			return Condition{}, fmt.Errorf("%w: %s requires a non-empty condition list", brokerrors.ErrInvalidArgument, strings.ToUpper(opStr))
		}
		return Condition{Op: Operator(strings.ToUpper(opStr)), Conditions: list}, nil

	case OpNot:
		innerRaw, ok := raw["condition"].(map[string]any)
		if !ok {
			return Condition{}, fmt.Errorf("%w: NOT requires a condition mapping", brokerrors.ErrInvalidArgument)
		}
		inner, err := ParseCondition(innerRaw)
		if err != nil {
			return Condition{}, err
		}
		return Condition{Op: OpNot, Condition: &inner}, nil

	case OpVisible:
		sid, _ := raw["section_id"].(string)
		return Visible(sid)

	case OpCompleted:
		sid, _ := raw["section_id"].(string)
		return Completed(sid)

	case OpAlways:
		v, present := raw["value"]
		if !present {
			return Always(true), nil
		}
		b, ok := v.(bool)
		if !ok {
			return Condition{}, fmt.Errorf("%w: ALWAYS.value must be a boolean", brokerrors.ErrTypeError)
		}
		return Always(b), nil

	default:
		return Condition{}, fmt.Errorf("%w: unknown condition operator %q", brokerrors.ErrInvalidArgument, opStr)
	}
}

func parseConditionList(raw any) ([]Condition, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: conditions must be a list", brokerrors.ErrInvalidArgument)
	}
	out := make([]Condition, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: each condition must be a mapping", brokerrors.ErrInvalidArgument)
		}
		c, err := ParseCondition(m)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
