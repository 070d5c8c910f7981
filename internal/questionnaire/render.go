package questionnaire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/dohr-michael/ozzie/internal/brokerrors"
)

// jinjaScopeRef rewrites the bare "state"/"questionnaire" identifiers the
// spec's Jinja-style templates use (e.g. "{{state.agent_name}}") into the
// leading-dot field access text/template requires (".state.agent_name"),
// so the same template source the spec shows parses unchanged.
var jinjaScopeRef = regexp.MustCompile(`(^|[^.\w])(state|questionnaire)\b`)

func toGoTemplate(src string) string {
	return jinjaScopeRef.ReplaceAllString(src, "$1.$2")
}

// Render implements the four-step rendering fallback chain of spec.md
// §4.3.5. It returns ("", false) when nothing applies. state may be nil.
//
// No pack example ships a Jinja-compatible templating library, so this
// uses the standard library's text/template: its {{ }} delimiter syntax
// and dotted field access (state.agent_name, questionnaire.sections) read
// the same as the Jinja templates the spec's prose shows, and no
// third-party engine in the corpus offers that syntax (see DESIGN.md).
func (q *Questionnaire) Render(state map[string]any) (string, bool, error) {
	readOnlyState := copyState(state)

	if strings.TrimSpace(q.Template) != "" {
		rendered, err := renderTemplate(q.Template, readOnlyState, q.payload())
		if err != nil {
			return "", false, fmt.Errorf("%w: %v", brokerrors.ErrRenderError, err)
		}
		trimmed := strings.TrimSpace(rendered)
		if trimmed == "" {
			return "", false, nil
		}
		return trimmed, true, nil
	}

	if q.Schema != nil {
		data, err := json.Marshal(q.Schema)
		if err != nil {
			return "", false, fmt.Errorf("%w: %v", brokerrors.ErrRenderError, err)
		}
		return string(data), true, nil
	}

	if len(q.sections) > 0 {
		data, err := json.Marshal(map[string]any{"sections": q.sectionsAsMappings()})
		if err != nil {
			return "", false, fmt.Errorf("%w: %v", brokerrors.ErrRenderError, err)
		}
		return string(data), true, nil
	}

	if strings.TrimSpace(q.FallbackPrompt) != "" {
		agent := stringOr(readOnlyState, "agent_name", "our team")
		branch := stringOr(readOnlyState, "branch_name", "our branch")
		return fmt.Sprintf("%s Agent: %s, Branch: %s.", q.FallbackPrompt, agent, branch), true, nil
	}

	return "", false, nil
}

func (q *Questionnaire) payload() map[string]any {
	return map[string]any{"sections": q.sectionsAsMappings()}
}

func (q *Questionnaire) sectionsAsMappings() []map[string]any {
	out := make([]map[string]any, 0, len(q.sections))
	for _, s := range q.sections {
		out = append(out, s.ToMapping(q.Recipient))
	}
	return out
}

// RenderText renders an arbitrary Jinja-style template string (e.g. a
// scaffolding's initial_message_template) against a read-only state view,
// using the same engine Render uses for the questionnaire template.
func RenderText(tmplSrc string, state map[string]any) (string, error) {
	return renderTemplate(tmplSrc, copyState(state), nil)
}

func renderTemplate(tmplSrc string, state map[string]any, questionnaire map[string]any) (string, error) {
	tmpl, err := template.New("questionnaire").Parse(toGoTemplate(tmplSrc))
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	scope := map[string]any{"state": state, "questionnaire": questionnaire}
	if err := tmpl.Execute(&buf, scope); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// copyState returns a shallow copy of state so templates observe a
// snapshot, never a reference that could mutate mid-render (spec.md §9).
func copyState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}

func stringOr(state map[string]any, key, fallback string) string {
	if v, ok := state[key]; ok {
		if s, isStr := v.(string); isStr && s != "" {
			return s
		}
	}
	return fallback
}
