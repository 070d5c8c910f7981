// Package scaffolding builds the per-session initial system-message
// template, the questionnaire payload, and the tool catalog (spec.md §4.4).
package scaffolding

import (
	"context"
	"maps"
	"reflect"
	"strings"
	"sync"

	"filippo.io/age"

	"github.com/dohr-michael/ozzie/internal/questionnaire"
)

// Scaffolding is the contract a Session consults during Initialize to
// build its system prompt, questionnaire payload, and tool catalog.
type Scaffolding interface {
	InitialMessageTemplate() string
	RenderQuestionnaire(state map[string]any) (string, bool)
	Tools() []Tool
}

// Primer is the optional extra a Scaffolding may implement to eagerly
// render its questionnaire ahead of first use (spec.md §4.4).
type Primer interface {
	BuildQuestionnaire(state map[string]any) (string, bool)
}

// Config is the agent.* subset of session config relevant to scaffolding
// construction (spec.md §6.3).
type Config struct {
	Type                   string
	InitialMessageTemplate string
	QuestionnaireTemplate  string
	Questionnaire          any // structured schema, or a bare template string
	QuestionnaireDir       string
	QuestionnaireFile      string
	Tools                  any
	MCPServers             []MCPServerConfig

	// Recipient, when set, seals spelling-sensitive answers before they're
	// rendered into the questionnaire payload (internal/secrets).
	Recipient *age.X25519Recipient
}

// New builds the scaffolding variant named by cfg.Type. "questionnaire" is
// the only variant spec.md defines; any other non-empty type is an error.
func New(ctx context.Context, cfg Config) (Scaffolding, error) {
	switch cfg.Type {
	case "", "questionnaire":
		return newQuestionnaireScaffolding(ctx, cfg)
	default:
		return nil, &unknownTypeError{cfg.Type}
	}
}

type unknownTypeError struct{ typ string }

func (e *unknownTypeError) Error() string {
	return "scaffolding: unknown agent type " + e.typ
}

// QuestionnaireScaffolding is the variant described in spec.md §4.4: a
// system-prompt template, a questionnaire (template, schema, or static
// sections), and a static+MCP-discovered tool catalog.
type QuestionnaireScaffolding struct {
	template string
	q        *questionnaire.Questionnaire
	tools    []Tool

	mu           sync.Mutex
	cachedState  map[string]any
	cachedOut    string
	cachedOK     bool
	cachedOnce   bool
}

func newQuestionnaireScaffolding(ctx context.Context, cfg Config) (*QuestionnaireScaffolding, error) {
	q := questionnaire.New()
	q.Recipient = cfg.Recipient

	// A bare string given as `questionnaire` and no explicit template acts
	// as the template (spec.md §4.4).
	qTemplate := cfg.QuestionnaireTemplate
	if qTemplate == "" {
		if s, ok := cfg.Questionnaire.(string); ok {
			qTemplate = s
		}
	}
	q.Template = qTemplate

	if qTemplate == "" {
		schema, err := resolveQuestionnaireSchema(cfg)
		if err != nil {
			return nil, err
		}
		if schema != nil {
			if sections, hasSections := schema["sections"]; hasSections {
				applySectionsSchema(q, sections)
			} else {
				q.Schema = schema
			}
		}
	}

	static := normalizeTools(cfg.Tools)
	discovered := DiscoverMCPTools(ctx, cfg.MCPServers)

	initial := strings.TrimSpace(cfg.InitialMessageTemplate)
	template := ""
	if initial != "" {
		template = cfg.InitialMessageTemplate
	}

	return &QuestionnaireScaffolding{
		template: template,
		q:        q,
		tools:    mergeTools(static, discovered),
	}, nil
}

// resolveQuestionnaireSchema picks the inline questionnaire schema if one is
// given, else falls back to a single questionnaire_file, else to every
// *.yaml/*.yml file discovered under questionnaire_dir (spec.md §6.3
// supplement: file-backed questionnaires alongside inline config ones).
func resolveQuestionnaireSchema(cfg Config) (map[string]any, error) {
	if schema, ok := cfg.Questionnaire.(map[string]any); ok {
		return schema, nil
	}
	if cfg.QuestionnaireFile != "" {
		return loadQuestionnaireFile(cfg.QuestionnaireFile)
	}
	if cfg.QuestionnaireDir != "" {
		return loadQuestionnaireDir(cfg.QuestionnaireDir)
	}
	return nil, nil
}

func (s *QuestionnaireScaffolding) InitialMessageTemplate() string {
	return s.template
}

func (s *QuestionnaireScaffolding) Tools() []Tool {
	return append([]Tool(nil), s.tools...)
}

// RenderQuestionnaire renders the questionnaire against state, reusing the
// last (state, rendered) pair when state is unchanged (spec.md §4.4).
func (s *QuestionnaireScaffolding) RenderQuestionnaire(state map[string]any) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cachedOnce && reflect.DeepEqual(s.cachedState, state) {
		return s.cachedOut, s.cachedOK
	}

	out, ok, err := s.q.Render(state)
	if err != nil {
		out, ok = "", false
	}

	s.cachedState = maps.Clone(state)
	s.cachedOut = out
	s.cachedOK = ok
	s.cachedOnce = true
	return out, ok
}

// BuildQuestionnaire eagerly primes the render cache for state.
func (s *QuestionnaireScaffolding) BuildQuestionnaire(state map[string]any) (string, bool) {
	return s.RenderQuestionnaire(state)
}

// Questionnaire exposes the underlying model for session wiring that needs
// direct section/question mutation (e.g. a gateway answering questions on
// the user's behalf).
func (s *QuestionnaireScaffolding) Questionnaire() *questionnaire.Questionnaire {
	return s.q
}

// applySectionsSchema builds static sections/questions from a decoded
// JSON/YAML {"sections": [...]} document (agent.questionnaire_file).
func applySectionsSchema(q *questionnaire.Questionnaire, raw any) {
	sections, ok := raw.([]any)
	if !ok {
		return
	}
	for _, sRaw := range sections {
		sm, ok := sRaw.(map[string]any)
		if !ok {
			continue
		}
		id, _ := sm["section_id"].(string)
		name, _ := sm["section_name"].(string)
		desc, _ := sm["section_description"].(string)

		var cond *questionnaire.Condition
		if cm, ok := sm["condition"].(map[string]any); ok {
			if c, err := questionnaire.ParseCondition(cm); err == nil {
				cond = &c
			}
		}

		section, err := q.AddSection(id, name, desc, cond)
		if err != nil || section == nil {
			continue
		}

		questions, _ := sm["questions"].([]any)
		for _, qRaw := range questions {
			qm, ok := qRaw.(map[string]any)
			if !ok {
				continue
			}
			qid, _ := qm["question_id"].(string)
			qtext, _ := qm["question_text"].(string)

			var opts []questionnaire.QuestionOption
			if t, ok := qm["question_type"].(string); ok && t != "" {
				opts = append(opts, questionnaire.WithType(t))
			}
			if raw, ok := qm["question_options"].([]any); ok {
				strs := make([]string, 0, len(raw))
				for _, o := range raw {
					if s, ok := o.(string); ok {
						strs = append(strs, s)
					}
				}
				opts = append(opts, questionnaire.WithOptions(strs))
			}
			if skippable, ok := qm["skippable"].(bool); ok {
				opts = append(opts, questionnaire.WithSkippable(skippable))
			}
			if sensitive, ok := qm["spelling_sensitive"].(bool); ok {
				opts = append(opts, questionnaire.WithSpellingSensitive(sensitive))
			}

			_, _ = q.AddQuestion(id, qid, qtext, opts...)
		}
	}
}
