package scaffolding

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUnknownTypeErrors(t *testing.T) {
	_, err := New(context.Background(), Config{Type: "weird"})
	require.Error(t, err)
}

func TestBareQuestionnaireStringActsAsTemplate(t *testing.T) {
	sc, err := New(context.Background(), Config{
		Questionnaire: "Hi {{state.name}}",
	})
	require.NoError(t, err)

	out, ok := sc.RenderQuestionnaire(map[string]any{"name": "Ada"})
	assert.True(t, ok)
	assert.Equal(t, "Hi Ada", out)
}

func TestExplicitTemplateWinsOverBareQuestionnaireString(t *testing.T) {
	sc, err := New(context.Background(), Config{
		QuestionnaireTemplate: "explicit {{state.name}}",
		Questionnaire:         "bare {{state.name}}",
	})
	require.NoError(t, err)

	out, _ := sc.RenderQuestionnaire(map[string]any{"name": "Ada"})
	assert.Equal(t, "explicit Ada", out)
}

func TestRenderQuestionnaireCachesOnEqualState(t *testing.T) {
	sc, err := New(context.Background(), Config{Questionnaire: "x {{state.name}}"})
	require.NoError(t, err)

	qs := sc.(*QuestionnaireScaffolding)

	state := map[string]any{"name": "Ada"}
	out1, _ := qs.RenderQuestionnaire(state)
	qs.q.Template = "changed {{state.name}}" // mutate underlying so a cache miss would show up
	out2, _ := qs.RenderQuestionnaire(state)
	assert.Equal(t, out1, out2, "equal state must reuse the cached render")

	out3, _ := qs.RenderQuestionnaire(map[string]any{"name": "Grace"})
	assert.Equal(t, "changed Grace", out3, "changed state must re-render")
}

func TestInitialMessageTemplateBlankWhenUnset(t *testing.T) {
	sc, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.Empty(t, sc.InitialMessageTemplate())
}

func TestStaticToolsWinOverDiscoveredOnNameCollision(t *testing.T) {
	sc, err := New(context.Background(), Config{
		Tools: []map[string]any{
			{"name": "search", "description": "static wins"},
		},
	})
	require.NoError(t, err)

	tools := sc.Tools()
	require.Len(t, tools, 1)
	assert.Equal(t, "static wins", tools[0].Description)

	merged := mergeTools(tools, []Tool{{Type: "function", Name: "search", Description: "discovered"}})
	require.Len(t, merged, 1)
	assert.Equal(t, "static wins", merged[0].Description)
}

func TestQuestionnaireFileLoadsSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "intake.yaml")
	content := `
sections:
  - section_id: basics
    section_name: Basics
    questions:
      - question_id: name
        question_text: "What is your name?"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	sc, err := New(context.Background(), Config{QuestionnaireFile: path})
	require.NoError(t, err)

	qs := sc.(*QuestionnaireScaffolding)
	require.Len(t, qs.Questionnaire().Sections(), 1)
	assert.Equal(t, "basics", qs.Questionnaire().Sections()[0].ID)
}

func TestQuestionnaireDirMergesMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(`
sections:
  - section_id: a
    section_name: A
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte(`
sections:
  - section_id: b
    section_name: B
`), 0o644))

	sc, err := New(context.Background(), Config{QuestionnaireDir: dir})
	require.NoError(t, err)

	qs := sc.(*QuestionnaireScaffolding)
	assert.Len(t, qs.Questionnaire().Sections(), 2)
}

func TestInlineQuestionnaireWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "intake.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`sections: []`), 0o644))

	sc, err := New(context.Background(), Config{
		QuestionnaireFile: path,
		Questionnaire: map[string]any{
			"sections": []any{
				map[string]any{"section_id": "inline", "section_name": "Inline"},
			},
		},
	})
	require.NoError(t, err)

	qs := sc.(*QuestionnaireScaffolding)
	require.Len(t, qs.Questionnaire().Sections(), 1)
	assert.Equal(t, "inline", qs.Questionnaire().Sections()[0].ID)
}
