package questionnaire

import (
	"errors"
	"testing"

	"github.com/dohr-michael/ozzie/internal/brokerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S4 — option case insensitivity.
func TestOptionCaseInsensitivity(t *testing.T) {
	q, err := NewQuestion("q1", "Pick one", WithOptions([]string{"Yes", "No"}))
	require.NoError(t, err)

	require.NoError(t, q.SetValue("YES"))
	assert.Equal(t, "Yes", q.Value)

	err = q.SetValue("maybe")
	assert.ErrorIs(t, err, brokerrors.ErrInvalidArgument)
}

func TestDuplicateOptionsRejected(t *testing.T) {
	_, err := NewQuestion("q1", "Pick", WithOptions([]string{"Yes", "yes"}))
	assert.ErrorIs(t, err, brokerrors.ErrInvalidArgument)
}

func TestNonSkippableRejectsSkip(t *testing.T) {
	q, err := NewQuestion("q1", "Name", WithSkippable(false))
	require.NoError(t, err)
	err = q.Skip()
	assert.ErrorIs(t, err, brokerrors.ErrInvalidArgument)
	assert.False(t, q.Skipped)
}

// S5 — spelling-sensitive input.
func TestSpellingSensitive(t *testing.T) {
	q, err := NewQuestion("email", "Spell your email", WithSpellingSensitive(true))
	require.NoError(t, err)

	chars := []string{"j", "a", "m", "e", "s", "@", "t", "e", "s", "t", ".", "c", "o", "m"}
	require.NoError(t, q.SetValue(chars))
	assert.Equal(t, "james@test.com", q.Value)

	err = q.SetValue("james@test.com")
	assert.ErrorIs(t, err, brokerrors.ErrTypeError)
}

func TestOptionsAndSpellingSensitiveRejectedTogether(t *testing.T) {
	_, err := NewQuestion("q1", "x", WithOptions([]string{"a"}), WithSpellingSensitive(true))
	assert.ErrorIs(t, err, brokerrors.ErrInvalidArgument)
}

// S6 — visibility dependency.
func TestVisibilityDependency(t *testing.T) {
	q := New()
	_, err := q.AddSection("1", "Basics", "", nil)
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		_, err := q.AddQuestion("1", id, "Yes/No?", WithOptions([]string{"Yes", "No"}))
		require.NoError(t, err)
	}

	and, err := And(mustVisible(t, "1"), mustCompleted(t, "1"))
	require.NoError(t, err)
	_, err = q.AddSection("2", "Follow-up", "", &and)
	require.NoError(t, err)

	visible := visibleIDs(q.GetVisibleSections())
	assert.Equal(t, []string{"1"}, visible)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.SetAnswer("1."+id, "Yes"))
	}

	visible = visibleIDs(q.GetVisibleSections())
	assert.Equal(t, []string{"1", "2"}, visible)
}

// Invariant 6 — a VISIBLE cycle terminates and excludes every member.
func TestVisibilityCycleExcludesMembers(t *testing.T) {
	q := New()
	visA, err := Visible("b")
	require.NoError(t, err)
	visB, err := Visible("a")
	require.NoError(t, err)
	_, err = q.AddSection("a", "A", "", &visA)
	require.NoError(t, err)
	_, err = q.AddSection("b", "B", "", &visB)
	require.NoError(t, err)

	visible := visibleIDs(q.GetVisibleSections())
	assert.Empty(t, visible)
}

func TestEmptyANDRejected(t *testing.T) {
	_, err := And()
	assert.ErrorIs(t, err, brokerrors.ErrInvalidArgument)
}

func TestUnknownOperatorRejected(t *testing.T) {
	_, err := ParseCondition(map[string]any{"operator": "XOR"})
	assert.ErrorIs(t, err, brokerrors.ErrInvalidArgument)
}

func TestParseConditionCaseInsensitiveOperator(t *testing.T) {
	c, err := ParseCondition(map[string]any{"operator": "always", "value": false})
	require.NoError(t, err)
	assert.Equal(t, OpAlways, c.Op)
	assert.False(t, c.Value)
}

func TestGetRejectsMalformedAddress(t *testing.T) {
	q := New()
	_, err := q.AddSection("s", "S", "", nil)
	require.NoError(t, err)
	_, err = q.AddQuestion("s", "q", "Q?")
	require.NoError(t, err)

	for _, addr := range []string{"", "s", ".q", "s."} {
		_, err := q.Get(addr)
		assert.Error(t, err)
	}
}

// Invariant 7 — render is pure w.r.t. state.
func TestRenderIsPureOfState(t *testing.T) {
	q := New()
	q.Template = "Hello {{state.agent_name}}"
	state := map[string]any{"agent_name": "Ada"}

	out1, ok1, err := q.Render(state)
	require.NoError(t, err)
	out2, ok2, err := q.Render(state)
	require.NoError(t, err)

	assert.Equal(t, ok1, ok2)
	assert.Equal(t, out1, out2)
	assert.Equal(t, "Hello Ada", out1)
}

func TestRenderFallbackChain(t *testing.T) {
	t.Run("schema wins over sections", func(t *testing.T) {
		q := New()
		q.Schema = map[string]any{"b": 1, "a": 2}
		_, err := q.AddSection("s", "S", "", nil)
		require.NoError(t, err)

		out, ok, err := q.Render(nil)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, `{"a":2,"b":1}`, out)
	})

	t.Run("sections JSON when no template or schema", func(t *testing.T) {
		q := New()
		_, err := q.AddSection("s", "Sect", "", nil)
		require.NoError(t, err)
		_, err = q.AddQuestion("s", "q", "Q?")
		require.NoError(t, err)

		out, ok, err := q.Render(nil)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Contains(t, out, `"sections"`)
	})

	t.Run("fallback prompt when nothing else applies", func(t *testing.T) {
		q := New()
		q.FallbackPrompt = "Welcome."
		out, ok, err := q.Render(map[string]any{"branch_name": "HQ"})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Welcome. Agent: our team, Branch: HQ.", out)
	})

	t.Run("nothing configured returns false", func(t *testing.T) {
		q := New()
		_, ok, err := q.Render(nil)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func mustVisible(t *testing.T, sectionID string) Condition {
	t.Helper()
	c, err := Visible(sectionID)
	require.NoError(t, err)
	return c
}

func mustCompleted(t *testing.T, sectionID string) Condition {
	t.Helper()
	c, err := Completed(sectionID)
	require.NoError(t, err)
	return c
}

func visibleIDs(sections []*Section) []string {
	out := make([]string, 0, len(sections))
	for _, s := range sections {
		out = append(out, s.ID)
	}
	return out
}

func TestErrorsUnwrapToSharedKinds(t *testing.T) {
	_, err := NewQuestion("q", "Q", WithOptions([]string{""}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, brokerrors.ErrInvalidArgument))
}
