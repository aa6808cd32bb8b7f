package commands

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juliehq/julie-entrypoint/internal/cli/output"
	"github.com/juliehq/julie-entrypoint/internal/cli/prompt"
	"github.com/juliehq/julie-entrypoint/pkg/config"
)

// scriptedSelector answers menu prompts from a fixed list.
func scriptedSelector(t *testing.T, picks ...int) *[]string {
	t.Helper()
	var labels []string
	orig := selector
	t.Cleanup(func() { selector = orig })
	selector = func(label string, options []prompt.Option) (int, error) {
		labels = append(labels, label)
		if len(picks) == 0 {
			return -1, prompt.ErrAborted
		}
		i := picks[0]
		picks = picks[1:]
		return i, nil
	}
	return &labels
}

func TestMenuLoop_RunsActionsUntilExit(t *testing.T) {
	var ran []string
	action := func(name string, err error) func(context.Context, *config.Config, *output.Printer) error {
		return func(context.Context, *config.Config, *output.Printer) error {
			ran = append(ran, name)
			return err
		}
	}
	actions := []menuAction{
		{Label: "first", Run: action("first", nil)},
		{Label: "failing", Run: action("failing", errors.New("database unreachable"))},
		{Label: "Exit"},
	}
	labels := scriptedSelector(t, 0, 1, 0, 2)
	var out bytes.Buffer

	err := menuLoop(context.Background(), config.GetDefaultConfig(), output.NewPrinter(&out, output.FormatTable, false), actions)

	require.NoError(t, err)
	assert.Equal(t, []string{"first", "failing", "first"}, ran)
	assert.Len(t, *labels, 4)
	assert.Contains(t, out.String(), "database unreachable")
}

func TestMenuLoop_AbortEndsQuietly(t *testing.T) {
	scriptedSelector(t)
	err := menuLoop(context.Background(), config.GetDefaultConfig(), output.NewPrinter(&bytes.Buffer{}, output.FormatTable, false), menuActions())
	assert.NoError(t, err)
}

func TestMenuLoop_AbortedActionReturnsToMenu(t *testing.T) {
	calls := 0
	actions := []menuAction{
		{Label: "confirm", Run: func(context.Context, *config.Config, *output.Printer) error {
			calls++
			return prompt.ErrAborted
		}},
		{Label: "Exit"},
	}
	scriptedSelector(t, 0, 1)
	var out bytes.Buffer

	err := menuLoop(context.Background(), config.GetDefaultConfig(), output.NewPrinter(&out, output.FormatTable, false), actions)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, out.String())
}

func TestMenuActions_LastIsExit(t *testing.T) {
	actions := menuActions()
	require.NotEmpty(t, actions)
	assert.Nil(t, actions[len(actions)-1].Run)
	for _, a := range actions[:len(actions)-1] {
		assert.NotNil(t, a.Run, a.Label)
	}
}
