package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanyki111/workflow-tool/types"
)

func graphConfig() *types.Config {
	return &types.Config{Stages: map[string]types.Stage{
		"plan": {ID: "plan", Label: "Planning", Transitions: []types.Transition{
			{Target: "impl"},
			{Target: "done"},
		}},
		"impl": {ID: "impl", Transitions: []types.Transition{{Target: "done"}}},
		"done": {ID: "done"},
	}}
}

func TestEngine(t *testing.T) {
	e := NewEngine(graphConfig())

	t.Run("Stage", func(t *testing.T) {
		stage, err := e.Stage("plan")
		require.NoError(t, err)
		assert.Equal(t, "Planning", stage.Label)

		_, err = e.Stage("ghost")
		assert.ErrorIs(t, err, ErrStageNotFound)
	})

	t.Run("TransitionsInDeclarationOrder", func(t *testing.T) {
		ts, err := e.Transitions("plan")
		require.NoError(t, err)
		require.Len(t, ts, 2)
		assert.Equal(t, "impl", ts[0].Target)
		assert.Equal(t, "done", ts[1].Target)
	})

	t.Run("FindTransition", func(t *testing.T) {
		tr, ok := e.FindTransition("plan", "done")
		assert.True(t, ok)
		assert.Equal(t, "done", tr.Target)

		_, ok = e.FindTransition("plan", "ghost")
		assert.False(t, ok)
	})

	t.Run("Targets", func(t *testing.T) {
		assert.Equal(t, []string{"impl", "done"}, e.Targets("plan"))
		assert.Empty(t, e.Targets("done"))
	})
}
