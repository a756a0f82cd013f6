package kind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Basic(t *testing.T) {
	def, err := NewBuilder("door").
		InitialState("closed").
		AddState("closed").
		AddState("open").
		AddTransition("closed", "open_door", "open").
		AddTransition("open", "close_door", "closed").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "door", def.Name)
	assert.Equal(t, "closed", def.InitialState)
	assert.ElementsMatch(t, []string{"closed", "open"}, def.States())
	assert.True(t, def.CanTransition("closed", "open_door"))
	assert.False(t, def.CanTransition("closed", "close_door"))
}

func TestBuilder_UndeclaredInitialState(t *testing.T) {
	_, err := NewBuilder("door").InitialState("missing").Build()
	assert.Error(t, err)
}

func TestBuilder_TransitionToUndeclaredState(t *testing.T) {
	_, err := NewBuilder("door").
		InitialState("closed").
		AddState("closed").
		AddTransition("closed", "open_door", "open").
		Build()
	assert.Error(t, err)
}

func TestBuilder_DuplicateTransitionTieBreak(t *testing.T) {
	_, err := NewBuilder("door").
		InitialState("closed").
		AddState("closed").
		AddState("open").
		AddState("jammed").
		AddTransition("closed", "open_door", "open").
		AddTransition("closed", "open_door", "jammed").
		Build()
	assert.Error(t, err)
}

func TestBuilder_IdenticalDuplicateTransitionIsSilentlyKept(t *testing.T) {
	def, err := NewBuilder("door").
		InitialState("closed").
		AddState("closed").
		AddState("open").
		AddTransition("closed", "open_door", "open").
		AddTransition("closed", "open_door", "open").
		Build()
	require.NoError(t, err)
	assert.Len(t, def.Events(), 1)
}

func TestBuilder_GuardsEvaluatedInOrder(t *testing.T) {
	var order []string
	firstGuard := Guarded("first", func(inst Instance, event string, eventData map[string]interface{}) bool {
		order = append(order, "first")
		return true
	})
	secondGuard := Guarded("second", func(inst Instance, event string, eventData map[string]interface{}) bool {
		order = append(order, "second")
		return false
	})

	def, err := NewBuilder("door").
		InitialState("closed").
		AddState("closed").
		AddState("open").
		AddTransition("closed", "open_door", "open", firstGuard, secondGuard).
		Build()
	require.NoError(t, err)

	tr, ok := def.Resolve("closed", "open_door")
	require.True(t, ok)
	for _, g := range tr.Guards {
		g.Guard(nil, "open_door", nil)
	}
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestBuilder_AddComponentDisjointStates(t *testing.T) {
	comp := Component{
		Name:        "lockable",
		States:      []State{{Name: "locked"}},
		Transitions: []Transition{{From: "locked", Event: "unlock", To: "closed"}},
	}

	def, err := NewBuilder("door").
		InitialState("closed").
		AddState("closed").
		AddComponent(comp, false).
		Build()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"closed", "locked"}, def.States())
}

func TestBuilder_AddComponentRejectsStateCollisionWithoutOverride(t *testing.T) {
	comp := Component{
		Name:   "lockable",
		States: []State{{Name: "closed"}},
	}

	_, err := NewBuilder("door").
		InitialState("closed").
		AddState("closed").
		AddComponent(comp, false).
		Build()
	assert.Error(t, err)
}

func TestBuilder_AddComponentAllowsOverride(t *testing.T) {
	comp := Component{
		Name:   "lockable",
		States: []State{{Name: "closed"}},
	}

	def, err := NewBuilder("door").
		InitialState("closed").
		AddState("closed").
		AddComponent(comp, true).
		Build()
	require.NoError(t, err)
	assert.Len(t, def.States(), 1)
}

func TestBuilder_OnEnterOnExitHooksNamed(t *testing.T) {
	def, err := NewBuilder("door").
		InitialState("closed").
		AddState("closed", OnExit("log_exit", func(inst Instance) error { return nil })).
		AddState("open", OnEnter("log_enter", func(inst Instance) error { return nil })).
		AddTransition("closed", "open_door", "open").
		Build()
	require.NoError(t, err)

	closed, ok := def.State("closed")
	require.True(t, ok)
	require.Len(t, closed.OnExit, 1)
	assert.Equal(t, "log_exit", closed.OnExit[0].Name)

	open, ok := def.State("open")
	require.True(t, ok)
	require.Len(t, open.OnEnter, 1)
	assert.Equal(t, "log_enter", open.OnEnter[0].Name)
}

func TestBuilder_EmptyNameRejected(t *testing.T) {
	_, err := NewBuilder("").InitialState("x").AddState("x").Build()
	assert.Error(t, err)
}
