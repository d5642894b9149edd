package inventory_test

import (
	"testing"

	"github.com/aretw0/twin3/pkg/domain"
	"github.com/aretw0/twin3/pkg/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimal(t *testing.T, extra func(b *inventory.Builder)) *inventory.Inventory {
	t.Helper()
	b := inventory.NewBuilder()
	if extra != nil {
		extra(b)
	}
	b.Add(domain.FallbackNodeID).Text("Sorry?")
	inv, err := b.Build()
	require.NoError(t, err)
	return inv
}

func TestResolve_FirstMatchWins(t *testing.T) {
	inv := minimal(t, func(b *inventory.Builder) {
		b.Add("a").On("hi").Text("A")
		b.Add("b").On("hi there").Text("B")
	})

	node, ok := inv.Resolve("hi there")
	require.True(t, ok)
	assert.Equal(t, "a", node.ID)
}

func TestResolve_CaseInsensitiveSubstring(t *testing.T) {
	inv := minimal(t, func(b *inventory.Builder) {
		b.Add("tasks").On("task").Text("Tasks")
	})

	node, ok := inv.Resolve("Show me the TASKS please")
	require.True(t, ok)
	assert.Equal(t, "tasks", node.ID)
}

func TestResolve_NoMatch(t *testing.T) {
	inv := minimal(t, func(b *inventory.Builder) {
		b.Add("tasks").On("task").Text("Tasks")
	})

	_, ok := inv.Resolve("what's the weather like")
	assert.False(t, ok)
}

func TestResolve_EmptyTextNeverMatches(t *testing.T) {
	inv := minimal(t, func(b *inventory.Builder) {
		// A whitespace-free trigger would never match an empty string anyway,
		// but the resolver must not even try.
		b.Add("tasks").On("task").Text("Tasks")
	})

	for _, text := range []string{"", "   ", "\n\t"} {
		_, ok := inv.Resolve(text)
		assert.False(t, ok, "text %q", text)
	}
}

func TestResolve_FallbackIsNeverMatched(t *testing.T) {
	inv := minimal(t, nil)
	_, ok := inv.Resolve("fallback")
	assert.False(t, ok)
}

func TestResolve_Deterministic(t *testing.T) {
	inv, err := inventory.Default()
	require.NoError(t, err)

	inputs := []string{"hello", "show me the matrix", "any rewards?", "zzz", "", "I want to verify"}
	for _, in := range inputs {
		first, ok1 := inv.Resolve(in)
		for i := 0; i < 5; i++ {
			again, ok2 := inv.Resolve(in)
			assert.Equal(t, ok1, ok2)
			assert.Equal(t, first.ID, again.ID)
		}
	}
}

func TestResolve_DoesNotLeakInventory(t *testing.T) {
	inv := minimal(t, func(b *inventory.Builder) {
		b.Add("tasks").On("task").Text("Tasks").Suggest("Rewards", "rewards")
	})

	node, ok := inv.Resolve("task")
	require.True(t, ok)
	node.Triggers[0] = "mutated"
	node.Response.SuggestedActions[0].Label = "mutated"

	again, ok := inv.Resolve("task")
	require.True(t, ok)
	assert.Equal(t, "task", again.Triggers[0])
	assert.Equal(t, "Rewards", again.Response.SuggestedActions[0].Label)
}

func TestNew_Invariants(t *testing.T) {
	tests := []struct {
		name  string
		nodes []domain.Node
	}{
		{
			name:  "Missing Fallback",
			nodes: []domain.Node{{ID: "welcome"}},
		},
		{
			name:  "Duplicate ID",
			nodes: []domain.Node{{ID: "a"}, {ID: "a"}, {ID: domain.FallbackNodeID}},
		},
		{
			name:  "Fallback With Triggers",
			nodes: []domain.Node{{ID: domain.FallbackNodeID, Triggers: []string{"x"}}},
		},
		{
			name:  "Uppercase Trigger",
			nodes: []domain.Node{{ID: "a", Triggers: []string{"Hello"}}, {ID: domain.FallbackNodeID}},
		},
		{
			name:  "Negative Delay",
			nodes: []domain.Node{{ID: "a", Response: domain.Response{DelayMs: -1}}, {ID: domain.FallbackNodeID}},
		},
		{
			name:  "Unknown Widget",
			nodes: []domain.Node{{ID: "a", Response: domain.Response{Widget: "carousel"}}, {ID: domain.FallbackNodeID}},
		},
		{
			name:  "Missing ID",
			nodes: []domain.Node{{}, {ID: domain.FallbackNodeID}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := inventory.New(tt.nodes)
			assert.ErrorIs(t, err, inventory.ErrInvalidInventory)
		})
	}
}

func TestLookup(t *testing.T) {
	inv := minimal(t, func(b *inventory.Builder) {
		b.Add("welcome").Text("Hi")
	})

	node, err := inv.Lookup("welcome")
	require.NoError(t, err)
	assert.Equal(t, "Hi", node.Response.Text)
	assert.Equal(t, domain.DefaultDelayMs, node.Response.DelayMs)

	_, err = inv.Lookup("nope")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)

	assert.Equal(t, domain.FallbackNodeID, inv.Fallback().ID)
}

func TestActionFor(t *testing.T) {
	inv := minimal(t, func(b *inventory.Builder) {
		b.Add("browse_tasks").On("task").Text("Tasks")
	})

	assert.Equal(t, domain.Goto("browse_tasks"), inv.ActionFor(domain.Suggestion{Label: "View Tasks", Payload: "browse_tasks"}))
	assert.Equal(t, domain.Say("Tell me more"), inv.ActionFor(domain.Suggestion{Label: "Tell me more", Payload: "tell_me_more"}))
	assert.Equal(t, domain.Say("tell me more"), inv.ActionFor(domain.Suggestion{Payload: "tell_me_more"}))
}

func TestBuilder_PreservesOrder(t *testing.T) {
	b := inventory.NewBuilder()
	b.Add("z").On("z").Text("Z").
		Add("a").On("a").Text("A").
		Add(domain.FallbackNodeID).Text("?")
	// Re-adding returns the existing node without moving it.
	b.Add("z").Delay(0)

	inv, err := b.Build()
	require.NoError(t, err)

	nodes := inv.Nodes()
	require.Len(t, nodes, 3)
	assert.Equal(t, "z", nodes[0].ID)
	assert.Equal(t, 0, nodes[0].Response.DelayMs)
	assert.Equal(t, "a", nodes[1].ID)
}
