package inventory

import (
	"github.com/aretw0/twin3/pkg/domain"
)

// Builder manages inventory construction in code.
// Nodes keep the order in which they were first added.
type Builder struct {
	order []string
	nodes map[string]*NodeBuilder
}

// NodeBuilder configures one node.
type NodeBuilder struct {
	node    domain.Node
	builder *Builder
}

// NewBuilder creates a new inventory builder.
func NewBuilder() *Builder {
	return &Builder{
		nodes: make(map[string]*NodeBuilder),
	}
}

// Add creates a new node in the inventory with the default delay.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node: domain.Node{
			ID:       id,
			Response: domain.Response{DelayMs: domain.DefaultDelayMs},
		},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Build validates and returns the inventory.
func (b *Builder) Build() (*Inventory, error) {
	nodes := make([]domain.Node, 0, len(b.order))
	for _, id := range b.order {
		nodes = append(nodes, b.nodes[id].node)
	}
	return New(nodes)
}

// On sets the trigger keywords.
func (nb *NodeBuilder) On(triggers ...string) *NodeBuilder {
	nb.node.Triggers = append(nb.node.Triggers, triggers...)
	return nb
}

// Text sets the response text.
func (nb *NodeBuilder) Text(text string) *NodeBuilder {
	nb.node.Response.Text = text
	return nb
}

// Delay sets the simulated latency in milliseconds.
func (nb *NodeBuilder) Delay(ms int) *NodeBuilder {
	nb.node.Response.DelayMs = ms
	return nb
}

// Card attaches a card payload.
func (nb *NodeBuilder) Card(card map[string]any) *NodeBuilder {
	nb.node.Response.Card = card
	return nb
}

// Widget attaches an inline widget.
func (nb *NodeBuilder) Widget(w domain.Widget) *NodeBuilder {
	nb.node.Response.Widget = w
	return nb
}

// Suggest appends a follow-up suggestion.
func (nb *NodeBuilder) Suggest(label, payload string) *NodeBuilder {
	nb.node.Response.SuggestedActions = append(nb.node.Response.SuggestedActions, domain.Suggestion{
		Label:   label,
		Payload: payload,
	})
	return nb
}

// Add continues the chain with another node.
func (nb *NodeBuilder) Add(id string) *NodeBuilder {
	return nb.builder.Add(id)
}

// Build ends the chain and builds the whole inventory.
func (nb *NodeBuilder) Build() (*Inventory, error) {
	return nb.builder.Build()
}
