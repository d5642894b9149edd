package inventory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/twin3/pkg/domain"
)

// ErrInvalidInventory is returned when the node table violates its invariants.
var ErrInvalidInventory = errors.New("invalid inventory")

// Inventory is an ordered, immutable collection of nodes.
// Safe for concurrent use: it is never mutated after New returns.
type Inventory struct {
	nodes []domain.Node
	index map[string]int
}

// New validates the nodes and returns an Inventory that owns a private copy of them.
//
// Invariants: every id is unique and non-empty, exactly one node has id
// "fallback" and it has no triggers, triggers are non-empty and lowercase,
// delays are non-negative and widgets are known variants.
func New(nodes []domain.Node) (*Inventory, error) {
	inv := &Inventory{
		nodes: make([]domain.Node, 0, len(nodes)),
		index: make(map[string]int, len(nodes)),
	}

	var errs []error
	for i, n := range nodes {
		if n.ID == "" {
			errs = append(errs, fmt.Errorf("node #%d: missing id", i))
			continue
		}
		if _, dup := inv.index[n.ID]; dup {
			errs = append(errs, fmt.Errorf("node %q: duplicate id", n.ID))
			continue
		}
		errs = append(errs, validateNode(n)...)

		inv.index[n.ID] = len(inv.nodes)
		inv.nodes = append(inv.nodes, n.Clone())
	}

	if i, ok := inv.index[domain.FallbackNodeID]; !ok {
		errs = append(errs, fmt.Errorf("missing %q node", domain.FallbackNodeID))
	} else if len(inv.nodes[i].Triggers) > 0 {
		errs = append(errs, fmt.Errorf("%q node must not have triggers", domain.FallbackNodeID))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInventory, errors.Join(errs...))
	}
	return inv, nil
}

func validateNode(n domain.Node) []error {
	var errs []error
	for _, trig := range n.Triggers {
		if strings.TrimSpace(trig) == "" {
			errs = append(errs, fmt.Errorf("node %q: empty trigger", n.ID))
		} else if trig != strings.ToLower(trig) {
			errs = append(errs, fmt.Errorf("node %q: trigger %q must be lowercase", n.ID, trig))
		}
	}
	if n.Response.DelayMs < 0 {
		errs = append(errs, fmt.Errorf("node %q: negative delay %d", n.ID, n.Response.DelayMs))
	}
	if !n.Response.Widget.Valid() {
		errs = append(errs, fmt.Errorf("node %q: unknown widget %q", n.ID, n.Response.Widget))
	}
	for _, s := range n.Response.SuggestedActions {
		if s.Label == "" || s.Payload == "" {
			errs = append(errs, fmt.Errorf("node %q: suggestion needs label and payload", n.ID))
		}
	}
	return errs
}

// Resolve is the Trigger Resolver. It returns the first node, in inventory
// order, for which any trigger is a substring of the lowercased text.
// Empty text never matches.
func (inv *Inventory) Resolve(text string) (domain.Node, bool) {
	normalized := strings.ToLower(text)
	if strings.TrimSpace(normalized) == "" {
		return domain.Node{}, false
	}
	for _, n := range inv.nodes {
		for _, trig := range n.Triggers {
			if strings.Contains(normalized, trig) {
				return n.Clone(), true
			}
		}
	}
	return domain.Node{}, false
}

// Lookup returns the node with the given id.
func (inv *Inventory) Lookup(id string) (domain.Node, error) {
	i, ok := inv.index[id]
	if !ok {
		return domain.Node{}, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
	}
	return inv.nodes[i].Clone(), nil
}

// Has reports whether a node with the given id exists.
func (inv *Inventory) Has(id string) bool {
	_, ok := inv.index[id]
	return ok
}

// Fallback returns the terminal catch-all node. It always exists.
func (inv *Inventory) Fallback() domain.Node {
	return inv.nodes[inv.index[domain.FallbackNodeID]].Clone()
}

// Nodes returns a copy of the nodes in inventory order.
func (inv *Inventory) Nodes() []domain.Node {
	out := make([]domain.Node, len(inv.nodes))
	for i, n := range inv.nodes {
		out[i] = n.Clone()
	}
	return out
}

// Len returns the number of nodes.
func (inv *Inventory) Len() int {
	return len(inv.nodes)
}

// ActionFor maps a clicked suggestion to an inbound action. A payload naming
// a node is routed by id; anything else is routed as free text through the
// resolver, echoing the label the user clicked.
func (inv *Inventory) ActionFor(s domain.Suggestion) domain.Action {
	if inv.Has(s.Payload) {
		return domain.Goto(s.Payload)
	}
	text := s.Label
	if text == "" {
		text = strings.ReplaceAll(s.Payload, "_", " ")
	}
	return domain.Say(text)
}

// DanglingPayloads lists suggestion payloads that look like node ids
// (no spaces) but do not exist. Such payloads fall back to text routing,
// which is usually an authoring mistake.
func (inv *Inventory) DanglingPayloads() []string {
	var out []string
	for _, n := range inv.nodes {
		for _, s := range n.Response.SuggestedActions {
			if strings.Contains(s.Payload, "_") && !strings.Contains(s.Payload, " ") && !inv.Has(s.Payload) {
				out = append(out, fmt.Sprintf("%s -> %s", n.ID, s.Payload))
			}
		}
	}
	return out
}
