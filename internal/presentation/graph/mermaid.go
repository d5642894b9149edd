package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/twin3/pkg/domain"
	"github.com/aretw0/twin3/pkg/inventory"
)

// GraphOverlay contains conversation data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// OverlayFor builds an overlay from the assistant messages of a conversation.
func OverlayFor(conv *domain.Conversation) *GraphOverlay {
	overlay := &GraphOverlay{}
	for _, msg := range conv.Messages {
		if msg.NodeID == "" {
			continue
		}
		overlay.VisitedNodes = append(overlay.VisitedNodes, msg.NodeID)
		overlay.CurrentNode = msg.NodeID
	}
	return overlay
}

// GenerateMermaid produces a Mermaid flowchart of the inventory.
// It applies semantic styling:
// - Welcome: ((Circle))
// - Fallback: {{Hexagon}}
// - Widget: [[Subroutine]]
// - Reachable by free text: [/Parallelogram/]
// - Default: [Rectangle]
//
// Suggestions naming a node are solid edges. Suggestions routed as free text
// are dotted edges to the node the resolver would pick.
func GenerateMermaid(inv *inventory.Inventory, welcomeID string, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	fallback := inv.Fallback().ID
	for _, node := range inv.Nodes() {
		safeID := sanitizeMermaidID(node.ID)

		opener, closer := "[", "]"
		switch {
		case node.ID == welcomeID:
			opener, closer = "((", "))"
		case node.ID == fallback:
			opener, closer = "{{", "}}"
		case node.Response.Widget != domain.WidgetNone:
			opener, closer = "[[", "]]"
		case len(node.Triggers) > 0:
			opener, closer = "[/", "/]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, node.ID, closer)

		for _, s := range node.Response.SuggestedActions {
			label := strings.ReplaceAll(s.Label, "\"", "'")
			action := inv.ActionFor(s)
			if action.ExplicitNodeID != "" {
				fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, label, sanitizeMermaidID(action.ExplicitNodeID))
				continue
			}
			target := fallback
			if resolved, ok := inv.Resolve(action.FreeText); ok {
				target = resolved.ID
			}
			fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", safeID, label, sanitizeMermaidID(target))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}

		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
