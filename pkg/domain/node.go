package domain

// DefaultDelayMs is the simulated thinking latency applied when a node does not set one.
const DefaultDelayMs = 500

// FallbackNodeID is the id of the terminal catch-all node every inventory must define.
const FallbackNodeID = "fallback"

// Widget names an interactive component the rendering layer mounts inline.
// The engine passes it through without interpreting it.
type Widget string

const (
	WidgetNone         Widget = ""
	WidgetVerification Widget = "verification"
	WidgetTwinMatrix   Widget = "twin_matrix"
	WidgetTaskBoard    Widget = "task_board"
	WidgetTaskDetail   Widget = "task_detail"
	WidgetRewards      Widget = "rewards"
	WidgetDashboard    Widget = "dashboard"
	WidgetHumanity     Widget = "humanity_index"
)

var knownWidgets = map[Widget]struct{}{
	WidgetVerification: {},
	WidgetTwinMatrix:   {},
	WidgetTaskBoard:    {},
	WidgetTaskDetail:   {},
	WidgetRewards:      {},
	WidgetDashboard:    {},
	WidgetHumanity:     {},
}

// Valid reports whether w is empty or one of the known widget variants.
func (w Widget) Valid() bool {
	if w == WidgetNone {
		return true
	}
	_, ok := knownWidgets[w]
	return ok
}

// Suggestion is a follow-up choice offered after a turn.
type Suggestion struct {
	Label   string `json:"label" yaml:"label" mapstructure:"label"`
	Payload string `json:"payload" yaml:"payload" mapstructure:"payload"`
}

// Response is what a node shows when it is reached.
type Response struct {
	// Text may contain simple markup (bold markers, line breaks). Opaque to the engine.
	Text string `json:"text" yaml:"text"`

	// DelayMs is the simulated thinking latency before the response is shown.
	DelayMs int `json:"delay_ms" yaml:"delay_ms"`

	// Card is a structured payload for richer visual content.
	Card map[string]any `json:"card,omitempty" yaml:"card,omitempty"`

	// Widget names an inline component to mount after the text.
	Widget Widget `json:"widget,omitempty" yaml:"widget,omitempty"`

	SuggestedActions []Suggestion `json:"suggested_actions,omitempty" yaml:"suggested_actions,omitempty"`
}

// Node is one scripted conversational step of the Interaction Inventory.
type Node struct {
	ID string `json:"id" yaml:"id"`

	// Triggers are lowercase keywords. An empty set means the node is only
	// reachable by explicit id (gate redirects, fallback).
	Triggers []string `json:"triggers,omitempty" yaml:"triggers,omitempty"`

	Response Response `json:"response" yaml:"response"`
}

// HasCard reports whether the node carries a card payload.
func (n Node) HasCard() bool {
	return len(n.Response.Card) > 0
}

// Clone returns a deep copy of the node so callers cannot mutate shared inventory data.
func (n Node) Clone() Node {
	out := n
	if n.Triggers != nil {
		out.Triggers = append([]string(nil), n.Triggers...)
	}
	if n.Response.SuggestedActions != nil {
		out.Response.SuggestedActions = append([]Suggestion(nil), n.Response.SuggestedActions...)
	}
	out.Response.Card = cloneMap(n.Response.Card)
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case map[string]any:
			out[k] = cloneMap(val)
		case []any:
			out[k] = cloneSlice(val)
		default:
			out[k] = v
		}
	}
	return out
}

func cloneSlice(in []any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		switch val := v.(type) {
		case map[string]any:
			out[i] = cloneMap(val)
		case []any:
			out[i] = cloneSlice(val)
		default:
			out[i] = v
		}
	}
	return out
}
