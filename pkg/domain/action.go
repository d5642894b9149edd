package domain

// Action is the inbound request of a turn, supplied by the UI layer on text
// submission or on a suggestion/button click.
type Action struct {
	FreeText        string `json:"text,omitempty"`
	ExplicitNodeID  string `json:"node_id,omitempty"`
	ShowUserMessage bool   `json:"show_user_message"`
}

// Say builds the action for text the user typed.
func Say(text string) Action {
	return Action{FreeText: text, ShowUserMessage: true}
}

// Goto builds the action for an explicit node id.
func Goto(nodeID string) Action {
	return Action{ExplicitNodeID: nodeID}
}

// IsEmpty reports whether the action carries neither text nor a node id.
func (a Action) IsEmpty() bool {
	return a.FreeText == "" && a.ExplicitNodeID == ""
}

// TurnResult is the outbound result of a turn, consumed by the rendering layer.
type TurnResult struct {
	Messages    []Message    `json:"messages"`
	Suggestions []Suggestion `json:"suggestions"`
}
