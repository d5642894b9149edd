package runtime

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/twin3/pkg/domain"
)

// generate answers unmatched free text with the external generator.
// Any failure degrades to the apology message and default suggestions.
func (e *Engine) generate(ctx context.Context, text string, history []domain.HistoryEntry, emit func(...domain.Message), suggest func([]domain.Suggestion)) {
	reply, err := e.callGenerate(ctx, text, history)
	if err == nil && strings.TrimSpace(reply.Text) == "" {
		err = fmt.Errorf("generator returned an empty reply")
	}
	if err != nil {
		e.logger.Warn("text generator failed", "err", err)
		e.emitFallback(ctx, domain.FallbackApology, err)
		emit(domain.AssistantText(e.apology, e.now()))
		suggest(slices.Clone(e.defaults))
		return
	}

	emit(domain.AssistantText(reply.Text, e.now()))

	labels, err := e.callSuggest(ctx, reply.Text, text)
	if err != nil {
		e.logger.Warn("suggestion generation failed", "err", err)
	}
	suggestions := SuggestionsFromLabels(labels)
	if len(suggestions) == 0 {
		suggestions = slices.Clone(e.defaults)
	}
	suggest(suggestions)
	e.emitFallback(ctx, domain.FallbackGenerator, nil)
}

func (e *Engine) callGenerate(ctx context.Context, text string, history []domain.HistoryEntry) (reply domain.Reply, err error) {
	ctx, cancel := e.generatorContext(ctx)
	defer cancel()
	defer recoverInto(&err)
	return e.generator.Generate(ctx, text, history)
}

func (e *Engine) callSuggest(ctx context.Context, lastReply, userText string) (labels []string, err error) {
	ctx, cancel := e.generatorContext(ctx)
	defer cancel()
	defer recoverInto(&err)
	return e.generator.Suggest(ctx, lastReply, userText)
}

func (e *Engine) generatorContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.generatorTimeout > 0 {
		return context.WithTimeout(ctx, e.generatorTimeout)
	}
	return context.WithCancel(ctx)
}

// recoverInto turns a panic in a collaborator into an error so it never
// escapes into the conversation.
func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("text generator panicked: %v", r)
	}
}

// SuggestionsFromLabels pairs each non-empty label with its slug payload.
func SuggestionsFromLabels(labels []string) []domain.Suggestion {
	out := make([]domain.Suggestion, 0, len(labels))
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		out = append(out, domain.Suggestion{Label: label, Payload: Slugify(label)})
	}
	return out
}

// Slugify lowercases label and replaces each run of whitespace with an underscore.
func Slugify(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), "_")
}
