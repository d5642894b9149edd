// Package nop provides the disabled text generator strategy.
package nop

import (
	"context"

	"github.com/aretw0/twin3/pkg/domain"
	"github.com/aretw0/twin3/pkg/ports"
)

// Generator is the TextGenerator used when no provider is configured.
// Unmatched input then goes straight to the fallback node.
type Generator struct{}

var _ ports.TextGenerator = Generator{}

func (Generator) Available() bool { return false }

func (Generator) Generate(ctx context.Context, text string, history []domain.HistoryEntry) (domain.Reply, error) {
	return domain.Reply{}, ports.ErrGeneratorDisabled
}

func (Generator) Suggest(ctx context.Context, lastReply, context string) ([]string, error) {
	return nil, ports.ErrGeneratorDisabled
}
