package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/twin3/pkg/domain"
	"github.com/aretw0/twin3/pkg/ports"
)

// Mask replaces every redacted span.
const Mask = "***"

// DefaultPIIPatterns match email addresses and phone numbers typed by users.
var DefaultPIIPatterns = []string{
	`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`,
	`\+?\d[\d\s\-()]{7,}\d`,
}

type piiMiddleware struct {
	next     ports.ConversationStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware masks spans of user messages matching the patterns before
// they reach the store. The in-memory conversation is left untouched.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.ConversationStore) ports.ConversationStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, sessionID string, conv *domain.Conversation) error {
	cloned := conv.Clone()
	for i, msg := range cloned.Messages {
		if msg.Role != domain.RoleUser {
			continue
		}
		cloned.Messages[i].Content = m.mask(msg.Content)
	}
	return m.next.Save(ctx, sessionID, cloned)
}

func (m *piiMiddleware) mask(s string) string {
	for _, p := range m.patterns {
		s = p.ReplaceAllString(s, Mask)
	}
	return s
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
