// Package genai implements the live fallback text generator on Google's
// Gemini API.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/twin3/internal/logging"
	"github.com/aretw0/twin3/pkg/domain"
	"github.com/aretw0/twin3/pkg/ports"
	"golang.org/x/time/rate"
	backend "google.golang.org/genai"
)

// Defaults for the Gemini generator.
const (
	DefaultModel             = "gemini-2.5-flash"
	DefaultRequestsPerMinute = 30
	MaxSuggestions           = 4
)

// DefaultSystemPrompt keeps replies short and on topic.
const DefaultSystemPrompt = `You are the twin3 onboarding assistant. twin3 lets people prove they are human,
reveals their Twin Matrix and rewards them for completing tasks.
Answer in at most three short sentences. Use plain markdown. Never invent account data.`

const suggestPrompt = `The assistant just replied:
%s

The user had said:
%s

Propose three or four follow-up options the user might click next.
Each option is at most four words. Write one option per line with no numbering or punctuation.`

// contentGenerator is the subset of the Gemini Models service used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*backend.Content, config *backend.GenerateContentConfig) (*backend.GenerateContentResponse, error)
}

// Generator implements ports.TextGenerator with Gemini.
type Generator struct {
	models  contentGenerator
	model   string
	system  string
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ ports.TextGenerator = (*Generator)(nil)

// Option configures the Generator.
type Option func(*Generator)

// WithModel selects the Gemini model.
func WithModel(model string) Option {
	return func(g *Generator) {
		if model != "" {
			g.model = model
		}
	}
}

// WithSystemPrompt replaces the system instruction.
func WithSystemPrompt(prompt string) Option {
	return func(g *Generator) {
		g.system = prompt
	}
}

// WithRequestsPerMinute throttles calls. Zero or less disables throttling.
func WithRequestsPerMinute(n int) Option {
	return func(g *Generator) {
		if n <= 0 {
			g.limiter = nil
			return
		}
		g.limiter = rate.NewLimiter(rate.Limit(float64(n)/60), n)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New creates a Gemini-backed generator.
func New(ctx context.Context, apiKey string, opts ...Option) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	client, err := backend.NewClient(ctx, &backend.ClientConfig{
		APIKey:  apiKey,
		Backend: backend.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newGenerator(client.Models, opts...), nil
}

func newGenerator(models contentGenerator, opts ...Option) *Generator {
	g := &Generator{
		models: models,
		model:  DefaultModel,
		system: DefaultSystemPrompt,
		logger: logging.NewNop(),
	}
	WithRequestsPerMinute(DefaultRequestsPerMinute)(g)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Available always reports true; failures surface per call.
func (g *Generator) Available() bool {
	return true
}

// Generate answers text given the recent history.
func (g *Generator) Generate(ctx context.Context, text string, history []domain.HistoryEntry) (domain.Reply, error) {
	contents := make([]*backend.Content, 0, len(history)+1)
	for _, h := range history {
		contents = append(contents, backend.NewContentFromText(h.Content, role(h.Role)))
	}
	contents = append(contents, backend.NewContentFromText(text, backend.RoleUser))

	out, err := g.call(ctx, contents, &backend.GenerateContentConfig{
		SystemInstruction: backend.NewContentFromText(g.system, backend.RoleUser),
		Temperature:       backend.Ptr[float32](0.7),
		MaxOutputTokens:   256,
	})
	if err != nil {
		return domain.Reply{}, err
	}
	return domain.Reply{Text: strings.TrimSpace(out)}, nil
}

// Suggest asks for follow-up labels and parses them from the reply lines.
func (g *Generator) Suggest(ctx context.Context, lastReply, userText string) ([]string, error) {
	prompt := fmt.Sprintf(suggestPrompt, lastReply, userText)
	out, err := g.call(ctx, []*backend.Content{
		backend.NewContentFromText(prompt, backend.RoleUser),
	}, &backend.GenerateContentConfig{
		Temperature:     backend.Ptr[float32](0.4),
		MaxOutputTokens: 64,
	})
	if err != nil {
		return nil, err
	}
	return ParseLabels(out), nil
}

func (g *Generator) call(ctx context.Context, contents []*backend.Content, cfg *backend.GenerateContentConfig) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("GenAI rate limit: %w", err)
		}
	}
	resp, err := g.models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("GenAI returned no response")
	}
	g.logger.Debug("genai call completed", "model", g.model, "contents", len(contents))
	return resp.Text(), nil
}

func role(r domain.Role) backend.Role {
	if r == domain.RoleAssistant {
		return backend.RoleModel
	}
	return backend.RoleUser
}

// ParseLabels extracts up to MaxSuggestions labels from a line-oriented reply,
// dropping list markers, quotes and duplicates.
func ParseLabels(text string) []string {
	seen := make(map[string]struct{})
	labels := make([]string, 0, MaxSuggestions)
	for _, line := range strings.Split(text, "\n") {
		label := cleanLabel(line)
		if label == "" {
			continue
		}
		key := strings.ToLower(label)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		labels = append(labels, label)
		if len(labels) == MaxSuggestions {
			break
		}
	}
	return labels
}

func cleanLabel(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "-*•# \t")
	// "1." or "2)" numbering
	if i := strings.IndexAny(s, ".)"); i > 0 && i <= 2 && isDigits(s[:i]) {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`*")
	s = strings.TrimRight(s, ".!?:;,")
	return strings.TrimSpace(s)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
