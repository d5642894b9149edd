package inventory

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/aretw0/twin3/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// nodeMetadata mirrors the authoring format of a node.
// It uses "mapstructure" tags to match the YAML keys.
type nodeMetadata struct {
	ID       string           `mapstructure:"id"`
	Triggers []string         `mapstructure:"triggers"`
	Response responseMetadata `mapstructure:"response"`
}

type responseMetadata struct {
	Text             string              `mapstructure:"text"`
	DelayMs          *int                `mapstructure:"delay_ms"`
	Card             map[string]any      `mapstructure:"card"`
	Widget           string              `mapstructure:"widget"`
	SuggestedActions []domain.Suggestion `mapstructure:"suggested_actions"`
}

type document struct {
	Nodes []map[string]any `yaml:"nodes"`
}

// Default returns the built-in twin3 onboarding script.
func Default() (*Inventory, error) {
	return Parse(defaultYAML)
}

// Load reads an inventory from a YAML file.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML inventory document and validates it.
// Nodes keep the order in which they appear in the document.
func Parse(data []byte) (*Inventory, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse inventory: %w", err)
	}

	nodes := make([]domain.Node, 0, len(doc.Nodes))
	for i, raw := range doc.Nodes {
		node, err := decodeNode(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: node #%d: %w", ErrInvalidInventory, i, err)
		}
		nodes = append(nodes, node)
	}
	return New(nodes)
}

func decodeNode(raw map[string]any) (domain.Node, error) {
	var meta nodeMetadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &meta,
		ErrorUnused: true,
	})
	if err != nil {
		return domain.Node{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return domain.Node{}, err
	}

	delay := domain.DefaultDelayMs
	if meta.Response.DelayMs != nil {
		delay = *meta.Response.DelayMs
	}

	return domain.Node{
		ID:       meta.ID,
		Triggers: meta.Triggers,
		Response: domain.Response{
			Text:             meta.Response.Text,
			DelayMs:          delay,
			Card:             meta.Response.Card,
			Widget:           domain.Widget(meta.Response.Widget),
			SuggestedActions: meta.Response.SuggestedActions,
		},
	}, nil
}
