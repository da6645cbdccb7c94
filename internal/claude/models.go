package claude

import (
	"fmt"
	"strings"
)

// Model is a short alias for a Claude model.
type Model string

const (
	ModelHaiku  Model = "haiku"
	ModelSonnet Model = "sonnet"
	ModelOpus   Model = "opus"
)

// DefaultModel is used when no model is specified anywhere.
const DefaultModel = ModelSonnet

// modelIDs maps aliases to full model identifiers, used for pricing
// and for the --model flag of the claude CLI. Never mutated after init.
var modelIDs = map[Model]string{
	ModelHaiku:  "claude-haiku-4-5-20251001",
	ModelSonnet: "claude-sonnet-4-5-20250929",
	ModelOpus:   "claude-opus-4-5-20251101",
}

// ParseModel converts a case-insensitive alias string into a Model.
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "haiku":
		return ModelHaiku, nil
	case "sonnet":
		return ModelSonnet, nil
	case "opus":
		return ModelOpus, nil
	default:
		return "", fmt.Errorf("unknown model: %s (use haiku, sonnet, or opus)", s)
	}
}

func (m Model) String() string {
	return string(m)
}

// ID returns the full model identifier for the alias.
func (m Model) ID() string {
	if id, ok := modelIDs[m]; ok {
		return id
	}
	return modelIDs[DefaultModel]
}
