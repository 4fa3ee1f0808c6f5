package snippet

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed data/builtins.yaml
var builtinsYAML []byte

type builtinEntry struct {
	ID       string `yaml:"id"`
	Trigger  string `yaml:"trigger"`
	Content  string `yaml:"content"`
	Category string `yaml:"category"`
}

// BuiltIns returns a fresh copy of the sample snippets seeded into an empty
// library.
func BuiltIns() []Snippet {
	out, err := parseBuiltIns(builtinsYAML)
	if err != nil {
		panic(fmt.Sprintf("snippet: embedded built-ins are invalid: %v", err))
	}
	return out
}

func parseBuiltIns(data []byte) ([]Snippet, error) {
	var entries []builtinEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	out := make([]Snippet, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("built-in %q has no id", e.Trigger)
		}
		if err := Validate(e.Trigger, e.Content); err != nil {
			return nil, fmt.Errorf("built-in %s: %w", e.ID, err)
		}
		out = append(out, Snippet{
			ID:        e.ID,
			Trigger:   e.Trigger,
			Content:   e.Content,
			Category:  NormalizeCategory(e.Category),
			IsBuiltIn: true,
		})
	}
	return out, nil
}
