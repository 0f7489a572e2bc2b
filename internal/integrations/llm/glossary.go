package llm

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TopicGlossary folds synonymous model topics onto one canonical keyword.
type TopicGlossary struct {
	Aliases map[string]string `yaml:"aliases"`
	Ignore  []string          `yaml:"ignore"`

	aliases map[string]string
	ignore  map[string]bool
}

func LoadTopicGlossary(path string) (*TopicGlossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topic glossary: %w", err)
	}
	var g TopicGlossary
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse topic glossary yaml: %w", err)
	}
	g.index()
	return &g, nil
}

func (g *TopicGlossary) index() {
	g.aliases = make(map[string]string, len(g.Aliases))
	for from, to := range g.Aliases {
		g.aliases[normalizeTopic(from)] = normalizeTopic(to)
	}
	g.ignore = make(map[string]bool, len(g.Ignore))
	for _, t := range g.Ignore {
		g.ignore[normalizeTopic(t)] = true
	}
}

// Apply maps aliases, drops ignored topics and removes duplicates while
// keeping first-seen order. A nil glossary only normalizes and de-duplicates.
func (g *TopicGlossary) Apply(topics []string) []string {
	out := make([]string, 0, len(topics))
	seen := make(map[string]bool, len(topics))
	for _, t := range topics {
		t = normalizeTopic(t)
		if g != nil {
			if canonical, ok := g.aliases[t]; ok {
				t = canonical
			}
			if g.ignore[t] {
				continue
			}
		}
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func normalizeTopic(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
