package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseFile loads a rule mapping from a YAML file and validates it.
// Used by the offline rewrite CLI; the HTTP gateway feeds Parse directly
// from the decoded request body.
func ParseFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule YAML: %w", err)
	}

	return Parse(raw)
}
