package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// rulesFile is the layout of the rules file
type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules loads routing rules from a YAML file
func LoadRules(rulesPath string) ([]Rule, error) {
	data, err := os.ReadFile(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", rulesPath, err)
	}

	return file.Rules, nil
}

// validateRules checks that every rule is complete
func validateRules(rules []Rule) error {
	seen := make(map[string]bool, len(rules))
	for i, rule := range rules {
		if rule.Name == "" {
			return fmt.Errorf("rule %d has no name", i)
		}
		if seen[rule.Name] {
			return fmt.Errorf("duplicate rule name %q", rule.Name)
		}
		seen[rule.Name] = true

		if len(rule.Paths) == 0 {
			return fmt.Errorf("rule %q has no paths", rule.Name)
		}

		switch rule.Action {
		case "allow", "deny":
		case "auth":
			if rule.Permission == "" {
				return fmt.Errorf("rule %q requires a permission", rule.Name)
			}
		default:
			return fmt.Errorf("rule %q has unknown action %q", rule.Name, rule.Action)
		}
	}
	return nil
}
