package alerting

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadRulesFromFile loads alert rules from a YAML file.
func LoadRulesFromFile(path string, predicates *Registry) ([]*Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()

	return LoadRules(f, predicates)
}

// LoadRules loads and validates alert rules from a reader.
func LoadRules(r io.Reader, predicates *Registry) ([]*Rule, error) {
	var config RulesConfig
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}

	if err := ValidateRules(config.Rules, predicates); err != nil {
		return nil, err
	}
	return config.Rules, nil
}
