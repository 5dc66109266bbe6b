package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type templatesFile struct {
	Templates []TemplateConfig `yaml:"templates"`
}

// Defaults returns the built-in template configs.
func Defaults() ([]TemplateConfig, error) {
	var f templatesFile
	if err := yaml.Unmarshal(defaultsYAML, &f); err != nil {
		return nil, fmt.Errorf("failed to parse default templates: %w", err)
	}
	return f.Templates, nil
}
