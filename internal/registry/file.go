package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type fileLayout struct {
	Sensors []Definition `yaml:"sensors"`
}

// LoadFile reads a YAML registry of the form `sensors: [...]`.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML registry document.
func Parse(raw []byte) (*Registry, error) {
	var layout fileLayout
	if err := yaml.Unmarshal(raw, &layout); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	if len(layout.Sensors) == 0 {
		return nil, fmt.Errorf("%w: registry declares no sensors", ErrInvalidDefinition)
	}
	return New(layout.Sensors)
}
