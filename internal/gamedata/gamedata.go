// Package gamedata embeds the default data shipped with the server binary:
// fallback message templates and room-kind map colors. Database rows override
// both at startup.
package gamedata

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

//go:embed colors.yaml
var colorsYAML []byte

// DefaultTemplates returns the embedded template set keyed by template name.
func DefaultTemplates() (map[string]string, error) {
	out := map[string]string{}
	if err := yaml.Unmarshal(templatesYAML, &out); err != nil {
		return nil, fmt.Errorf("parse embedded templates: %w", err)
	}
	return out, nil
}

// DefaultRoomTypeColors returns the embedded room-kind → color table.
func DefaultRoomTypeColors() (map[string]string, error) {
	out := map[string]string{}
	if err := yaml.Unmarshal(colorsYAML, &out); err != nil {
		return nil, fmt.Errorf("parse embedded colors: %w", err)
	}
	return out, nil
}
