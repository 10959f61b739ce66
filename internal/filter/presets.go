package filter

import (
	"fmt"
	"sort"
)

// Preset is a named filter offered to the user.
type Preset struct {
	Name  string
	Label string
	Token string
}

var presets = []Preset{
	{Name: "none", Label: "Default", Token: "none"},
	{Name: "korean-bright", Label: "Bright (Korean)", Token: "brightness(1.08) contrast(1.04) saturate(0.95)"},
	{Name: "vivid", Label: "Vivid", Token: "brightness(1.07) contrast(1.05) saturate(1.15)"},
	{Name: "soft", Label: "Soft", Token: "brightness(1.05) contrast(0.98) saturate(0.95) blur(0.4px)"},
	{Name: "vintage", Label: "Vintage", Token: "sepia(0.25) contrast(1.05) brightness(0.98) saturate(0.85)"},
	{Name: "film", Label: "Film", Token: "contrast(1.06) saturate(0.9) sepia(0.15) brightness(1.03)"},
	{Name: "mono", Label: "Black & White", Token: "grayscale(100%) contrast(1.05) brightness(1.05)"},
	{Name: "classic", Label: "Classic", Token: "sepia(0.6) contrast(1.03) brightness(1.02)"},
}

// Presets returns the preset catalog in display order.
func Presets() []Preset {
	return append([]Preset(nil), presets...)
}

// Names возвращает имена пресетов по алфавиту
func Names() []string {
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.Name
	}
	sort.Strings(names)
	return names
}

// Resolve принимает имя пресета или строку фильтра
func Resolve(nameOrToken string) (Filter, error) {
	for _, p := range presets {
		if p.Name == nameOrToken {
			f, err := Parse(p.Token)
			if err != nil {
				return nil, fmt.Errorf("preset %s: %w", p.Name, err)
			}
			return f, nil
		}
	}
	return Parse(nameOrToken)
}
