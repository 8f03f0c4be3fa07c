package catalog

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/navcare/navigator/internal/domain/navigation"
)

type fileStep struct {
	StepKey              string `mapstructure:"step_key"`
	StepName             string `mapstructure:"step_name"`
	StepDescription      string `mapstructure:"step_description"`
	IsRequired           bool   `mapstructure:"is_required"`
	DefaultDueOffsetDays *int   `mapstructure:"default_due_offset_days"`
}

// catalogFile is the on-disk shape: cancer type -> stage name -> steps.
type catalogFile struct {
	Templates map[string]map[string][]fileStep `mapstructure:"templates"`
}

// LoadFile reads a catalog definition file (YAML or JSON) and merges it over
// the built-in defaults. A cancer type present in the file replaces that
// type's built-in template wholesale; absent types keep their defaults.
func LoadFile(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var file catalogFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	base := Default()
	for cancerType, stages := range file.Templates {
		parsed := make(map[navigation.JourneyStage][]navigation.StepDefinition, len(stages))
		for stageName, steps := range stages {
			stage, err := navigation.ParseStage(stageName)
			if err != nil {
				return nil, fmt.Errorf("catalog template %q: %w", cancerType, err)
			}
			defs := make([]navigation.StepDefinition, 0, len(steps))
			for _, s := range steps {
				if s.StepKey == "" || s.StepName == "" {
					return nil, fmt.Errorf("catalog template %q stage %s: step_key and step_name are required", cancerType, stage)
				}
				defs = append(defs, navigation.StepDefinition{
					StepKey:              s.StepKey,
					StepName:             s.StepName,
					StepDescription:      s.StepDescription,
					IsRequired:           s.IsRequired,
					DefaultDueOffsetDays: s.DefaultDueOffsetDays,
				})
			}
			parsed[stage] = defs
		}
		base.templates[NormalizeCancerType(cancerType)] = parsed
	}
	return base, nil
}
