package manifest_test

import (
	"testing"

	"github.com/xraph/annex/manifest"
)

func settingsSchema() map[string]manifest.SettingDef {
	dflt := manifest.String("metric")
	return map[string]manifest.SettingDef{
		"apiKey":  {Type: manifest.SettingString, Required: true},
		"refresh": {Type: manifest.SettingNumber},
		"alerts":  {Type: manifest.SettingBoolean},
		"units": {
			Type:     manifest.SettingSelect,
			Required: true,
			Default:  &dflt,
			Options: []manifest.Option{
				{Label: "Metric", Value: "metric"},
				{Label: "Imperial", Value: "imperial"},
			},
		},
	}
}

func TestValidateValues_Accepts(t *testing.T) {
	values := manifest.Values{
		"apiKey":  manifest.String("k"),
		"refresh": manifest.Number(30),
		"alerts":  manifest.Bool(false),
		"units":   manifest.StringList("metric", "imperial"),
	}
	if issues := manifest.ValidateValues(settingsSchema(), values); len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}

	// units is required but has a default.
	if issues := manifest.ValidateValues(settingsSchema(), manifest.Values{"apiKey": manifest.String("k")}); len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
}

func TestValidateValues_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		values manifest.Values
		path   string
	}{
		{"unknown key", manifest.Values{"apiKey": manifest.String("k"), "color": manifest.String("red")}, "values.color"},
		{"wrong kind", manifest.Values{"apiKey": manifest.Number(1)}, "values.apiKey"},
		{"missing required", manifest.Values{"refresh": manifest.Number(1)}, "values.apiKey"},
		{"bool as string", manifest.Values{"apiKey": manifest.String("k"), "alerts": manifest.String("true")}, "values.alerts"},
		{"select outside options", manifest.Values{"apiKey": manifest.String("k"), "units": manifest.String("kelvin")}, "values.units"},
		{"select list outside options", manifest.Values{"apiKey": manifest.String("k"), "units": manifest.StringList("metric", "kelvin")}, "values.units"},
		{"select as number", manifest.Values{"apiKey": manifest.String("k"), "units": manifest.Number(1)}, "values.units"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := manifest.ValidateValues(settingsSchema(), tt.values)
			if !hasIssue(issues, tt.path) {
				t.Errorf("expected issue at %q, got %v", tt.path, issues)
			}
		})
	}
}

func TestValidateValues_EmptySchema(t *testing.T) {
	if issues := manifest.ValidateValues(nil, manifest.Values{}); len(issues) != 0 {
		t.Errorf("empty values against empty schema: %v", issues)
	}
	if issues := manifest.ValidateValues(nil, manifest.Values{"x": manifest.Bool(true)}); !hasIssue(issues, "values.x") {
		t.Errorf("expected values.x issue, got %v", issues)
	}
}
