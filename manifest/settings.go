package manifest

import (
	"fmt"
	"slices"
)

// ValidateValues checks user-supplied setting values against a declared
// schema. Unknown keys are rejected, each value must match its declared
// type, select values must be declared options, and required settings
// without a default must be present. Issues are keyed "values.<name>".
func ValidateValues(schema map[string]SettingDef, values Values) []Issue {
	var issues []Issue

	for name, v := range values {
		path := "values." + name
		def, ok := schema[name]
		if !ok {
			issues = append(issues, Issue{Path: path, Message: "is not declared in the settings schema"})
			continue
		}
		if msg := checkValue(def, v); msg != "" {
			issues = append(issues, Issue{Path: path, Message: msg})
		}
	}

	for name, def := range schema {
		if !def.Required || def.Default != nil {
			continue
		}
		if _, ok := values[name]; !ok {
			issues = append(issues, Issue{Path: "values." + name, Message: "is required"})
		}
	}

	return sortIssues(issues)
}

func checkValue(def SettingDef, v Value) string {
	if err := v.Check(); err != nil {
		return err.Error()
	}
	switch def.Type {
	case SettingString:
		if v.Kind() != KindString {
			return fmt.Sprintf("must be a string, got %s", v.Kind())
		}
	case SettingNumber:
		if v.Kind() != KindNumber {
			return fmt.Sprintf("must be a number, got %s", v.Kind())
		}
	case SettingBoolean:
		if v.Kind() != KindBool {
			return fmt.Sprintf("must be a boolean, got %s", v.Kind())
		}
	case SettingSelect:
		var chosen []string
		switch v.Kind() {
		case KindString:
			chosen = []string{v.str}
		case KindStringList:
			chosen = v.list
		default:
			return fmt.Sprintf("must be an option value or a list of option values, got %s", v.Kind())
		}
		for _, c := range chosen {
			if !def.HasOption(c) {
				return fmt.Sprintf("%q is not one of %s", c, optionList(def.Options))
			}
		}
	default:
		return fmt.Sprintf("has unknown setting type %q", def.Type)
	}
	return ""
}

func optionList(opts []Option) string {
	vals := make([]string, 0, len(opts))
	for _, o := range opts {
		vals = append(vals, o.Value)
	}
	slices.Sort(vals)
	return fmt.Sprintf("%q", vals)
}
