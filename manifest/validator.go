package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed schema/manifest.schema.json
var schemaBytes []byte

const schemaURL = "https://schemas.xraph.dev/annex/extension-manifest.json"

var (
	compiledSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
	printer        = message.NewPrinter(language.English)
)

// ErrInvalid is matched by every *ValidationError.
var ErrInvalid = errors.New("manifest: invalid manifest")

// Issue is one field-level violation. Path is dotted ("author.email",
// "permissions.1"); the empty path refers to the document itself.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Keyword string `json:"keyword,omitempty"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// ValidationError carries the issues that rejected a manifest.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	switch len(e.Issues) {
	case 0:
		return ErrInvalid.Error()
	case 1:
		return ErrInvalid.Error() + ": " + e.Issues[0].String()
	default:
		return fmt.Sprintf("%s: %s (and %d more)", ErrInvalid, e.Issues[0], len(e.Issues)-1)
	}
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Result is the outcome of [Validate].
type Result struct {
	OK       bool      `json:"ok"`
	Manifest *Manifest `json:"manifest,omitempty"`
	Errors   []Issue   `json:"errors,omitempty"`
}

// Validate checks raw and reports every violation. raw may be a decoded
// document (map[string]any), JSON text as a string, []byte or
// json.RawMessage, or a Manifest value.
func Validate(raw any) *Result {
	m, issues := validate(raw)
	if len(issues) > 0 {
		return &Result{Errors: issues}
	}
	return &Result{OK: true, Manifest: m}
}

// Parse checks raw and returns the typed manifest. On failure the returned
// *ValidationError holds only the first violation in path order.
func Parse(raw any) (*Manifest, error) {
	m, issues := validate(raw)
	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues[:1]}
	}
	return m, nil
}

// MustParse is like Parse but panics on error. Intended for fixtures and
// built-in system extensions.
func MustParse(raw any) *Manifest {
	m, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return m
}

func getSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
		if err != nil {
			compileErr = fmt.Errorf("manifest: unmarshal schema: %w", err)
			return
		}

		c := jsonschema.NewCompiler()
		c.DefaultDraft(jsonschema.Draft2020)
		c.AssertFormat()
		if err := c.AddResource(schemaURL, doc); err != nil {
			compileErr = fmt.Errorf("manifest: add schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile(schemaURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("manifest: compile schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

func validate(raw any) (*Manifest, []Issue) {
	data, err := toJSON(raw)
	if err != nil {
		return nil, []Issue{{Message: err.Error()}}
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, []Issue{{Message: "document is not valid JSON: " + err.Error()}}
	}

	sch, err := getSchema()
	if err != nil {
		// The schema is embedded; failing to compile it is a build defect.
		panic(err)
	}

	var issues []Issue
	if err := sch.Validate(inst); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return nil, []Issue{{Message: err.Error()}}
		}
		issues = append(issues, extractIssues(ve)...)
	}
	issues = append(issues, checkSettings(inst)...)
	if len(issues) > 0 {
		return nil, sortIssues(issues)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, []Issue{{Message: err.Error()}}
	}
	m.normalize()

	return &m, nil
}

func toJSON(raw any) ([]byte, error) {
	switch v := raw.(type) {
	case nil:
		return []byte("null"), nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	case Manifest:
		v.normalize()
		return json.Marshal(v)
	case *Manifest:
		if v == nil {
			return []byte("null"), nil
		}
		cp := *v
		cp.normalize()
		return json.Marshal(cp)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("document is not serializable: %w", err)
		}
		return data, nil
	}
}

// extractIssues flattens the validation error tree into leaf issues.
func extractIssues(ve *jsonschema.ValidationError) []Issue {
	var issues []Issue
	collectIssues(ve, &issues)
	if len(issues) == 0 {
		return []Issue{{Path: joinPath(ve.InstanceLocation), Message: ve.Error()}}
	}
	return dedupe(issues)
}

func collectIssues(ve *jsonschema.ValidationError, issues *[]Issue) {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			collectIssues(cause, issues)
		}
		return
	}
	if ve.ErrorKind == nil {
		return
	}

	path := joinPath(ve.InstanceLocation)
	keyword := ""
	if kw := ve.ErrorKind.KeywordPath(); len(kw) > 0 {
		keyword = kw[len(kw)-1]
	}

	switch k := ve.ErrorKind.(type) {
	case *kind.Required:
		for _, missing := range k.Missing {
			*issues = append(*issues, Issue{
				Path:    joinPath(append(slices.Clone(ve.InstanceLocation), missing)),
				Message: "is required",
				Keyword: keyword,
			})
		}
		return
	case *kind.Pattern:
		if path == "version" {
			*issues = append(*issues, Issue{
				Path:    path,
				Message: fmt.Sprintf("%q is not a MAJOR.MINOR.PATCH version", k.Got),
				Keyword: keyword,
			})
			return
		}
	case *kind.UniqueItems:
		*issues = append(*issues, Issue{
			Path:    path,
			Message: fmt.Sprintf("duplicate entries at %d and %d", k.Duplicates[0], k.Duplicates[1]),
			Keyword: keyword,
		})
		return
	}

	if keyword == "allOf" || keyword == "$ref" || keyword == "" {
		return
	}

	*issues = append(*issues, Issue{
		Path:    path,
		Message: ve.ErrorKind.LocalizedString(printer),
		Keyword: keyword,
	})
}

// checkSettings applies the rules the schema cannot express. It works on
// the generic document so it can run alongside structural failures.
func checkSettings(inst any) []Issue {
	doc, _ := inst.(map[string]any)
	settings, _ := doc["settings"].(map[string]any)
	schema, _ := settings["schema"].(map[string]any)

	var issues []Issue
	for name, rawDef := range schema {
		def, ok := rawDef.(map[string]any)
		if !ok {
			continue
		}
		base := "settings.schema." + name
		typ, _ := def["type"].(string)

		var values []string
		if typ == string(SettingSelect) {
			opts, _ := def["options"].([]any)
			if len(opts) == 0 {
				issues = append(issues, Issue{
					Path:    base + ".options",
					Message: "select settings require at least one option",
					Keyword: "options",
				})
			}
			seen := map[string]bool{}
			for i, o := range opts {
				om, _ := o.(map[string]any)
				v, ok := om["value"].(string)
				if !ok {
					continue
				}
				if seen[v] {
					issues = append(issues, Issue{
						Path:    fmt.Sprintf("%s.options.%d.value", base, i),
						Message: fmt.Sprintf("duplicate option value %q", v),
						Keyword: "options",
					})
				}
				seen[v] = true
				values = append(values, v)
			}
		}

		dflt, has := def["default"]
		if !has || !SettingType(typ).IsValid() {
			continue
		}
		if msg := checkDefault(SettingType(typ), dflt, values); msg != "" {
			issues = append(issues, Issue{Path: base + ".default", Message: msg, Keyword: "default"})
		}
	}
	return issues
}

func checkDefault(typ SettingType, dflt any, options []string) string {
	switch typ {
	case SettingString:
		if _, ok := dflt.(string); !ok {
			return "default must be a string"
		}
	case SettingNumber:
		if _, ok := dflt.(json.Number); !ok {
			return "default must be a number"
		}
	case SettingBoolean:
		if _, ok := dflt.(bool); !ok {
			return "default must be a boolean"
		}
	case SettingSelect:
		switch d := dflt.(type) {
		case string:
			if len(options) > 0 && !slices.Contains(options, d) {
				return fmt.Sprintf("default %q is not one of the options", d)
			}
		case []any:
			for _, item := range d {
				s, ok := item.(string)
				if ok && len(options) > 0 && !slices.Contains(options, s) {
					return fmt.Sprintf("default %q is not one of the options", s)
				}
			}
		default:
			return "default must be an option value or a list of option values"
		}
	}
	return ""
}

func joinPath(loc []string) string { return strings.Join(loc, ".") }

func dedupe(issues []Issue) []Issue {
	seen := make(map[string]bool, len(issues))
	out := issues[:0]
	for _, issue := range issues {
		key := issue.Path + "|" + issue.Keyword + "|" + issue.Message
		if !seen[key] {
			seen[key] = true
			out = append(out, issue)
		}
	}
	return out
}

func sortIssues(issues []Issue) []Issue {
	slices.SortStableFunc(issues, func(a, b Issue) int {
		if c := strings.Compare(a.Path, b.Path); c != 0 {
			return c
		}
		return strings.Compare(a.Message, b.Message)
	})
	return issues
}
