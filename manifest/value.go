package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
)

// ValueKind discriminates the variants a setting value can hold.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindStringList
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindStringList:
		return "string list"
	default:
		return "invalid"
	}
}

// Value is a setting value: a string, a number, a boolean or a list of
// strings. The zero Value is invalid.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	list []string
}

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric Value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Check reports whether v can be stored: it must hold one of the variants,
// and numbers must be finite.
func (v Value) Check() error {
	switch v.kind {
	case KindInvalid:
		return fmt.Errorf("manifest: setting value is empty")
	case KindNumber:
		if math.IsInf(v.num, 0) || math.IsNaN(v.num) {
			return fmt.Errorf("manifest: setting value %v is not a finite number", v.num)
		}
	}
	return nil
}

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// StringList returns a list Value. The slice is copied.
func StringList(items ...string) Value {
	return Value{kind: KindStringList, list: append([]string{}, items...)}
}

// Kind reports the held variant.
func (v Value) Kind() ValueKind { return v.kind }

// AsString returns the string variant.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber returns the numeric variant.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsBool returns the boolean variant.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsStringList returns a copy of the list variant.
func (v Value) AsStringList() ([]string, bool) {
	if v.kind != KindStringList {
		return nil, false
	}
	return slices.Clone(v.list), true
}

// Interface returns the value as a plain Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindStringList:
		return slices.Clone(v.list)
	default:
		return nil
	}
}

// Equal reports whether v and o hold the same variant and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindStringList:
		return slices.Equal(v.list, o.list)
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindStringList:
		return fmt.Sprintf("%q", v.list)
	default:
		return "<invalid>"
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindStringList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	default:
		return nil, fmt.Errorf("manifest: cannot marshal invalid setting value")
	}
}

// UnmarshalJSON accepts a JSON string, number, boolean or array of strings.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("manifest: empty setting value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '[':
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("manifest: setting list must contain only strings: %w", err)
		}
		*v = StringList(list...)
	case 'n':
		return fmt.Errorf("manifest: setting value cannot be null")
	case '{':
		return fmt.Errorf("manifest: setting value cannot be an object")
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Number(n)
	}
	return nil
}

// ValueOf converts a decoded JSON value into a Value. Non-finite numbers
// are rejected.
func ValueOf(x any) (Value, error) {
	v, err := valueOf(x)
	if err != nil {
		return Value{}, err
	}
	if err := v.Check(); err != nil {
		return Value{}, err
	}
	return v, nil
}

func valueOf(x any) (Value, error) {
	switch t := x.(type) {
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("manifest: invalid number %q: %w", t, err)
		}
		return Number(n), nil
	case []string:
		return StringList(t...), nil
	case []any:
		list := make([]string, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return Value{}, fmt.Errorf("manifest: list item %d is %T, want string", i, item)
			}
			list = append(list, s)
		}
		return StringList(list...), nil
	default:
		return Value{}, fmt.Errorf("manifest: unsupported setting value of type %T", x)
	}
}

// Values is a map of setting values keyed by setting name.
type Values map[string]Value

// Check returns an issue for every value that cannot be stored, keyed
// "values.<name>". It ignores any schema.
func (vs Values) Check() []Issue {
	var issues []Issue
	for name, v := range vs {
		if err := v.Check(); err != nil {
			issues = append(issues, Issue{Path: "values." + name, Message: err.Error()})
		}
	}
	return sortIssues(issues)
}

// Clone returns a copy of vs. A nil map clones to nil.
func (vs Values) Clone() Values {
	if vs == nil {
		return nil
	}
	out := make(Values, len(vs))
	for k, v := range vs {
		if v.kind == KindStringList {
			v.list = slices.Clone(v.list)
		}
		out[k] = v
	}
	return out
}
