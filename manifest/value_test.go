package manifest_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/xraph/annex/manifest"
)

func TestValueJSON(t *testing.T) {
	tests := []struct {
		in   string
		want manifest.Value
	}{
		{`"metric"`, manifest.String("metric")},
		{`12.5`, manifest.Number(12.5)},
		{`-3`, manifest.Number(-3)},
		{`true`, manifest.Bool(true)},
		{`false`, manifest.Bool(false)},
		{`["a","b"]`, manifest.StringList("a", "b")},
		{`[]`, manifest.StringList()},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var v manifest.Value
			if err := json.Unmarshal([]byte(tt.in), &v); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !v.Equal(tt.want) {
				t.Fatalf("got %v, want %v", v, tt.want)
			}

			out, err := json.Marshal(v)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var back manifest.Value
			if err := json.Unmarshal(out, &back); err != nil || !back.Equal(v) {
				t.Errorf("re-decode of %s gave %v, %v", out, back, err)
			}
		})
	}
}

func TestValueJSONRejects(t *testing.T) {
	for _, in := range []string{`null`, `{"a":1}`, `[1,2]`, `["a",true]`} {
		var v manifest.Value
		if err := json.Unmarshal([]byte(in), &v); err == nil {
			t.Errorf("%s: expected error, got %v", in, v)
		}
	}

	if _, err := json.Marshal(manifest.Value{}); err == nil {
		t.Error("marshalling the zero Value should fail")
	}
}

func TestValueAccessors(t *testing.T) {
	v := manifest.StringList("x", "y")
	list, ok := v.AsStringList()
	if !ok || len(list) != 2 {
		t.Fatalf("AsStringList = %v, %v", list, ok)
	}
	list[0] = "mutated"
	if again, _ := v.AsStringList(); again[0] != "x" {
		t.Error("AsStringList must return a copy")
	}

	if _, ok := v.AsString(); ok {
		t.Error("list reported as string")
	}
	if n, ok := manifest.Number(2).AsNumber(); !ok || n != 2 {
		t.Errorf("AsNumber = %v, %v", n, ok)
	}
	if b, ok := manifest.Bool(true).AsBool(); !ok || !b {
		t.Errorf("AsBool = %v, %v", b, ok)
	}
	if manifest.String("1").Equal(manifest.Number(1)) {
		t.Error("values of different kinds compared equal")
	}
}

func TestValueOf(t *testing.T) {
	tests := []struct {
		in   any
		want manifest.Value
	}{
		{"s", manifest.String("s")},
		{true, manifest.Bool(true)},
		{3, manifest.Number(3)},
		{int64(4), manifest.Number(4)},
		{2.5, manifest.Number(2.5)},
		{json.Number("7"), manifest.Number(7)},
		{[]any{"a", "b"}, manifest.StringList("a", "b")},
		{[]string{"c"}, manifest.StringList("c")},
	}
	for _, tt := range tests {
		got, err := manifest.ValueOf(tt.in)
		if err != nil {
			t.Errorf("ValueOf(%#v): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ValueOf(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, in := range []any{nil, map[string]any{}, []any{1}} {
		if _, err := manifest.ValueOf(in); err == nil {
			t.Errorf("ValueOf(%#v): expected error", in)
		}
	}
}

func TestValuesClone(t *testing.T) {
	orig := manifest.Values{"tags": manifest.StringList("a")}
	cp := orig.Clone()
	cp["tags"] = manifest.StringList("b")
	cp["new"] = manifest.Bool(true)

	if !orig["tags"].Equal(manifest.StringList("a")) || len(orig) != 1 {
		t.Errorf("clone aliased the original: %v", orig)
	}
	if manifest.Values(nil).Clone() != nil {
		t.Error("nil should clone to nil")
	}
}

func TestValueCheck(t *testing.T) {
	for _, v := range []manifest.Value{
		manifest.String(""),
		manifest.Number(0),
		manifest.Bool(false),
		manifest.StringList(),
	} {
		if err := v.Check(); err != nil {
			t.Errorf("%v: %v", v, err)
		}
	}

	for _, v := range []manifest.Value{
		{},
		manifest.Number(math.Inf(1)),
		manifest.Number(math.Inf(-1)),
		manifest.Number(math.NaN()),
	} {
		if err := v.Check(); err == nil {
			t.Errorf("%v: expected error", v)
		}
	}

	issues := manifest.Values{"ok": manifest.Number(1), "bad": manifest.Number(math.NaN())}.Check()
	if len(issues) != 1 || issues[0].Path != "values.bad" {
		t.Errorf("Values.Check = %v", issues)
	}
}

func TestValueOf_NonFinite(t *testing.T) {
	for _, x := range []any{math.Inf(1), math.NaN(), float32(math.Inf(-1))} {
		if _, err := manifest.ValueOf(x); err == nil {
			t.Errorf("ValueOf(%v): expected error", x)
		}
	}
}
