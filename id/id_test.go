package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/annex/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"ExtensionID", id.NewExtensionID, "ext_"},
		{"EventID", id.NewEventID, "extevt_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	ext := id.NewExtensionID()
	parsed, err := id.ParseExtensionID(ext.String())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.String() != ext.String() {
		t.Errorf("round-trip mismatch: %q != %q", parsed.String(), ext.String())
	}

	evt := id.NewEventID()
	if _, err := id.ParseEventID(evt.String()); err != nil {
		t.Fatalf("parse event id: %v", err)
	}
}

func TestCrossTypeRejection(t *testing.T) {
	if _, err := id.ParseExtensionID(id.NewEventID().String()); err == nil {
		t.Error("ParseExtensionID accepted an event id")
	}
	if _, err := id.ParseEventID(id.NewExtensionID().String()); err == nil {
		t.Error("ParseEventID accepted an extension id")
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "ext_", "not an id", "EXT_01h455vb4pex5vsknk084sn02q"} {
		if _, err := id.Parse(in); err == nil {
			t.Errorf("Parse(%q): expected error", in)
		}
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" || i.Prefix() != "" {
		t.Errorf("nil id rendered as %q / %q", i.String(), i.Prefix())
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := id.NewExtensionID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if err := restored.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}

	var empty id.ID
	if err := empty.UnmarshalText(nil); err != nil {
		t.Fatalf("UnmarshalText(nil): %v", err)
	}
	if !empty.IsNil() {
		t.Error("expected nil after empty unmarshal")
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewEventID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if err := scanned.Scan(val); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	var fromBytes id.ID
	if err := fromBytes.Scan([]byte(original.String())); err != nil {
		t.Fatalf("Scan([]byte) failed: %v", err)
	}

	val, err = id.Nil.Value()
	if err != nil || val != nil {
		t.Errorf("Nil.Value() = %v, %v", val, err)
	}

	if err := scanned.Scan(42); err == nil {
		t.Error("expected error scanning int")
	}
}

func TestUniqueness(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for range 1000 {
		s := id.NewExtensionID().String()
		if seen[s] {
			t.Fatalf("duplicate id %q", s)
		}
		seen[s] = true
	}
}
