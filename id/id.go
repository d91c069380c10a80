// Package id defines TypeID-based identifiers for annex entities.
//
// Extensions and lifecycle events carry a prefix-qualified, K-sortable
// identifier of the form "prefix_suffix" (for example
// "ext_01h455vb4pex5vsknk084sn02q").
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in an ID.
type Prefix string

const (
	// PrefixExtension marks installed extension records.
	PrefixExtension Prefix = "ext"
	// PrefixEvent marks lifecycle event log entries.
	PrefixEvent Prefix = "extevt"
)

// ID is an opaque, prefix-qualified identifier. The zero value is Nil.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// ExtensionID identifies an installed extension (prefix "ext").
type ExtensionID = ID

// EventID identifies a lifecycle event entry (prefix "extevt").
type EventID = ID

// New generates a fresh ID under prefix. It panics on an invalid prefix,
// which is always a programming error.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// NewExtensionID generates a new extension ID.
func NewExtensionID() ID { return New(PrefixExtension) }

// NewEventID generates a new event ID.
func NewEventID() ID { return New(PrefixEvent) }

// Parse parses any TypeID string.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and requires its prefix to equal expected.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if got := parsed.Prefix(); got != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, got)
	}

	return parsed, nil
}

// ParseExtensionID parses an "ext_" identifier.
func ParseExtensionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixExtension) }

// ParseEventID parses an "extevt_" identifier.
func ParseEventID(s string) (ID, error) { return ParseWithPrefix(s, PrefixEvent) }

// MustParse is like Parse but panics on error. Intended for fixtures.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer. Nil is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
