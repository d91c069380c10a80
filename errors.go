package annex

import (
	"errors"
	"fmt"

	"github.com/xraph/annex/id"
	"github.com/xraph/annex/manifest"
)

// Kind is the stable, machine-readable class of an engine error.
type Kind string

const (
	// KindValidation: the input broke a manifest, settings or storage rule.
	KindValidation Kind = "validation"
	// KindNotFound: the addressed extension does not exist.
	KindNotFound Kind = "not_found"
	// KindSystemProtected: uninstall was attempted on a system extension.
	KindSystemProtected Kind = "system_extension_protected"
	// KindNotConfigurable: settings were written to an extension that
	// declares no configurable schema.
	KindNotConfigurable Kind = "not_configurable"
	// KindConflict: the record changed underneath a conditional update.
	KindConflict Kind = "conflict"
	// KindStorage: the backend failed or timed out.
	KindStorage Kind = "storage"
)

var (
	// ErrStoreRequired is returned by NewEngine without a store.
	ErrStoreRequired = errors.New("annex: store is required")

	// ErrValidation matches errors of KindValidation.
	ErrValidation = errors.New("annex: validation failed")

	// ErrExtensionNotFound matches errors of KindNotFound.
	ErrExtensionNotFound = errors.New("annex: extension not found")

	// ErrSystemExtensionProtected matches errors of KindSystemProtected.
	ErrSystemExtensionProtected = errors.New("annex: system extension cannot be uninstalled")

	// ErrNotConfigurable matches errors of KindNotConfigurable.
	ErrNotConfigurable = errors.New("annex: extension settings are not configurable")

	// ErrConflict matches errors of KindConflict.
	ErrConflict = errors.New("annex: extension was modified concurrently")

	// ErrStorage matches errors of KindStorage.
	ErrStorage = errors.New("annex: storage backend failure")
)

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrExtensionNotFound
	case KindSystemProtected:
		return ErrSystemExtensionProtected
	case KindNotConfigurable:
		return ErrNotConfigurable
	case KindConflict:
		return ErrConflict
	case KindStorage:
		return ErrStorage
	default:
		return nil
	}
}

// Retryable reports whether a caller may retry an operation that failed
// with this kind. The engine itself never retries.
func (k Kind) Retryable() bool { return k == KindStorage || k == KindConflict }

// Error is returned by every Engine operation. It matches its kind's
// sentinel with errors.Is and unwraps to the underlying cause.
type Error struct {
	Kind        Kind
	Op          string
	ExtensionID id.ExtensionID
	Message     string
	Issues      []manifest.Issue
	Err         error
}

func (e *Error) Error() string {
	msg := "annex: " + e.Op
	if !e.ExtensionID.IsNil() {
		msg += " " + e.ExtensionID.String()
	}
	msg += ": " + e.Message
	if len(e.Issues) > 0 {
		msg += fmt.Sprintf(" (%s)", e.Issues[0])
		if n := len(e.Issues) - 1; n > 0 {
			msg += fmt.Sprintf(" and %d more", n)
		}
	}
	if e.Kind == KindStorage && e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the Kind of err, or "" when err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IssuesOf returns the field-level issues attached to a validation error.
func IssuesOf(err error) []manifest.Issue {
	var e *Error
	if errors.As(err, &e) {
		return e.Issues
	}
	return nil
}

func validationError(op string, extID id.ExtensionID, msg string, issues []manifest.Issue, cause error) *Error {
	return &Error{Kind: KindValidation, Op: op, ExtensionID: extID, Message: msg, Issues: issues, Err: cause}
}

func notFoundError(op string, extID id.ExtensionID, cause error) *Error {
	return &Error{Kind: KindNotFound, Op: op, ExtensionID: extID, Message: "extension not found", Err: cause}
}

func storageError(op string, extID id.ExtensionID, cause error) *Error {
	return &Error{Kind: KindStorage, Op: op, ExtensionID: extID, Message: "storage backend failure", Err: cause}
}
