package annex

import "github.com/xraph/annex/id"

// ExtensionID identifies an installed extension.
type ExtensionID = id.ExtensionID

// ParseExtensionID parses an "ext_" identifier.
func ParseExtensionID(s string) (ExtensionID, error) { return id.ParseExtensionID(s) }
