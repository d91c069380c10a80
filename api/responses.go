package api

import (
	"encoding/json"

	"github.com/xraph/annex/manifest"
)

// ErrorResponse is the body of a rejected request that carries field-level
// issues.
type ErrorResponse struct {
	Error  string           `json:"error" description:"Error message"`
	Kind   string           `json:"kind" description:"Machine-readable error kind"`
	Op     string           `json:"op,omitempty" description:"Failed operation"`
	Issues []manifest.Issue `json:"issues,omitempty" description:"Violations keyed by field path"`
}

// ValidateManifestResponse is the result of a dry-run validation.
type ValidateManifestResponse struct {
	Valid    bool               `json:"valid" description:"Whether the manifest is valid"`
	Manifest *manifest.Manifest `json:"manifest,omitempty" description:"Normalized manifest when valid"`
	Errors   []manifest.Issue   `json:"errors,omitempty" description:"Every violation found"`
}

// StorageValueResponse is a single storage entry.
type StorageValueResponse struct {
	Key   string          `json:"key" description:"Storage key"`
	Value json.RawMessage `json:"value" description:"Stored JSON value"`
}

// StorageKeysResponse lists the keys of an extension.
type StorageKeysResponse struct {
	Keys []string `json:"keys" description:"Keys in ascending order"`
}

// ListResponse wraps a list of items with pagination metadata.
type ListResponse[T any] struct {
	Items  []T   `json:"items" description:"List of items"`
	Total  int64 `json:"total" description:"Total count"`
	Limit  int   `json:"limit" description:"Page size"`
	Offset int   `json:"offset" description:"Page offset"`
}
