// Package api provides HTTP handlers for the annex extension engine.
package api

import (
	"net/http"
	"strings"

	"github.com/xraph/forge"

	"github.com/xraph/annex"
)

// API wires all annex HTTP handlers together.
type API struct {
	eng          *annex.Engine
	router       forge.Router
	basePath     string
	requireOwner bool
}

// Option configures an API.
type Option func(*API)

// WithOwnerCheck makes every handler that addresses an extension reject
// callers who are neither its owning user nor in its owning organization.
func WithOwnerCheck() Option {
	return func(a *API) { a.requireOwner = true }
}

// WithBasePath mounts every route under prefix, for example "/annex".
func WithBasePath(prefix string) Option {
	return func(a *API) { a.basePath = strings.TrimRight(prefix, "/") }
}

// New creates an API from an Engine and a Forge router.
func New(eng *annex.Engine, router forge.Router, opts ...Option) *API {
	a := &API{eng: eng, router: router}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	if a.router == nil {
		a.router = forge.NewRouter()
	}
	if err := a.RegisterRoutes(a.router); err != nil {
		panic("annex: register routes: " + err.Error())
	}
	return a.router.Handler()
}

// RegisterRoutes registers all API routes into the given Forge router.
func (a *API) RegisterRoutes(router forge.Router) error {
	registerers := []func(forge.Router) error{
		a.registerExtensionRoutes,
		a.registerLifecycleRoutes,
		a.registerStorageRoutes,
		a.registerEventRoutes,
	}
	for _, fn := range registerers {
		if err := fn(router); err != nil {
			return err
		}
	}
	return nil
}
