package access

import (
	"fmt"
	"sort"
	"strings"
)

// Meta describes the permission a protected route requires
type Meta struct {
	Permission string
	Module     string
}

// Registry maps "{METHOD} {routeKey}" to the permission the route requires.
// It is populated during route registration at boot, frozen before the
// server accepts traffic, and read-only afterwards. It is rebuilt from
// scratch on every process start; route code is the source of truth for
// which permissions exist.
type Registry struct {
	entries map[string]Meta
	frozen  bool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Meta),
	}
}

func registryKey(method, routeKey string) string {
	return strings.ToUpper(method) + " " + routeKey
}

// Register declares that the route identified by method and routeKey
// requires the given permission. Registering the same route twice is a
// programming error and fails fast; two different routes may share one
// permission name.
func (r *Registry) Register(method, routeKey, permission, module string) error {
	if r.frozen {
		return fmt.Errorf("registry is frozen, cannot register %s %s", method, routeKey)
	}
	if permission == "" || module == "" {
		return fmt.Errorf("permission and module are required for %s %s", method, routeKey)
	}
	key := registryKey(method, routeKey)
	if existing, ok := r.entries[key]; ok {
		return fmt.Errorf("route %s already registered for permission %q in module %q", key, existing.Permission, existing.Module)
	}
	r.entries[key] = Meta{Permission: permission, Module: module}
	return nil
}

// MustRegister is Register for boot-time wiring where a duplicate route is fatal
func (r *Registry) MustRegister(method, routeKey, permission, module string) {
	if err := r.Register(method, routeKey, permission, module); err != nil {
		panic(err)
	}
}

// Freeze marks the registry read-only. Called once after all routes are wired.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Lookup returns the permission required by the route, if any
func (r *Registry) Lookup(method, routeKey string) (Meta, bool) {
	meta, ok := r.entries[registryKey(method, routeKey)]
	return meta, ok
}

// Declared returns the distinct (permission, module) pairs across all
// registered routes, in a stable order. Several routes sharing one
// permission collapse into a single entry.
func (r *Registry) Declared() []Meta {
	seen := make(map[Meta]struct{}, len(r.entries))
	var metas []Meta
	for _, meta := range r.entries {
		if _, ok := seen[meta]; ok {
			continue
		}
		seen[meta] = struct{}{}
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool {
		if metas[i].Module != metas[j].Module {
			return metas[i].Module < metas[j].Module
		}
		return metas[i].Permission < metas[j].Permission
	})
	return metas
}

// Len returns the number of registered routes
func (r *Registry) Len() int {
	return len(r.entries)
}
