package config

import (
	"fmt"
	"strings"
)

// DefaultRoot is the namespace root used when none is given.
const DefaultRoot = "chanflow.messaging"

// Role is the part a channel endpoint plays against an external broker.
type Role int

const (
	// RoleSource is a connector feeding messages into a channel.
	RoleSource Role = iota
	// RoleSink is a connector draining a channel to a broker.
	RoleSink
)

// String returns the key segment for the role.
func (r Role) String() string {
	if r == RoleSink {
		return "sink"
	}
	return "source"
}

// Resolver maps (role, channel, attribute) onto a Store key.
// It never fails: absence is handed back to the caller, which decides whether
// the attribute was required.
type Resolver struct {
	store Store
	root  string
}

// NewResolver returns a Resolver over s. An empty root selects DefaultRoot.
func NewResolver(s Store, root string) Resolver {
	if root == "" {
		root = DefaultRoot
	}
	return Resolver{store: s, root: strings.TrimSuffix(root, ".")}
}

// Root returns the namespace root.
func (r Resolver) Root() string { return r.root }

// Store returns the underlying store.
func (r Resolver) Store() Store { return r.store }

// Key builds "<root>.<role>.<channel>.<attribute>".
func (r Resolver) Key(role Role, channel, attribute string) string {
	return r.root + "." + role.String() + "." + channel + "." + attribute
}

// Prefix builds "<root>.<role>.<channel>.".
func (r Resolver) Prefix(role Role, channel string) string {
	return r.root + "." + role.String() + "." + channel + "."
}

// Resolve looks the attribute up without converting it.
func (r Resolver) Resolve(role Role, channel, attribute string) (any, bool) {
	if r.store == nil {
		return nil, false
	}
	return r.store.Get(r.Key(role, channel, attribute))
}

// String resolves the attribute and stringifies non-string values, so that a
// port stored as an int and one stored as "1883" read the same.
func (r Resolver) String(role Role, channel, attribute string) (string, bool) {
	v, ok := r.Resolve(role, channel, attribute)
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// Configured reports whether a connector type is declared for the channel.
func (r Resolver) Configured(role Role, channel string) bool {
	_, ok := r.Resolve(role, channel, "type")
	return ok
}

// Attributes returns every attribute declared for the channel in insertion
// order, keyed by the attribute name with the prefix stripped.
func (r Resolver) Attributes(role Role, channel string) map[string]any {
	out := make(map[string]any)
	if r.store == nil {
		return out
	}
	prefix := r.Prefix(role, channel)
	for key := range r.store.PropertyNames() {
		attr, ok := strings.CutPrefix(key, prefix)
		if !ok || attr == "" {
			continue
		}
		v, _ := r.store.Get(key)
		out[attr] = v
	}
	return out
}
