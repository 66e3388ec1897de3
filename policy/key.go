// Package policy defines per-operation retry configuration: keys that
// name remote operations, the RetryConfig schema, normalization rules,
// and providers that resolve a key to its effective policy.
package policy

import "strings"

// Key names a remote operation, e.g. {Namespace: "briefs", Name:
// "Complete"}. Policies are resolved per key so call sites share
// configuration instead of inlining their own.
type Key struct {
	Namespace string
	Name      string
}

// ParseKey parses "namespace.name" into a Key. A string without a dot
// (or without a usable split) becomes a bare Name.
func ParseKey(s string) Key {
	s = strings.TrimSpace(s)
	if s == "" {
		return Key{}
	}
	idx := strings.Index(s, ".")
	if idx < 0 {
		return Key{Name: s}
	}
	ns := strings.TrimSpace(s[:idx])
	name := strings.TrimSpace(s[idx+1:])
	if name == "" {
		return Key{Name: s}
	}
	if ns == "" {
		return Key{Name: name}
	}
	return Key{Namespace: ns, Name: name}
}

func (k Key) String() string {
	if k.Namespace == "" {
		return k.Name
	}
	if k.Name == "" {
		return k.Namespace
	}
	return k.Namespace + "." + k.Name
}
