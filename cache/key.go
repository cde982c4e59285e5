package cache

import (
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// Key identifies a cached resource query: a resource name plus an optional
// set of query parameters. Keys are immutable; With returns a derived copy.
//
// The canonical form is the resource name followed by KeySeparator-joined
// k=v pairs with parameter names sorted lexicographically, so two keys built
// from the same resource and parameters always serialize identically:
//
//	NewKey("agents").With("team", "growth").With("status", "active")
//	// -> "agents::status=active::team=growth"
//
// Resource names may contain path segments ("agents/42", "dashboard/stats").
// Parameter names and values are used verbatim; callers should keep them to
// short identifier-like strings and must not embed the separator.
type Key struct {
	resource  string
	params    map[string]string
	canonical string
}

// NewKey builds a key for the given resource with no parameters.
func NewKey(resource string) Key {
	return Key{resource: resource, canonical: resource}
}

// NewKeyWithParams builds a key for the given resource and parameter set.
// The map is copied; the caller keeps ownership of its argument.
func NewKeyWithParams(resource string, params map[string]string) Key {
	k := Key{resource: resource}
	if len(params) > 0 {
		k.params = make(map[string]string, len(params))
		for name, value := range params {
			k.params[name] = value
		}
	}
	k.canonical = canonicalize(k.resource, k.params)
	return k
}

// With returns a copy of the key with the parameter set, leaving the
// receiver untouched.
func (k Key) With(name, value string) Key {
	params := make(map[string]string, len(k.params)+1)
	for n, v := range k.params {
		params[n] = v
	}
	params[name] = value

	derived := Key{resource: k.resource, params: params}
	derived.canonical = canonicalize(derived.resource, derived.params)
	return derived
}

// Resource returns the resource name segment of the key.
func (k Key) Resource() string {
	return k.resource
}

// Param returns the named parameter value and whether it is present.
func (k Key) Param(name string) (string, bool) {
	value, ok := k.params[name]
	return value, ok
}

// Canonical returns the canonical string form. Two keys are equal iff their
// canonical forms are equal.
func (k Key) Canonical() string {
	if k.canonical == "" && k.resource != "" {
		return canonicalize(k.resource, k.params)
	}
	return k.canonical
}

// Fingerprint returns an xxhash64 digest of the canonical form, used as a
// compact correlation value in log output.
func (k Key) Fingerprint() uint64 {
	return xxhash.Sum64String(k.Canonical())
}

// Equal reports whether both keys have the same canonical form.
func (k Key) Equal(other Key) bool {
	return k.Canonical() == other.Canonical()
}

// String implements fmt.Stringer using the canonical form.
func (k Key) String() string {
	return k.Canonical()
}

// canonicalize joins the resource with sorted k=v parameter pairs to produce
// stable keys across runs regardless of map iteration order.
func canonicalize(resource string, params map[string]string) string {
	if len(params) == 0 {
		return resource
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.Grow(len(resource) + len(params)*16)
	b.WriteString(resource)
	for _, name := range names {
		b.WriteString(KeySeparator)
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(params[name])
	}
	return b.String()
}

// MatchesPrefix reports whether the canonical key string matches an
// invalidation prefix. Matching is boundary aware so that "agents" covers
// "agents", "agents::status=active", and "agents/42" but never "agentsx":
//
//   - a prefix ending in "*" matches any canonical string that starts with
//     the prefix minus the "*"
//   - otherwise the canonical string must equal the prefix, or start with the
//     prefix followed by the parameter separator or a path segment
func MatchesPrefix(canonical, prefix string) bool {
	if prefix == "" {
		return false
	}
	if strings.HasSuffix(prefix, "*") {
		return strings.HasPrefix(canonical, prefix[:len(prefix)-1])
	}
	if canonical == prefix {
		return true
	}
	if strings.HasPrefix(canonical, prefix+KeySeparator) {
		return true
	}
	return strings.HasPrefix(canonical, prefix+"/")
}

// MatchesAnyPrefix reports whether the canonical key string matches at least
// one of the given prefixes.
func MatchesAnyPrefix(canonical string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if MatchesPrefix(canonical, prefix) {
			return true
		}
	}
	return false
}
