// Package secret resolves ${provider:key} references found in the backend
// runtime configuration. Values come from the environment or the OS keyring.
package secret

import (
	"fmt"
	"regexp"
	"strings"
)

var refPattern = regexp.MustCompile(`\$\{\s*([a-z]+)\s*:\s*([^}]*?)\s*\}`)

// Ref names one secret
type Ref struct {
	Provider string // env or keyring
	Key      string // variable name or keyring entry
}

func (r Ref) String() string {
	return "${" + r.Provider + ":" + r.Key + "}"
}

// ParseRef parses s, which must consist of exactly one reference
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	m := refPattern.FindStringSubmatch(s)
	if m == nil || m[0] != s || m[2] == "" {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	return Ref{Provider: m[1], Key: m[2]}, nil
}

// Contains reports whether s holds at least one reference
func Contains(s string) bool {
	return refPattern.MatchString(s)
}

// Refs returns the well-formed references in s in order of appearance
func Refs(s string) []Ref {
	var refs []Ref
	for _, m := range refPattern.FindAllStringSubmatch(s, -1) {
		if m[2] == "" {
			continue
		}
		refs = append(refs, Ref{Provider: m[1], Key: m[2]})
	}
	return refs
}

// Mask hides most of value for display
func Mask(value string) string {
	switch {
	case len(value) <= 4:
		return "****"
	case len(value) <= 8:
		return value[:2] + "****"
	default:
		return value[:3] + "****" + value[len(value)-2:]
	}
}
