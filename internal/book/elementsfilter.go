package book

import (
	"fmt"
	"strings"
)

// ElementsFilter restricts enrichment/illustration to entities matching
// a type and a (possibly wildcarded) name, using the CLI's
// --elements-filter syntax: "type:name", "*:name", "type:*", with "*"
// permitted inside the name as a wildcard.
type ElementsFilter struct {
	Type string // "*" matches any type
	Name string // may contain "*" as a wildcard
}

// ParseElementsFilter parses the "type:name" syntax.
func ParseElementsFilter(spec string) (ElementsFilter, error) {
	spec = strings.TrimSpace(spec)
	idx := strings.Index(spec, ":")
	if idx < 0 {
		return ElementsFilter{}, fmt.Errorf("book: invalid elements filter %q: expected type:name", spec)
	}
	typ := strings.TrimSpace(spec[:idx])
	name := strings.TrimSpace(spec[idx+1:])
	if typ == "" || name == "" {
		return ElementsFilter{}, fmt.Errorf("book: invalid elements filter %q: type and name must be non-empty", spec)
	}
	return ElementsFilter{Type: typ, Name: name}, nil
}

// Matches reports whether an entity of the given type and name satisfies
// the filter. Matching is case-insensitive; "*" is a full wildcard for
// the type field and a substring wildcard anywhere in the name field.
func (f ElementsFilter) Matches(entityType, entityName string) bool {
	if f.Type != "*" && !strings.EqualFold(f.Type, entityType) {
		return false
	}
	return matchWildcard(strings.ToLower(f.Name), strings.ToLower(entityName))
}

// matchWildcard implements simple glob matching with "*" as the only
// metacharacter, sufficient for the name patterns this filter supports.
func matchWildcard(pattern, s string) bool {
	if pattern == "*" {
		return true
	}
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}

	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]

	for _, p := range parts[1 : len(parts)-1] {
		i := strings.Index(s, p)
		if i < 0 {
			return false
		}
		s = s[i+len(p):]
	}

	last := parts[len(parts)-1]
	return strings.HasSuffix(s, last)
}
