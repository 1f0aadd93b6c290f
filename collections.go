package redveil

import (
	"sort"
	"strings"
)

// Collection is a named alias for a "+"-joined group of communities.
type Collection struct {
	Name   string
	Target string
}

// CollectionSet holds the configured collection aliases.
type CollectionSet struct {
	entries map[string]string
}

// ParseCollections parses a ";"-separated list of "alias=sub1+sub2"
// entries. Entries with an empty alias or target, or without a "=",
// are skipped.
func ParseCollections(value string) *CollectionSet {
	entries := make(map[string]string)
	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		alias, target, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		alias = strings.TrimSpace(alias)
		target = strings.TrimSpace(target)
		if alias == "" || target == "" {
			continue
		}
		entries[alias] = target
	}
	return &CollectionSet{entries: entries}
}

// All returns every collection sorted by lowercased name.
func (s *CollectionSet) All() []Collection {
	out := make([]Collection, 0, len(s.entries))
	for name, target := range s.entries {
		out = append(out, Collection{Name: name, Target: target})
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Resolve looks up the community group behind an alias.
func (s *CollectionSet) Resolve(name string) (string, bool) {
	target, ok := s.entries[name]
	return target, ok
}

// IsEmpty reports whether any collections are configured.
func (s *CollectionSet) IsEmpty() bool {
	return len(s.entries) == 0
}
