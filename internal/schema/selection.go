package schema

import "sort"

// Selection is the tree of field names requested below a resolver, with
// fragments already expanded. Leaf fields map to an empty Selection.
type Selection map[string]Selection

// Has reports whether name was requested.
func (s Selection) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the requested field names, sorted.
func (s Selection) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge adds all fields of other into s.
func (s Selection) Merge(other Selection) {
	for name, sub := range other {
		existing, ok := s[name]
		if !ok {
			s[name] = sub
			continue
		}
		if existing == nil {
			s[name] = sub
			continue
		}
		existing.Merge(sub)
	}
}
