package watch

import (
	"sort"

	"github.com/obentoo/nightwatch/internal/composer"
)

// Requirement is one package the project declares, with its constraint
type Requirement struct {
	Name       string
	Constraint string
}

// ExtractRequirements merges the require and require-dev groups of a manifest.
// A package declared in both groups takes its require-dev constraint.
// Missing groups count as empty.
func ExtractRequirements(m *composer.Manifest) map[string]string {
	merged := make(map[string]string)
	if m == nil {
		return merged
	}
	for name, constraint := range m.Require {
		merged[name] = constraint
	}
	for name, constraint := range m.RequireDev {
		merged[name] = constraint
	}
	return merged
}

// SortedRequirements returns the merged requirements ordered by package name
func SortedRequirements(m *composer.Manifest) []Requirement {
	merged := ExtractRequirements(m)
	reqs := make([]Requirement, 0, len(merged))
	for name, constraint := range merged {
		reqs = append(reqs, Requirement{Name: name, Constraint: constraint})
	}
	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].Name < reqs[j].Name
	})
	return reqs
}
