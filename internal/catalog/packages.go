package catalog

import (
	"sort"
	"strings"
)

// Package is a bundle of services sold at a combined price.
type Package struct {
	Slug      string
	BackendID string
	Aliases   []string
	Services  []string // constituent client slugs
	// FallbackPrice is the last-known-good price in rupees.
	FallbackPrice int64
}

// Last-known-good package prices (INR).
const (
	DivorceSupportFallbackPrice  = 8500
	CouplesWellnessFallbackPrice = 4500
)

var packageTable = []Package{
	{
		Slug:          "divorce-support-package",
		BackendID:     "pkg_divorce_support",
		Aliases:       []string{"divorce_support_package"},
		Services:      []string{"mental-health-counselling", "divorce-consultation"},
		FallbackPrice: DivorceSupportFallbackPrice,
	},
	{
		Slug:          "couples-wellness-package",
		BackendID:     "pkg_couples_wellness",
		Services:      []string{"couples-therapy", "relationship-coaching"},
		FallbackPrice: CouplesWellnessFallbackPrice,
	},
}

// Package returns the package registered under slug.
func (m *Mapper) Package(slug string) (*Package, bool) {
	p, ok := m.packages[slug]
	return p, ok
}

// Packages returns all packages sorted by slug.
func (m *Mapper) Packages() []*Package {
	out := make([]*Package, 0, len(m.packages))
	for _, p := range m.packages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// DetectPackage returns the package whose constituent set equals the
// selection. Duplicates in the selection are ignored; order does not matter.
func (m *Mapper) DetectPackage(selected []string) (*Package, bool) {
	set := Dedup(selected)
	if len(set) == 0 {
		return nil, false
	}
	for _, p := range m.packages {
		if sameSet(set, p.Services) {
			return p, true
		}
	}
	return nil, false
}

// Dedup trims slugs and drops blanks and repeats, keeping first-seen order.
func Dedup(slugs []string) []string {
	out := make([]string, 0, len(slugs))
	seen := make(map[string]struct{}, len(slugs))
	for _, s := range slugs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	in := make(map[string]struct{}, len(b))
	for _, s := range b {
		in[s] = struct{}{}
	}
	for _, s := range a {
		if _, ok := in[s]; !ok {
			return false
		}
	}
	return true
}
