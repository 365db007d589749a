// Package catalog holds the static service/package catalog: the mapping
// between client slugs and backend IDs, package composition and the
// last-known-good price table.
package catalog

// TableVersion identifies the mapping table revision. Bump it whenever a slug
// or backend ID changes so logs and quotes can be traced to a table.
const TableVersion = "2026-10-01"

// Service categories. Category is advisory; package detection ignores it.
const (
	CategoryMentalHealth = "mental-health"
	CategoryLegal        = "legal"
	CategoryHolistic     = "holistic"
)

// ServiceEntry maps one client slug to its canonical backend ID. Aliases are
// older backend IDs that still exist in price rows and historical bookings.
type ServiceEntry struct {
	Slug      string
	BackendID string
	Aliases   []string
	Category  string
}

var serviceTable = []ServiceEntry{
	{Slug: "mental-health-counselling", BackendID: "mh_individual_counselling", Aliases: []string{"mental_health_counselling"}, Category: CategoryMentalHealth},
	{Slug: "couples-therapy", BackendID: "mh_couples_therapy", Aliases: []string{"couples_therapy"}, Category: CategoryMentalHealth},
	{Slug: "family-therapy", BackendID: "mh_family_therapy", Category: CategoryMentalHealth},
	{Slug: "pre-marriage-counselling", BackendID: "mh_premarital_counselling", Aliases: []string{"pre_marriage_counselling"}, Category: CategoryMentalHealth},
	{Slug: "divorce-consultation", BackendID: "legal_divorce_consultation", Aliases: []string{"divorce_consultation"}, Category: CategoryLegal},
	{Slug: "mediation", BackendID: "legal_mediation", Category: CategoryLegal},
	{Slug: "custody-consultation", BackendID: "legal_child_custody", Category: CategoryLegal},
	{Slug: "document-review", BackendID: "legal_document_review", Category: CategoryLegal},
	{Slug: "relationship-coaching", BackendID: "holistic_relationship_coaching", Category: CategoryHolistic},
	{Slug: "mindfulness-session", BackendID: "holistic_mindfulness", Category: CategoryHolistic},
	{Slug: TestServiceSlug, BackendID: TestServiceID},
}

// Mapper translates between client slugs and backend IDs.
//
// Unknown keys pass through unchanged in both directions. A slug nobody
// mapped therefore reaches the price store as-is and, if no row matches,
// surfaces as a missing price rather than an error.
//
// A Mapper is immutable after construction and safe for concurrent use.
type Mapper struct {
	toBackend map[string]string
	toClient  map[string]string
	aliases   map[string][]string
	packages  map[string]*Package
	services  map[string]ServiceEntry
}

// NewMapper builds a Mapper over the built-in tables.
func NewMapper() *Mapper {
	return NewMapperFromTables(serviceTable, packageTable)
}

// NewMapperFromTables builds a Mapper over custom tables.
func NewMapperFromTables(services []ServiceEntry, packages []Package) *Mapper {
	m := &Mapper{
		toBackend: make(map[string]string, len(services)+len(packages)),
		toClient:  make(map[string]string, len(services)+len(packages)),
		aliases:   make(map[string][]string),
		packages:  make(map[string]*Package, len(packages)),
		services:  make(map[string]ServiceEntry, len(services)),
	}
	add := func(slug, id string, aliases []string) {
		m.toBackend[slug] = id
		m.toClient[id] = slug
		for _, a := range aliases {
			m.toClient[a] = slug
		}
		if len(aliases) > 0 {
			m.aliases[slug] = aliases
		}
	}
	for _, s := range services {
		add(s.Slug, s.BackendID, s.Aliases)
		m.services[s.Slug] = s
	}
	for i := range packages {
		p := packages[i]
		add(p.Slug, p.BackendID, p.Aliases)
		m.packages[p.Slug] = &p
	}
	return m
}

// ToBackend returns the canonical backend ID for a client slug.
func (m *Mapper) ToBackend(slug string) string {
	if id, ok := m.toBackend[slug]; ok {
		return id
	}
	return slug
}

// ToClient returns the client slug for a backend ID or one of its aliases.
func (m *Mapper) ToClient(backendID string) string {
	if slug, ok := m.toClient[backendID]; ok {
		return slug
	}
	return backendID
}

// IsKnown reports whether slug is in the table.
func (m *Mapper) IsKnown(slug string) bool {
	_, ok := m.toBackend[slug]
	return ok
}

// Category returns the category of a service slug, or "" when unknown.
func (m *Mapper) Category(slug string) string {
	return m.services[slug].Category
}

// Expand returns every backend ID the given slugs may be stored under:
// the canonical ID followed by its aliases. Order is stable and duplicates
// are dropped.
func (m *Mapper) Expand(slugs []string) []string {
	out := make([]string, 0, len(slugs))
	seen := make(map[string]struct{}, len(slugs))
	push := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, s := range slugs {
		push(m.ToBackend(s))
		for _, a := range m.aliases[s] {
			push(a)
		}
	}
	return out
}

// ExpandPackages is Expand restricted to package slugs. Non-package slugs
// are skipped.
func (m *Mapper) ExpandPackages(slugs []string) []string {
	pkgs := make([]string, 0, len(slugs))
	for _, s := range slugs {
		if _, ok := m.packages[s]; ok {
			pkgs = append(pkgs, s)
		}
	}
	return m.Expand(pkgs)
}
