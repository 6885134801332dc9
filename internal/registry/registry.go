// Package registry holds the closed set of entity types mirrored from the
// point-of-sale platform together with their prerequisites and fetch shape.
package registry

import (
	"fmt"
	"net/http"
	"strings"
)

type EntityType string

const (
	Locations         EntityType = "locations"
	CatalogCategories EntityType = "catalog_categories"
	CatalogItems      EntityType = "catalog_items"
	CatalogVariations EntityType = "catalog_variations"
	InventoryCounts   EntityType = "inventory_counts"
	Vendors           EntityType = "vendors"
	Orders            EntityType = "orders"
	Payments          EntityType = "payments"
)

// CyclePseudoType is the tracking row that stores cycle totals. It is not an
// entity type and never appears in a registry.
const CyclePseudoType = "__cycle__"

func (t EntityType) String() string { return string(t) }

// Valid reports whether t belongs to the closed set of entity types.
func (t EntityType) Valid() bool {
	switch t {
	case Locations, CatalogCategories, CatalogItems, CatalogVariations,
		InventoryCounts, Vendors, Orders, Payments:
		return true
	}
	return false
}

// UpdateStrategy decides which of two versions of the same record is newer.
type UpdateStrategy string

const (
	StrategyVersion   UpdateStrategy = "version"
	StrategyTimestamp UpdateStrategy = "timestamp"
)

// Descriptor is the static description of one entity type.
type Descriptor struct {
	Type           EntityType
	Dependencies   []EntityType
	Endpoint       string
	Method         string
	UpdateStrategy UpdateStrategy
	SubObjectTypes []string // object_types filter for multiplexed endpoints
	ResultKey      string   // response field holding the page of records
	PageLimit      int      // 0 = endpoint does not accept a limit

	SupportsWatermark bool // false = always fetch the full remote set
	ScopeByLocation   bool // request must name the location ids it covers
}

type Registry struct {
	order  []EntityType
	byType map[EntityType]Descriptor
}

// New validates the descriptors and builds a registry. Declaration order is
// kept and used as the default request order.
func New(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{
		order:  make([]EntityType, 0, len(descriptors)),
		byType: make(map[EntityType]Descriptor, len(descriptors)),
	}

	for _, d := range descriptors {
		if !d.Type.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, d.Type)
		}
		if _, exists := r.byType[d.Type]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntityType, d.Type)
		}
		if d.Method != http.MethodGet && d.Method != http.MethodPost {
			return nil, fmt.Errorf("entity type %s: unsupported method %q", d.Type, d.Method)
		}
		if d.UpdateStrategy != StrategyVersion && d.UpdateStrategy != StrategyTimestamp {
			return nil, fmt.Errorf("entity type %s: unsupported update strategy %q", d.Type, d.UpdateStrategy)
		}
		r.order = append(r.order, d.Type)
		r.byType[d.Type] = d
	}

	for _, t := range r.order {
		for _, dep := range r.byType[t].Dependencies {
			if dep == t {
				return nil, fmt.Errorf("%w: %s -> %s", ErrDependencyCycle, t, t)
			}
			if _, ok := r.byType[dep]; !ok {
				return nil, fmt.Errorf("%w: %s requires %s", ErrUnknownDependency, t, dep)
			}
		}
	}

	if path := r.findCycle(); path != nil {
		return nil, fmt.Errorf("%w: %s", ErrDependencyCycle, joinTypes(path, " -> "))
	}

	return r, nil
}

func (r *Registry) Lookup(t EntityType) (Descriptor, bool) {
	d, ok := r.byType[t]
	return d, ok
}

// Types returns every registered type in declaration order.
func (r *Registry) Types() []EntityType {
	out := make([]EntityType, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.byType[t])
	}
	return out
}

// Parse converts user supplied names into registered types.
func (r *Registry) Parse(names []string) ([]EntityType, error) {
	out := make([]EntityType, 0, len(names))
	for _, name := range names {
		t := EntityType(strings.ToLower(strings.TrimSpace(name)))
		if t == "" {
			continue
		}
		if _, ok := r.byType[t]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, name)
		}
		out = append(out, t)
	}
	return out, nil
}

// WithPrerequisites closes the requested set over transitive dependencies.
// The result follows declaration order.
func (r *Registry) WithPrerequisites(types []EntityType) ([]EntityType, error) {
	wanted := make(map[EntityType]bool, len(types))

	var visit func(EntityType)
	visit = func(t EntityType) {
		if wanted[t] {
			return
		}
		wanted[t] = true
		for _, dep := range r.byType[t].Dependencies {
			visit(dep)
		}
	}

	for _, t := range types {
		if _, ok := r.byType[t]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, t)
		}
		visit(t)
	}

	out := make([]EntityType, 0, len(wanted))
	for _, t := range r.order {
		if wanted[t] {
			out = append(out, t)
		}
	}
	return out, nil
}

func joinTypes(types []EntityType, sep string) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, sep)
}
