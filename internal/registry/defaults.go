package registry

import "net/http"

const (
	catalogSearchEndpoint = "/v2/catalog/search"
	catalogPageLimit      = 1000
)

// DefaultDescriptors is the mirrored entity set, in default request order.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{
			Type:           Locations,
			Endpoint:       "/v2/locations",
			Method:         http.MethodGet,
			UpdateStrategy: StrategyTimestamp,
			ResultKey:      "locations",
		},
		{
			Type:              CatalogCategories,
			Dependencies:      []EntityType{Locations},
			Endpoint:          catalogSearchEndpoint,
			Method:            http.MethodPost,
			UpdateStrategy:    StrategyVersion,
			SubObjectTypes:    []string{"CATEGORY"},
			ResultKey:         "objects",
			PageLimit:         catalogPageLimit,
			SupportsWatermark: true,
		},
		{
			Type:              CatalogItems,
			Dependencies:      []EntityType{CatalogCategories},
			Endpoint:          catalogSearchEndpoint,
			Method:            http.MethodPost,
			UpdateStrategy:    StrategyVersion,
			SubObjectTypes:    []string{"ITEM"},
			ResultKey:         "objects",
			PageLimit:         catalogPageLimit,
			SupportsWatermark: true,
		},
		{
			Type:              CatalogVariations,
			Dependencies:      []EntityType{CatalogItems},
			Endpoint:          catalogSearchEndpoint,
			Method:            http.MethodPost,
			UpdateStrategy:    StrategyVersion,
			SubObjectTypes:    []string{"ITEM_VARIATION"},
			ResultKey:         "objects",
			PageLimit:         catalogPageLimit,
			SupportsWatermark: true,
		},
		{
			Type:              InventoryCounts,
			Dependencies:      []EntityType{CatalogVariations, Locations},
			Endpoint:          "/v2/inventory/counts/batch-retrieve",
			Method:            http.MethodPost,
			UpdateStrategy:    StrategyTimestamp,
			ResultKey:         "counts",
			PageLimit:         1000,
			SupportsWatermark: true,
		},
		{
			Type:           Vendors,
			Endpoint:       "/v2/vendors/search",
			Method:         http.MethodPost,
			UpdateStrategy: StrategyVersion,
			ResultKey:      "vendors",
		},
		{
			Type:              Orders,
			Dependencies:      []EntityType{Locations},
			Endpoint:          "/v2/orders/search",
			Method:            http.MethodPost,
			UpdateStrategy:    StrategyVersion,
			ResultKey:         "orders",
			PageLimit:         500,
			SupportsWatermark: true,
			ScopeByLocation:   true,
		},
		{
			Type:              Payments,
			Dependencies:      []EntityType{Orders, Locations},
			Endpoint:          "/v2/payments",
			Method:            http.MethodGet,
			UpdateStrategy:    StrategyTimestamp,
			ResultKey:         "payments",
			PageLimit:         100,
			SupportsWatermark: true,
		},
	}
}

// Default returns the validated default registry. It panics if the static
// table is invalid, which only a code change can cause.
func Default() *Registry {
	r, err := New(DefaultDescriptors()...)
	if err != nil {
		panic("registry: invalid default descriptors: " + err.Error())
	}
	return r
}
