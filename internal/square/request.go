package square

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mrlokans/possync/internal/registry"
)

type pageQuery struct {
	cursor      string
	watermark   *time.Time
	subType     string
	locationIDs []string
	limit       int
}

type page struct {
	records []Record
	cursor  string
}

// buildRequest returns the URL and, for POST endpoints, the JSON body of one
// page request.
func buildRequest(baseURL string, desc registry.Descriptor, q pageQuery) (string, []byte, error) {
	u, err := url.Parse(baseURL + desc.Endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	if desc.Method == http.MethodGet {
		params := u.Query()
		for key, value := range queryParams(desc.Type, q) {
			params.Set(key, value)
		}
		u.RawQuery = params.Encode()
		return u.String(), nil, nil
	}

	body, err := json.Marshal(searchBody(desc.Type, q))
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return u.String(), body, nil
}

func queryParams(t registry.EntityType, q pageQuery) map[string]string {
	params := map[string]string{}
	if q.cursor != "" {
		params["cursor"] = q.cursor
	}
	if q.limit > 0 {
		params["limit"] = strconv.Itoa(q.limit)
	}

	switch t {
	case registry.Payments:
		// begin_time filters on created_at and would miss later updates
		params["sort_field"] = "UPDATED_AT"
		params["sort_order"] = "ASC"
		if q.watermark != nil {
			params["updated_at_begin_time"] = formatTime(*q.watermark)
		}
	}
	return params
}

func searchBody(t registry.EntityType, q pageQuery) map[string]any {
	body := map[string]any{}
	if q.cursor != "" {
		body["cursor"] = q.cursor
	}
	if q.limit > 0 {
		body["limit"] = q.limit
	}

	switch t {
	case registry.CatalogCategories, registry.CatalogItems, registry.CatalogVariations:
		body["object_types"] = []string{q.subType}
		// deleted parents must reach the mirror so children never reference
		// a missing row
		body["include_deleted_objects"] = true
		if q.watermark != nil {
			body["begin_time"] = formatTime(*q.watermark)
		}
	case registry.InventoryCounts:
		body["states"] = []string{"IN_STOCK"}
		if q.watermark != nil {
			body["updated_after"] = formatTime(*q.watermark)
		}
	case registry.Orders:
		query := map[string]any{
			"sort": map[string]string{"sort_field": "UPDATED_AT", "sort_order": "ASC"},
		}
		if q.watermark != nil {
			query["filter"] = map[string]any{
				"date_time_filter": map[string]any{
					"updated_at": map[string]string{"start_at": formatTime(*q.watermark)},
				},
			}
		}
		body["location_ids"] = q.locationIDs
		body["query"] = query
	case registry.Vendors, registry.Locations, registry.Payments:
	}
	return body
}

func decodePage(raw []byte, resultKey string) (*page, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	p := &page{}
	if rawCursor, ok := envelope["cursor"]; ok {
		if err := json.Unmarshal(rawCursor, &p.cursor); err != nil {
			return nil, fmt.Errorf("%w: cursor: %v", ErrMalformedPayload, err)
		}
	}

	rawItems, ok := envelope[resultKey]
	if !ok || string(rawItems) == "null" {
		return p, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(rawItems, &items); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, resultKey, err)
	}

	p.records = make([]Record, 0, len(items))
	for _, item := range items {
		rec, err := newRecord(item)
		if err != nil {
			return nil, err
		}
		p.records = append(p.records, rec)
	}
	return p, nil
}

func newRecord(item json.RawMessage) (Record, error) {
	var head struct {
		ID              string `json:"id"`
		Type            string `json:"type"`
		CatalogObjectID string `json:"catalog_object_id"`
		LocationID      string `json:"location_id"`
	}
	if err := json.Unmarshal(item, &head); err != nil {
		return Record{}, fmt.Errorf("%w: record: %v", ErrMalformedPayload, err)
	}

	id := head.ID
	if id == "" && head.CatalogObjectID != "" {
		id = head.CatalogObjectID + ":" + head.LocationID
	}
	return Record{ID: id, SubType: head.Type, Raw: item}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
