package applier

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/mrlokans/possync/internal/entities"
	"github.com/mrlokans/possync/internal/square"
)

// mapped is one destination row together with the values dedup needs.
type mapped[T any] struct {
	key     string
	version int64
	stamp   *time.Time
	row     T
}

// mapFunc converts a remote record. ok=false drops the record without error.
type mapFunc[T any] func(rec square.Record, mirror entities.Mirror) (m mapped[T], ok bool, err error)

type money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type catalogObject struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	UpdatedAt string `json:"updated_at"`
	Version   int64  `json:"version"`
	IsDeleted bool   `json:"is_deleted"`

	CategoryData *struct {
		Name           string `json:"name"`
		ParentCategory *struct {
			ID string `json:"id"`
		} `json:"parent_category"`
	} `json:"category_data"`

	ItemData *struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		CategoryID  string `json:"category_id"`
		ProductType string `json:"product_type"`
		Categories  []struct {
			ID string `json:"id"`
		} `json:"categories"`
	} `json:"item_data"`

	ItemVariationData *struct {
		ItemID      string `json:"item_id"`
		Name        string `json:"name"`
		SKU         string `json:"sku"`
		Ordinal     int    `json:"ordinal"`
		PricingType string `json:"pricing_type"`
		PriceMoney  *money `json:"price_money"`
	} `json:"item_variation_data"`
}

func newMirror(raw json.RawMessage) (entities.Mirror, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return entities.Mirror{}, fmt.Errorf("invalid JSON: %w", err)
	}
	sum := sha256.Sum256(compact.Bytes())
	return entities.Mirror{
		PayloadHash: hex.EncodeToString(sum[:]),
		Raw:         datatypes.JSON(compact.Bytes()),
	}, nil
}

func parseTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", value, err)
	}
	t = t.UTC()
	return &t, nil
}

type timeField struct {
	dst   **time.Time
	value string
}

func parseTimes(fields ...timeField) error {
	for _, f := range fields {
		t, err := parseTime(f.value)
		if err != nil {
			return err
		}
		*f.dst = t
	}
	return nil
}

func jsonOrEmpty(raw json.RawMessage, empty string) datatypes.JSON {
	if len(raw) == 0 || string(raw) == "null" {
		return datatypes.JSON(empty)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return datatypes.JSON(empty)
	}
	return datatypes.JSON(compact.Bytes())
}

func decode(rec square.Record, v any) error {
	if err := json.Unmarshal(rec.Raw, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func mapLocation(rec square.Record, mirror entities.Mirror) (mapped[entities.Location], bool, error) {
	var in struct {
		ID           string          `json:"id"`
		Name         string          `json:"name"`
		BusinessName string          `json:"business_name"`
		Status       string          `json:"status"`
		Timezone     string          `json:"timezone"`
		Currency     string          `json:"currency"`
		Country      string          `json:"country"`
		Address      json.RawMessage `json:"address"`
		CreatedAt    string          `json:"created_at"`
		UpdatedAt    string          `json:"updated_at"`
	}
	if err := decode(rec, &in); err != nil {
		return mapped[entities.Location]{}, false, err
	}
	if in.ID == "" {
		return mapped[entities.Location]{}, false, errMissingID
	}

	row := entities.Location{
		ID:           in.ID,
		Name:         in.Name,
		BusinessName: in.BusinessName,
		Status:       in.Status,
		Timezone:     in.Timezone,
		Currency:     in.Currency,
		Country:      in.Country,
		Address:      jsonOrEmpty(in.Address, "{}"),
		Mirror:       mirror,
	}
	if err := parseTimes(
		timeField{&row.RemoteCreatedAt, in.CreatedAt},
		timeField{&row.RemoteUpdatedAt, in.UpdatedAt},
	); err != nil {
		return mapped[entities.Location]{}, false, err
	}
	return mapped[entities.Location]{key: row.ID, stamp: row.RemoteUpdatedAt, row: row}, true, nil
}

func decodeCatalog(rec square.Record, wantType string) (*catalogObject, bool, error) {
	var obj catalogObject
	if err := decode(rec, &obj); err != nil {
		return nil, false, err
	}
	if obj.ID == "" {
		return nil, false, errMissingID
	}
	if obj.Type != "" && obj.Type != wantType {
		return nil, false, nil
	}
	return &obj, true, nil
}

func mapCatalogCategory(rec square.Record, mirror entities.Mirror) (mapped[entities.CatalogCategory], bool, error) {
	obj, ok, err := decodeCatalog(rec, "CATEGORY")
	if !ok || err != nil {
		return mapped[entities.CatalogCategory]{}, ok, err
	}

	row := entities.CatalogCategory{
		ID:        obj.ID,
		Version:   obj.Version,
		IsDeleted: obj.IsDeleted,
		Mirror:    mirror,
	}
	if data := obj.CategoryData; data != nil {
		row.Name = data.Name
		if data.ParentCategory != nil {
			row.ParentCategoryID = data.ParentCategory.ID
		}
	}
	if row.RemoteUpdatedAt, err = parseTime(obj.UpdatedAt); err != nil {
		return mapped[entities.CatalogCategory]{}, false, err
	}
	return mapped[entities.CatalogCategory]{key: row.ID, version: row.Version, row: row}, true, nil
}

func mapCatalogItem(rec square.Record, mirror entities.Mirror) (mapped[entities.CatalogItem], bool, error) {
	obj, ok, err := decodeCatalog(rec, "ITEM")
	if !ok || err != nil {
		return mapped[entities.CatalogItem]{}, ok, err
	}

	row := entities.CatalogItem{
		ID:        obj.ID,
		Version:   obj.Version,
		IsDeleted: obj.IsDeleted,
		Mirror:    mirror,
	}
	if data := obj.ItemData; data != nil {
		row.Name = data.Name
		row.Description = data.Description
		row.ProductType = data.ProductType
		row.CategoryID = data.CategoryID
		if row.CategoryID == "" && len(data.Categories) > 0 {
			row.CategoryID = data.Categories[0].ID
		}
	}
	if row.RemoteUpdatedAt, err = parseTime(obj.UpdatedAt); err != nil {
		return mapped[entities.CatalogItem]{}, false, err
	}
	return mapped[entities.CatalogItem]{key: row.ID, version: row.Version, row: row}, true, nil
}

func mapCatalogVariation(rec square.Record, mirror entities.Mirror) (mapped[entities.CatalogVariation], bool, error) {
	obj, ok, err := decodeCatalog(rec, "ITEM_VARIATION")
	if !ok || err != nil {
		return mapped[entities.CatalogVariation]{}, ok, err
	}

	data := obj.ItemVariationData
	if data == nil || data.ItemID == "" {
		return mapped[entities.CatalogVariation]{}, false, fmt.Errorf("variation has no item_id")
	}

	row := entities.CatalogVariation{
		ID:          obj.ID,
		Version:     obj.Version,
		ItemID:      data.ItemID,
		Name:        data.Name,
		SKU:         data.SKU,
		PricingType: data.PricingType,
		Ordinal:     data.Ordinal,
		IsDeleted:   obj.IsDeleted,
		Mirror:      mirror,
	}
	if data.PriceMoney != nil {
		amount := data.PriceMoney.Amount
		row.PriceAmount = &amount
		row.PriceCurrency = data.PriceMoney.Currency
	}
	if row.RemoteUpdatedAt, err = parseTime(obj.UpdatedAt); err != nil {
		return mapped[entities.CatalogVariation]{}, false, err
	}
	return mapped[entities.CatalogVariation]{key: row.ID, version: row.Version, row: row}, true, nil
}

func mapInventoryCount(rec square.Record, mirror entities.Mirror) (mapped[entities.InventoryCount], bool, error) {
	var in struct {
		CatalogObjectID   string `json:"catalog_object_id"`
		CatalogObjectType string `json:"catalog_object_type"`
		State             string `json:"state"`
		LocationID        string `json:"location_id"`
		Quantity          string `json:"quantity"`
		CalculatedAt      string `json:"calculated_at"`
	}
	if err := decode(rec, &in); err != nil {
		return mapped[entities.InventoryCount]{}, false, err
	}
	if in.CatalogObjectID == "" || in.LocationID == "" {
		return mapped[entities.InventoryCount]{}, false, fmt.Errorf("count needs catalog_object_id and location_id")
	}
	if in.CatalogObjectType != "" && in.CatalogObjectType != "ITEM_VARIATION" {
		return mapped[entities.InventoryCount]{}, false, nil
	}

	row := entities.InventoryCount{
		VariationID: in.CatalogObjectID,
		LocationID:  in.LocationID,
		State:       in.State,
		Quantity:    in.Quantity,
		Mirror:      mirror,
	}
	if row.Quantity == "" {
		row.Quantity = "0"
	}
	var err error
	if row.CalculatedAt, err = parseTime(in.CalculatedAt); err != nil {
		return mapped[entities.InventoryCount]{}, false, err
	}
	return mapped[entities.InventoryCount]{
		key:   row.VariationID + "\x00" + row.LocationID,
		stamp: row.CalculatedAt,
		row:   row,
	}, true, nil
}

func mapVendor(rec square.Record, mirror entities.Mirror) (mapped[entities.Vendor], bool, error) {
	var in struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		Version       int64  `json:"version"`
		Status        string `json:"status"`
		AccountNumber string `json:"account_number"`
		Note          string `json:"note"`
		CreatedAt     string `json:"created_at"`
		UpdatedAt     string `json:"updated_at"`
	}
	if err := decode(rec, &in); err != nil {
		return mapped[entities.Vendor]{}, false, err
	}
	if in.ID == "" {
		return mapped[entities.Vendor]{}, false, errMissingID
	}

	row := entities.Vendor{
		ID:            in.ID,
		Version:       in.Version,
		Name:          in.Name,
		Status:        in.Status,
		AccountNumber: in.AccountNumber,
		Note:          in.Note,
		Mirror:        mirror,
	}
	if err := parseTimes(
		timeField{&row.RemoteCreatedAt, in.CreatedAt},
		timeField{&row.RemoteUpdatedAt, in.UpdatedAt},
	); err != nil {
		return mapped[entities.Vendor]{}, false, err
	}
	return mapped[entities.Vendor]{key: row.ID, version: row.Version, row: row}, true, nil
}

func mapOrder(rec square.Record, mirror entities.Mirror) (mapped[entities.Order], bool, error) {
	var in struct {
		ID          string          `json:"id"`
		LocationID  string          `json:"location_id"`
		ReferenceID string          `json:"reference_id"`
		CustomerID  string          `json:"customer_id"`
		State       string          `json:"state"`
		Version     int64           `json:"version"`
		LineItems   json.RawMessage `json:"line_items"`
		TotalMoney  *money          `json:"total_money"`
		CreatedAt   string          `json:"created_at"`
		UpdatedAt   string          `json:"updated_at"`
		ClosedAt    string          `json:"closed_at"`
	}
	if err := decode(rec, &in); err != nil {
		return mapped[entities.Order]{}, false, err
	}
	if in.ID == "" {
		return mapped[entities.Order]{}, false, errMissingID
	}
	if in.LocationID == "" {
		return mapped[entities.Order]{}, false, fmt.Errorf("order has no location_id")
	}

	row := entities.Order{
		ID:          in.ID,
		Version:     in.Version,
		LocationID:  in.LocationID,
		State:       in.State,
		CustomerID:  in.CustomerID,
		ReferenceID: in.ReferenceID,
		LineItems:   jsonOrEmpty(in.LineItems, "[]"),
		Mirror:      mirror,
	}
	if in.TotalMoney != nil {
		row.TotalMoneyAmount = in.TotalMoney.Amount
		row.Currency = in.TotalMoney.Currency
	}
	if err := parseTimes(
		timeField{&row.RemoteCreatedAt, in.CreatedAt},
		timeField{&row.RemoteUpdatedAt, in.UpdatedAt},
		timeField{&row.ClosedAt, in.ClosedAt},
	); err != nil {
		return mapped[entities.Order]{}, false, err
	}
	return mapped[entities.Order]{key: row.ID, version: row.Version, row: row}, true, nil
}

func mapPayment(rec square.Record, mirror entities.Mirror) (mapped[entities.Payment], bool, error) {
	var in struct {
		ID            string `json:"id"`
		OrderID       string `json:"order_id"`
		LocationID    string `json:"location_id"`
		Status        string `json:"status"`
		SourceType    string `json:"source_type"`
		ReceiptNumber string `json:"receipt_number"`
		AmountMoney   *money `json:"amount_money"`
		TipMoney      *money `json:"tip_money"`
		TotalMoney    *money `json:"total_money"`
		CardDetails   *struct {
			Card struct {
				CardBrand string `json:"card_brand"`
			} `json:"card"`
		} `json:"card_details"`
		CreatedAt string `json:"created_at"`
		UpdatedAt string `json:"updated_at"`
	}
	if err := decode(rec, &in); err != nil {
		return mapped[entities.Payment]{}, false, err
	}
	if in.ID == "" {
		return mapped[entities.Payment]{}, false, errMissingID
	}
	if in.LocationID == "" {
		return mapped[entities.Payment]{}, false, fmt.Errorf("payment has no location_id")
	}

	row := entities.Payment{
		ID:            in.ID,
		OrderID:       in.OrderID,
		LocationID:    in.LocationID,
		Status:        in.Status,
		SourceType:    in.SourceType,
		ReceiptNumber: in.ReceiptNumber,
		Mirror:        mirror,
	}
	if in.AmountMoney != nil {
		row.AmountMoney = in.AmountMoney.Amount
		row.Currency = in.AmountMoney.Currency
	}
	if in.TipMoney != nil {
		row.TipMoney = in.TipMoney.Amount
	}
	if in.TotalMoney != nil {
		row.TotalMoney = in.TotalMoney.Amount
	}
	if in.CardDetails != nil {
		row.CardBrand = in.CardDetails.Card.CardBrand
	}
	if err := parseTimes(
		timeField{&row.RemoteCreatedAt, in.CreatedAt},
		timeField{&row.RemoteUpdatedAt, in.UpdatedAt},
	); err != nil {
		return mapped[entities.Payment]{}, false, err
	}
	return mapped[entities.Payment]{key: row.ID, stamp: row.RemoteUpdatedAt, row: row}, true, nil
}
