package entities

import (
	"time"

	"gorm.io/datatypes"
)

// Mirror holds the bookkeeping columns shared by every mirrored table.
// PayloadHash lets an upsert skip rows whose remote payload did not change.
type Mirror struct {
	PayloadHash string         `gorm:"size:64;not null" json:"-"`
	Raw         datatypes.JSON `json:"raw,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type Location struct {
	ID              string         `gorm:"primaryKey;size:64" json:"id"`
	Name            string         `gorm:"size:255" json:"name"`
	BusinessName    string         `gorm:"size:255" json:"business_name"`
	Status          string         `gorm:"size:20" json:"status"`
	Timezone        string         `gorm:"size:64" json:"timezone"`
	Currency        string         `gorm:"size:3" json:"currency"`
	Country         string         `gorm:"size:2" json:"country"`
	Address         datatypes.JSON `json:"address"`
	RemoteCreatedAt *time.Time     `json:"remote_created_at,omitempty"`
	RemoteUpdatedAt *time.Time     `json:"remote_updated_at,omitempty"`
	Mirror
}

type CatalogCategory struct {
	ID               string     `gorm:"primaryKey;size:64" json:"id"`
	Version          int64      `gorm:"not null" json:"version"`
	Name             string     `gorm:"size:255" json:"name"`
	ParentCategoryID string     `gorm:"size:64;index" json:"parent_category_id,omitempty"`
	IsDeleted        bool       `gorm:"not null" json:"is_deleted"`
	RemoteUpdatedAt  *time.Time `json:"remote_updated_at,omitempty"`
	Mirror
}

// CatalogItem.CategoryID is indexed but not constrained: the platform can
// reference categories the mirror never receives.
type CatalogItem struct {
	ID              string     `gorm:"primaryKey;size:64" json:"id"`
	Version         int64      `gorm:"not null" json:"version"`
	Name            string     `gorm:"size:512" json:"name"`
	Description     string     `gorm:"type:text" json:"description"`
	CategoryID      string     `gorm:"size:64;index" json:"category_id,omitempty"`
	ProductType     string     `gorm:"size:50" json:"product_type"`
	IsDeleted       bool       `gorm:"not null" json:"is_deleted"`
	RemoteUpdatedAt *time.Time `json:"remote_updated_at,omitempty"`
	Mirror
}

type CatalogVariation struct {
	ID              string       `gorm:"primaryKey;size:64" json:"id"`
	Version         int64        `gorm:"not null" json:"version"`
	ItemID          string       `gorm:"size:64;index;not null" json:"item_id"`
	Item            *CatalogItem `gorm:"foreignKey:ItemID;references:ID" json:"-"`
	Name            string       `gorm:"size:255" json:"name"`
	SKU             string       `gorm:"size:128" json:"sku"`
	PricingType     string       `gorm:"size:30" json:"pricing_type"`
	PriceAmount     *int64       `json:"price_amount,omitempty"`
	PriceCurrency   string       `gorm:"size:3" json:"price_currency"`
	Ordinal         int          `json:"ordinal"`
	IsDeleted       bool         `gorm:"not null" json:"is_deleted"`
	RemoteUpdatedAt *time.Time   `json:"remote_updated_at,omitempty"`
	Mirror
}

// InventoryCount is keyed by the (variation, location) pair.
type InventoryCount struct {
	VariationID  string            `gorm:"primaryKey;size:64" json:"variation_id"`
	LocationID   string            `gorm:"primaryKey;size:64" json:"location_id"`
	Variation    *CatalogVariation `gorm:"foreignKey:VariationID;references:ID" json:"-"`
	Location     *Location         `gorm:"foreignKey:LocationID;references:ID" json:"-"`
	State        string            `gorm:"size:30" json:"state"`
	Quantity     string            `gorm:"size:32" json:"quantity"`
	CalculatedAt *time.Time        `json:"calculated_at,omitempty"`
	Mirror
}

type Vendor struct {
	ID              string     `gorm:"primaryKey;size:64" json:"id"`
	Version         int64      `gorm:"not null" json:"version"`
	Name            string     `gorm:"size:255" json:"name"`
	Status          string     `gorm:"size:20" json:"status"`
	AccountNumber   string     `gorm:"size:100" json:"account_number"`
	Note            string     `gorm:"type:text" json:"note"`
	RemoteCreatedAt *time.Time `json:"remote_created_at,omitempty"`
	RemoteUpdatedAt *time.Time `json:"remote_updated_at,omitempty"`
	Mirror
}

type Order struct {
	ID               string         `gorm:"primaryKey;size:64" json:"id"`
	Version          int64          `gorm:"not null" json:"version"`
	LocationID       string         `gorm:"size:64;index;not null" json:"location_id"`
	Location         *Location      `gorm:"foreignKey:LocationID;references:ID" json:"-"`
	State            string         `gorm:"size:20;index" json:"state"`
	CustomerID       string         `gorm:"size:64" json:"customer_id"`
	ReferenceID      string         `gorm:"size:64" json:"reference_id"`
	TotalMoneyAmount int64          `json:"total_money_amount"`
	Currency         string         `gorm:"size:3" json:"currency"`
	LineItems        datatypes.JSON `json:"line_items"`
	RemoteCreatedAt  *time.Time     `gorm:"index" json:"remote_created_at,omitempty"`
	RemoteUpdatedAt  *time.Time     `json:"remote_updated_at,omitempty"`
	ClosedAt         *time.Time     `json:"closed_at,omitempty"`
	Mirror
}

// Payment.OrderID is indexed but not constrained: payments can arrive before
// their order reaches the mirror.
type Payment struct {
	ID              string     `gorm:"primaryKey;size:64" json:"id"`
	OrderID         string     `gorm:"size:64;index" json:"order_id"`
	LocationID      string     `gorm:"size:64;index;not null" json:"location_id"`
	Location        *Location  `gorm:"foreignKey:LocationID;references:ID" json:"-"`
	Status          string     `gorm:"size:20" json:"status"`
	SourceType      string     `gorm:"size:30" json:"source_type"`
	AmountMoney     int64      `json:"amount_money"`
	TipMoney        int64      `json:"tip_money"`
	TotalMoney      int64      `json:"total_money"`
	Currency        string     `gorm:"size:3" json:"currency"`
	CardBrand       string     `gorm:"size:30" json:"card_brand"`
	ReceiptNumber   string     `gorm:"size:30" json:"receipt_number"`
	RemoteCreatedAt *time.Time `gorm:"index" json:"remote_created_at,omitempty"`
	RemoteUpdatedAt *time.Time `json:"remote_updated_at,omitempty"`
	Mirror
}
