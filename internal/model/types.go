package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EntityType names a synchronised upstream collection.
type EntityType string

const (
	// EntityOrders is the order collection, with nested line items.
	EntityOrders EntityType = "orders"

	// EntityVariants is the catalog variant collection. Upstream exposes it
	// through products, each carrying its variants.
	EntityVariants EntityType = "variants"
)

// EntityTypes lists every synchronised entity in a fixed order.
var EntityTypes = []EntityType{EntityOrders, EntityVariants}

// ParseEntityType accepts "orders", "variants" and the alias "products".
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "orders":
		return EntityOrders, nil
	case "variants", "products":
		return EntityVariants, nil
	default:
		return "", fmt.Errorf("unknown entity type %q: must be one of %v", s, EntityTypes)
	}
}

// Store is a connected storefront. A nil Credential means the store has not
// completed authorization yet.
type Store struct {
	ID         string
	Credential *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Authorized reports whether the store carries a usable credential.
func (s Store) Authorized() bool {
	return s.Credential != nil && strings.TrimSpace(*s.Credential) != ""
}

// Order is an upstream order. CreatedAt is immutable once stored; the
// remaining fields are refreshed on every re-ingestion.
type Order struct {
	StoreID           string
	OrderID           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	TotalPrice        Amount
	Currency          string
	FinancialStatus   string
	FulfillmentStatus string
}

// OrderItem is the quantity of one variant on one order.
type OrderItem struct {
	StoreID   string
	OrderID   int64
	VariantID int64
	Quantity  int64
}

// VariantSnapshot is an immutable observation of a variant's price and stock.
// The current state of a variant is its snapshot with the latest CapturedAt.
type VariantSnapshot struct {
	StoreID           string
	VariantID         int64
	ProductID         int64
	Price             Amount
	InventoryQuantity int64
	CapturedAt        time.Time
	ProductTitle      string
	VariantTitle      string
}

// Amount is a monetary value as received from upstream ("19.99").
// An empty Amount means the value was absent.
type Amount string

// Decimal parses the amount. ok is false when the amount is absent or
// not a finite decimal number.
func (a Amount) Decimal() (d decimal.Decimal, ok bool) {
	s := strings.TrimSpace(string(a))
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Sanitized returns the amount for aggregation: absent, malformed and
// negative values count as zero.
func (a Amount) Sanitized() decimal.Decimal {
	d, ok := a.Decimal()
	if !ok || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// NonNegative clamps a quantity for aggregation.
func NonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
