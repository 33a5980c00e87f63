package commerce

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// OrderRecord is the subset of an upstream order the pipeline uses.
type OrderRecord struct {
	ID                *int64           `json:"id"`
	CreatedAt         *time.Time       `json:"created_at"`
	ProcessedAt       *time.Time       `json:"processed_at"`
	UpdatedAt         *time.Time       `json:"updated_at"`
	TotalPrice        Price            `json:"total_price"`
	Currency          string           `json:"currency"`
	FinancialStatus   string           `json:"financial_status"`
	FulfillmentStatus string           `json:"fulfillment_status"`
	LineItems         []LineItemRecord `json:"line_items"`
}

// LineItemRecord is one line of an order. VariantID is nil for custom
// lines and for variants deleted upstream.
type LineItemRecord struct {
	ID        *int64 `json:"id"`
	VariantID *int64 `json:"variant_id"`
	ProductID *int64 `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Price     Price  `json:"price"`
}

// ProductRecord is an upstream product with its variants.
type ProductRecord struct {
	ID          *int64          `json:"id"`
	Title       string          `json:"title"`
	ProductType string          `json:"product_type"`
	UpdatedAt   *time.Time      `json:"updated_at"`
	Variants    []VariantRecord `json:"variants"`
}

// VariantRecord is one sellable variant of a product.
type VariantRecord struct {
	ID                *int64     `json:"id"`
	ProductID         *int64     `json:"product_id"`
	Title             string     `json:"title"`
	SKU               string     `json:"sku"`
	Price             Price      `json:"price"`
	InventoryQuantity int64      `json:"inventory_quantity"`
	UpdatedAt         *time.Time `json:"updated_at"`
}

// Price is a monetary value that upstream sends either as a JSON string
// ("19.99") or a number. The text is kept verbatim; null becomes "".
type Price string

// UnmarshalJSON accepts a string, a number or null.
func (p *Price) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*p = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = Price(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("price: %w", err)
		}
		*p = Price(n.String())
		return nil
	}
}

// DecodeOrder decodes one raw order record.
func DecodeOrder(raw json.RawMessage) (OrderRecord, error) {
	var o OrderRecord
	if err := json.Unmarshal(raw, &o); err != nil {
		return OrderRecord{}, fmt.Errorf("decode order: %w", err)
	}
	return o, nil
}

// DecodeProduct decodes one raw product record.
func DecodeProduct(raw json.RawMessage) (ProductRecord, error) {
	var p ProductRecord
	if err := json.Unmarshal(raw, &p); err != nil {
		return ProductRecord{}, fmt.Errorf("decode product: %w", err)
	}
	return p, nil
}
