// internal/core/domain/product.go
package domain

import (
	"github.com/shopspring/decimal"
)

// UnknownProductName labels report rows whose product is not in the catalog
const UnknownProductName = "Unknown"

// Product is a catalog entry owned by the product service
type Product struct {
	ID         int64            `json:"id"`
	Name       string           `json:"name"`
	SKU        string           `json:"sku"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	CategoryID int64            `json:"categoryId"`
}

// UnitPrice returns the price, or zero when the catalog has none
func (p *Product) UnitPrice() decimal.Decimal {
	if p == nil || p.Price == nil {
		return decimal.Zero
	}
	return *p.Price
}

// DisplayName returns the product name, or the unknown label
func (p *Product) DisplayName() string {
	if p == nil || p.Name == "" {
		return UnknownProductName
	}
	return p.Name
}

// IndexProducts maps products by id
func IndexProducts(products []*Product) map[int64]*Product {
	index := make(map[int64]*Product, len(products))
	for _, p := range products {
		if p != nil {
			index[p.ID] = p
		}
	}
	return index
}
