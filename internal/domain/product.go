package domain

import (
	"time"

	"storefront/internal/price"
)

// Product is the catalog read-model the cart copies at add time.
type Product struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Price         price.Numeric  `json:"price"`
	OriginalPrice *price.Numeric `json:"originalPrice,omitempty"`
	StockQuantity int            `json:"stockQuantity"`
	ImageURL      string         `json:"imageUrl,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}
