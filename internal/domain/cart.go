package domain

import "time"

// CartLine is one product entry in a cart. Quantity is always >= 1; a line
// that would drop to zero is removed instead.
type CartLine struct {
	ID       string    `json:"id"`
	Product  Product   `json:"product"`
	Quantity int       `json:"quantity"`
	AddedAt  time.Time `json:"addedAt"`
}

// CartSnapshot is the derived view of a cart. TotalItems and TotalPrice are
// recomputed from Lines after every mutation and never set independently.
type CartSnapshot struct {
	Lines      []CartLine `json:"lines"`
	TotalItems int        `json:"totalItems"`
	TotalPrice float64    `json:"totalPrice"`
	IsOpen     bool       `json:"isOpen"`
}

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusFailed  OrderStatus = "failed"
)

// Order is a submitted cart handed to the payment collaborator.
type Order struct {
	ID         string      `json:"id"`
	UserID     string      `json:"userId"`
	Lines      []CartLine  `json:"lines"`
	TotalItems int         `json:"totalItems"`
	TotalPrice float64     `json:"totalPrice"`
	Status     OrderStatus `json:"status"`
	CreatedAt  time.Time   `json:"createdAt"`
}
