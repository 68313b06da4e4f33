package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"storefront/internal/domain"
)

type productReader interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

type orderWriter interface {
	Create(ctx context.Context, o domain.Order) (*domain.Order, error)
}

// Cart is the part of the cart engine checkout consumes.
type Cart interface {
	Snapshot() domain.CartSnapshot
	RemoveLines(ctx context.Context, ordered []domain.CartLine) domain.CartSnapshot
}

type Service struct {
	products productReader
	orders   orderWriter
	logger   *log.Logger
}

func New(products productReader, orders orderWriter, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{products: products, orders: orders, logger: logger}
}

// Checkout turns the current cart snapshot into a pending order. Stock is
// re-read from the catalog, so a cart built under StockTrust cannot order more
// than is available. Only the ordered lines leave the cart, and only after the
// order is stored; anything added meanwhile stays.
func (s *Service) Checkout(ctx context.Context, userID string, cart Cart) (*domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrForbidden
	}
	snap := cart.Snapshot()
	if len(snap.Lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	for _, line := range snap.Lines {
		current, err := s.products.GetByID(ctx, line.Product.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: product %s is no longer available", domain.ErrInsufficientStock, line.Product.ID)
			}
			return nil, fmt.Errorf("checkout: load product %s: %w", line.Product.ID, err)
		}
		if line.Quantity > current.StockQuantity {
			return nil, fmt.Errorf("%w: product %s has %d in stock, %d requested",
				domain.ErrInsufficientStock, line.Product.ID, current.StockQuantity, line.Quantity)
		}
	}

	order, err := s.orders.Create(ctx, domain.Order{
		UserID:     userID,
		Lines:      snap.Lines,
		TotalItems: snap.TotalItems,
		TotalPrice: snap.TotalPrice,
		Status:     domain.OrderStatusPending,
	})
	if err != nil {
		s.logger.Printf("checkout: create order user_id=%s error=%v", userID, err)
		return nil, fmt.Errorf("checkout: create order: %w", err)
	}

	cart.RemoveLines(ctx, snap.Lines)
	s.logger.Printf("checkout: order id=%s user_id=%s total_items=%d total_price=%.2f", order.ID, userID, order.TotalItems, order.TotalPrice)
	return order, nil
}
