package checkout

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/domain"
	"storefront/internal/price"
	cartrepo "storefront/internal/repository/cart"
	cartsvc "storefront/internal/service/cart"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProducts map[string]domain.Product

func (s stubProducts) GetByID(_ context.Context, id string) (*domain.Product, error) {
	p, ok := s[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

type memoryOrders struct {
	created []domain.Order
	err     error
}

func (m *memoryOrders) Create(_ context.Context, o domain.Order) (*domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	o.ID = "order-1"
	m.created = append(m.created, o)
	return &o, nil
}

func newCart(t *testing.T, items map[string]int) *cartsvc.Engine {
	t.Helper()
	e := cartsvc.NewEngine(context.Background(), cartrepo.NewMemory(), "cart-storage:u1")
	for id, qty := range items {
		e.AddItem(context.Background(), domain.Product{ID: id, Price: price.FromString("2.50")}, qty)
	}
	return e
}

func TestCheckout_CreatesOrderAndClearsCart(t *testing.T) {
	orders := &memoryOrders{}
	svc := New(stubProducts{"p1": {ID: "p1", StockQuantity: 5}}, orders, nil)
	cart := newCart(t, map[string]int{"p1": 3})

	order, err := svc.Checkout(context.Background(), "u1", cart)
	require.NoError(t, err)
	assert.Equal(t, "order-1", order.ID)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, 3, order.TotalItems)
	assert.Equal(t, 7.5, order.TotalPrice)
	require.Len(t, orders.created, 1)
	assert.Empty(t, cart.Snapshot().Lines)
}

func TestCheckout_RejectsEmptyCart(t *testing.T) {
	svc := New(stubProducts{}, &memoryOrders{}, nil)
	_, err := svc.Checkout(context.Background(), "u1", newCart(t, nil))
	assert.ErrorIs(t, err, domain.ErrEmptyCart)
}

func TestCheckout_EnforcesStock(t *testing.T) {
	orders := &memoryOrders{}
	svc := New(stubProducts{"p1": {ID: "p1", StockQuantity: 2}}, orders, nil)
	cart := newCart(t, map[string]int{"p1": 3})

	_, err := svc.Checkout(context.Background(), "u1", cart)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Empty(t, orders.created)
	assert.Equal(t, 3, cart.GetItemQuantity("p1"), "cart kept on failure")

	_, err = svc.Checkout(context.Background(), "u1", newCart(t, map[string]int{"gone": 1}))
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestCheckout_KeepsCartWhenOrderFails(t *testing.T) {
	svc := New(stubProducts{"p1": {ID: "p1", StockQuantity: 9}}, &memoryOrders{err: errors.New("db down")}, nil)
	cart := newCart(t, map[string]int{"p1": 1})

	_, err := svc.Checkout(context.Background(), "u1", cart)
	require.Error(t, err)
	assert.Equal(t, 1, cart.GetItemQuantity("p1"))
}

func TestCheckout_RequiresUser(t *testing.T) {
	svc := New(stubProducts{}, &memoryOrders{}, nil)
	_, err := svc.Checkout(context.Background(), "", newCart(t, map[string]int{"p1": 1}))
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

type addingOrders struct {
	memoryOrders
	during func()
}

func (a *addingOrders) Create(ctx context.Context, o domain.Order) (*domain.Order, error) {
	a.during()
	return a.memoryOrders.Create(ctx, o)
}

func TestCheckout_KeepsItemsAddedWhileOrdering(t *testing.T) {
	cart := newCart(t, map[string]int{"p1": 2})
	orders := &addingOrders{during: func() {
		cart.AddItem(context.Background(), domain.Product{ID: "p2", Price: price.FromFloat(1)}, 1)
		cart.AddItem(context.Background(), domain.Product{ID: "p1", Price: price.FromString("2.50")}, 1)
	}}
	svc := New(stubProducts{"p1": {ID: "p1", StockQuantity: 5}}, orders, nil)

	order, err := svc.Checkout(context.Background(), "u1", cart)
	require.NoError(t, err)
	assert.Equal(t, 2, order.TotalItems)

	snap := cart.Snapshot()
	assert.Equal(t, 2, snap.TotalItems)
	assert.Equal(t, 1, cart.GetItemQuantity("p1"))
	assert.Equal(t, 1, cart.GetItemQuantity("p2"))
}
