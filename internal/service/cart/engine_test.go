package cart

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/price"
	cartrepo "storefront/internal/repository/cart"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func product(id string, p price.Numeric, stock int) domain.Product {
	return domain.Product{ID: id, Name: "Product " + id, Price: p, StockQuantity: stock}
}

func newTestEngine(t *testing.T, store cartrepo.Store, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewEngine(context.Background(), store, "cart-storage:test", opts...)
}

func assertConsistent(t *testing.T, snap domain.CartSnapshot) {
	t.Helper()
	items := 0
	sum := decimal.Zero
	for _, l := range snap.Lines {
		require.Greater(t, l.Quantity, 0, "line %s", l.ID)
		items += l.Quantity
		sum = sum.Add(l.Product.Price.Decimal().Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	assert.Equal(t, items, snap.TotalItems)
	assert.InDelta(t, sum.InexactFloat64(), snap.TotalPrice, 1e-9)
}

func TestEngine_AggregatesStayConsistent(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, cartrepo.NewMemory())
	catalog := []domain.Product{
		product("p1", price.FromFloat(19.99), 10),
		product("p2", price.FromString("5.50"), 10),
		product("p3", price.FromDecimal(decimal.RequireFromString("0.10")), 10),
		product("p4", price.Numeric{}, 10),
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		p := catalog[rng.Intn(len(catalog))]
		var snap domain.CartSnapshot
		switch rng.Intn(3) {
		case 0:
			snap = e.AddItem(ctx, p, rng.Intn(5)-1)
		case 1:
			snap = e.RemoveItem(ctx, p.ID)
		default:
			snap = e.UpdateQuantity(ctx, p.ID, rng.Intn(8)-3)
		}
		assertConsistent(t, snap)
	}
}

func TestEngine_AddItemMergesByProduct(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, cartrepo.NewMemory())

	first := e.AddItem(ctx, product("p1", price.FromFloat(10), 0), 2)
	second := e.AddItem(ctx, product("p1", price.FromFloat(10), 0), 3)

	require.Len(t, second.Lines, 1)
	assert.Equal(t, first.Lines[0].ID, second.Lines[0].ID)
	assert.Equal(t, 5, second.Lines[0].Quantity)
	assert.Equal(t, fixedNow, second.Lines[0].AddedAt)
	assert.Equal(t, 5, e.GetItemQuantity("p1"))
	assert.Equal(t, 0, e.GetItemQuantity("missing"))
	assert.Equal(t, 50.0, second.TotalPrice)
}

func TestEngine_PriceRepresentationsAgree(t *testing.T) {
	ctx := context.Background()
	reps := []price.Numeric{
		price.FromFloat(100),
		price.FromString("100"),
		price.FromDecimal(decimal.NewFromInt(100)),
	}
	var totals []float64
	for _, p := range reps {
		e := newTestEngine(t, cartrepo.NewMemory())
		totals = append(totals, e.AddItem(ctx, product("p1", p, 0), 3).TotalPrice)
	}
	assert.Equal(t, []float64{300, 300, 300}, totals)
}

func TestEngine_UnrecognisedPriceCountsAsZero(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, cartrepo.NewMemory())
	snap := e.AddItem(ctx, product("p1", price.FromString("call us"), 0), 2)
	assert.Equal(t, 2, snap.TotalItems)
	assert.Equal(t, 0.0, snap.TotalPrice)
}

func TestEngine_QuantityFloorRemovesLine(t *testing.T) {
	ctx := context.Background()
	for _, qty := range []int{0, -5} {
		e := newTestEngine(t, cartrepo.NewMemory())
		e.AddItem(ctx, product("p1", price.FromFloat(3), 0), 2)
		e.AddItem(ctx, product("p2", price.FromFloat(4), 0), 1)

		snap := e.UpdateQuantity(ctx, "p1", qty)
		require.Len(t, snap.Lines, 1, "qty=%d", qty)
		assert.Equal(t, "p2", snap.Lines[0].Product.ID)
		assert.Equal(t, 1, snap.TotalItems)
		assert.Equal(t, 4.0, snap.TotalPrice)
	}
}

func TestEngine_UpdateQuantityIsAbsolute(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, cartrepo.NewMemory())
	e.AddItem(ctx, product("p1", price.FromFloat(2), 0), 4)
	snap := e.UpdateQuantity(ctx, "p1", 1)
	assert.Equal(t, 1, snap.TotalItems)

	unchanged := e.UpdateQuantity(ctx, "ghost", 7)
	assert.Equal(t, snap, unchanged)
}

func TestEngine_RemoveUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: cartrepo.NewMemory()}
	e := newTestEngine(t, store)
	before := e.AddItem(ctx, product("p1", price.FromFloat(9.5), 0), 2)
	writes := store.sets

	after := e.RemoveItem(ctx, "ghost")
	assert.Equal(t, before, after)
	assert.Equal(t, writes, store.sets, "no-op remove must not persist")
}

func TestEngine_InvalidAddIsNoop(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, cartrepo.NewMemory())
	assert.Empty(t, e.AddItem(ctx, product("p1", price.FromFloat(1), 0), 0).Lines)
	assert.Empty(t, e.AddItem(ctx, product("p1", price.FromFloat(1), 0), -3).Lines)
	assert.Empty(t, e.AddItem(ctx, product("", price.FromFloat(1), 0), 1).Lines)
}

func TestEngine_PersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := cartrepo.NewMemory()
	e := newTestEngine(t, store)
	e.AddItem(ctx, product("p1", price.FromFloat(12.5), 0), 1)
	e.AddItem(ctx, product("p2", price.FromString("3.25"), 0), 4)
	e.AddItem(ctx, product("p3", price.FromDecimal(decimal.RequireFromString("99.99")), 0), 2)
	want := e.Snapshot()

	reloaded := newTestEngine(t, store).Snapshot()
	require.Len(t, reloaded.Lines, 3)
	assert.Equal(t, want.TotalItems, reloaded.TotalItems)
	assert.Equal(t, want.TotalPrice, reloaded.TotalPrice)
	for i := range want.Lines {
		assert.Equal(t, want.Lines[i].ID, reloaded.Lines[i].ID)
		assert.Equal(t, want.Lines[i].Quantity, reloaded.Lines[i].Quantity)
		assert.Equal(t, want.Lines[i].Product.Price.Kind(), reloaded.Lines[i].Product.Price.Kind())
		assert.True(t, want.Lines[i].AddedAt.Equal(reloaded.Lines[i].AddedAt))
	}
}

func TestEngine_CorruptStorageStartsEmpty(t *testing.T) {
	ctx := context.Background()
	for name, raw := range map[string]string{
		"garbage":   "{not json",
		"object":    `{"lines": []}`,
		"empty":     "",
		"bad lines": `[{"id":"x","product":{"id":""},"quantity":2},{"id":"y","product":{"id":"p1","price":"4"},"quantity":0}]`,
	} {
		store := cartrepo.NewMemory()
		require.NoError(t, store.Set(ctx, "cart-storage:test", raw))
		snap := newTestEngine(t, store).Snapshot()
		assert.Empty(t, snap.Lines, name)
		assert.Zero(t, snap.TotalItems, name)
	}
}

func TestEngine_BadTimestampIsTolerated(t *testing.T) {
	ctx := context.Background()
	store := cartrepo.NewMemory()
	raw := `[{"id":"l1","product":{"id":"p1","price":"2.5"},"quantity":2,"addedAt":"yesterday"}]`
	require.NoError(t, store.Set(ctx, "cart-storage:test", raw))

	snap := newTestEngine(t, store).Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, fixedNow, snap.Lines[0].AddedAt)
	assert.Equal(t, 5.0, snap.TotalPrice)
}

func TestEngine_StoreFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	store.On("Get", mock.Anything, "cart-storage:test").Return("", false, errors.New("redis down"))
	store.On("Set", mock.Anything, "cart-storage:test", mock.Anything).Return(errors.New("redis down"))

	e := newTestEngine(t, store)
	snap := e.AddItem(ctx, product("p1", price.FromFloat(1), 0), 2)
	assert.Equal(t, 2, snap.TotalItems, "in-memory state stays authoritative")
	snap = e.ClearCart(ctx)
	assert.Empty(t, snap.Lines)
	store.AssertNumberOfCalls(t, "Set", 2)
}

func TestEngine_ToggleAndCloseDoNotTouchLines(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: cartrepo.NewMemory()}
	e := newTestEngine(t, store)
	e.AddItem(ctx, product("p1", price.FromFloat(1), 0), 1)
	writes := store.sets

	assert.True(t, e.ToggleCart().IsOpen)
	assert.False(t, e.ToggleCart().IsOpen)
	e.ToggleCart()
	snap := e.CloseCart()
	assert.False(t, snap.IsOpen)
	assert.Equal(t, 1, snap.TotalItems)
	assert.Equal(t, writes, store.sets)
}

func TestEngine_StockClamp(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, cartrepo.NewMemory(), WithStockPolicy(StockClamp))
	p := product("p1", price.FromFloat(1), 3)

	assert.Equal(t, 2, e.AddItem(ctx, p, 2).TotalItems)
	assert.Equal(t, 3, e.AddItem(ctx, p, 5).TotalItems)
	assert.Equal(t, 3, e.UpdateQuantity(ctx, "p1", 10).TotalItems)

	trusting := newTestEngine(t, cartrepo.NewMemory())
	assert.Equal(t, 7, trusting.AddItem(ctx, p, 7).TotalItems)
}

func TestEngine_SnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, cartrepo.NewMemory())
	e.AddItem(ctx, product("p1", price.FromFloat(1), 0), 1)
	snap := e.Snapshot()
	snap.Lines[0].Quantity = 99
	assert.Equal(t, 1, e.GetItemQuantity("p1"))
}

func TestParseStockPolicy(t *testing.T) {
	p, err := ParseStockPolicy("clamp")
	require.NoError(t, err)
	assert.Equal(t, StockClamp, p)
	p, err = ParseStockPolicy("")
	require.NoError(t, err)
	assert.Equal(t, StockTrust, p)
	_, err = ParseStockPolicy("reserve")
	assert.Error(t, err)
}

func TestRegistry_OpenHydratesFromStore(t *testing.T) {
	ctx := context.Background()
	store := cartrepo.NewMemory()
	r := NewRegistry(store, "cart-storage")

	a, release := r.Open(ctx, "alice")
	assert.Equal(t, "cart-storage:alice", a.Key())
	a.AddItem(ctx, product("p1", price.FromFloat(2), 0), 2)
	release()
	release()

	reloaded, release := r.Open(ctx, "alice")
	assert.NotSame(t, a, reloaded)
	assert.Equal(t, 2, reloaded.GetItemQuantity("p1"))
	release()

	bob, release := r.Open(ctx, "bob")
	assert.Equal(t, 0, bob.GetItemQuantity("p1"))
	release()
	assert.Equal(t, 0, r.Active())
}

func TestRegistry_DoesNotRetainOwners(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(cartrepo.NewMemory(), "cart-storage")
	for i := 0; i < 500; i++ {
		_, release := r.Open(ctx, fmt.Sprintf("anon:%d", i))
		release()
	}
	assert.Equal(t, 0, r.Active())
}

func TestRegistry_SerialisesSameOwner(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(cartrepo.NewMemory(), "cart-storage")
	p := product("p1", price.FromFloat(1), 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, release := r.Open(ctx, "alice")
			defer release()
			e.AddItem(ctx, p, 1)
		}()
	}
	wg.Wait()

	e, release := r.Open(ctx, "alice")
	defer release()
	assert.Equal(t, 20, e.GetItemQuantity("p1"))
}

func TestEngine_RemoveLinesKeepsLaterAdditions(t *testing.T) {
	ctx := context.Background()
	store := cartrepo.NewMemory()
	e := newTestEngine(t, store)
	e.AddItem(ctx, product("p1", price.FromFloat(2), 0), 2)
	e.AddItem(ctx, product("p2", price.FromFloat(3), 0), 1)
	ordered := e.Snapshot().Lines

	e.AddItem(ctx, product("p1", price.FromFloat(2), 0), 1)
	e.AddItem(ctx, product("p3", price.FromFloat(5), 0), 4)

	snap := e.RemoveLines(ctx, ordered)
	assertConsistent(t, snap)
	require.Len(t, snap.Lines, 2)
	assert.Equal(t, 1, e.GetItemQuantity("p1"))
	assert.Equal(t, 0, e.GetItemQuantity("p2"))
	assert.Equal(t, 4, e.GetItemQuantity("p3"))

	reloaded := newTestEngine(t, store)
	assert.Equal(t, snap.TotalItems, reloaded.Snapshot().TotalItems)
}

type countingStore struct {
	cartrepo.Store
	sets int
}

func (s *countingStore) Set(ctx context.Context, key, value string) error {
	s.sets++
	return s.Store.Set(ctx, key, value)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockStore) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}
