package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"storefront/internal/domain"
	cartrepo "storefront/internal/repository/cart"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockPolicy decides whether AddItem and UpdateQuantity respect the product's
// stock level.
type StockPolicy int

const (
	// StockTrust accepts any requested quantity; stock is enforced at checkout.
	StockTrust StockPolicy = iota
	// StockClamp caps a line at Product.StockQuantity when the product reports stock.
	StockClamp
)

func ParseStockPolicy(s string) (StockPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trust":
		return StockTrust, nil
	case "clamp":
		return StockClamp, nil
	default:
		return StockTrust, fmt.Errorf("unknown stock policy %q", s)
	}
}

type Option func(*Engine)

func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithStockPolicy(p StockPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine holds one cart. Every operation is total: bad input degrades to a
// no-op or removal and storage failures are logged, never returned. Mutations
// are serialised by mu and persisted in the order they were applied.
type Engine struct {
	mu     sync.Mutex
	store  cartrepo.Store
	key    string
	lines  []domain.CartLine
	isOpen bool

	policy StockPolicy
	logger *log.Logger
	now    func() time.Time
}

// NewEngine builds an engine and hydrates it once from store under key.
// Absent or corrupt data yields an empty cart.
func NewEngine(ctx context.Context, store cartrepo.Store, key string, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		key:    key,
		logger: log.New(io.Discard, "", 0),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.hydrate(ctx)
	return e
}

func (e *Engine) Key() string {
	return e.key
}

func (e *Engine) AddItem(ctx context.Context, product domain.Product, quantity int) domain.CartSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if quantity <= 0 || product.ID == "" {
		return e.snapshotLocked()
	}
	if idx := e.indexOf(product.ID); idx >= 0 {
		e.lines[idx].Quantity = e.clamp(product, e.lines[idx].Quantity+quantity)
	} else {
		e.lines = append(e.lines, domain.CartLine{
			ID:       uuid.NewString(),
			Product:  product,
			Quantity: e.clamp(product, quantity),
			AddedAt:  e.now().UTC(),
		})
	}
	e.persistLocked(ctx)
	return e.snapshotLocked()
}

// RemoveItem deletes the line for productID. Unknown ids are a no-op.
func (e *Engine) RemoveItem(ctx context.Context, productID string) domain.CartSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if idx := e.indexOf(productID); idx >= 0 {
		e.lines = append(e.lines[:idx], e.lines[idx+1:]...)
		e.persistLocked(ctx)
	}
	return e.snapshotLocked()
}

// UpdateQuantity sets the absolute quantity of a line; quantity <= 0 removes it.
func (e *Engine) UpdateQuantity(ctx context.Context, productID string, quantity int) domain.CartSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexOf(productID)
	if idx < 0 {
		return e.snapshotLocked()
	}
	if quantity <= 0 {
		e.lines = append(e.lines[:idx], e.lines[idx+1:]...)
	} else {
		e.lines[idx].Quantity = e.clamp(e.lines[idx].Product, quantity)
	}
	e.persistLocked(ctx)
	return e.snapshotLocked()
}

func (e *Engine) ClearCart(ctx context.Context) domain.CartSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lines = nil
	e.persistLocked(ctx)
	return e.snapshotLocked()
}

// RemoveLines takes ordered lines out of the cart. Each line is matched by
// line id and loses the ordered quantity; quantity added since the snapshot
// stays in the cart, as do lines the snapshot did not contain.
func (e *Engine) RemoveLines(ctx context.Context, ordered []domain.CartLine) domain.CartSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	take := make(map[string]int, len(ordered))
	for _, l := range ordered {
		take[l.ID] += l.Quantity
	}
	kept := e.lines[:0]
	changed := false
	for _, l := range e.lines {
		if n, ok := take[l.ID]; ok {
			changed = true
			l.Quantity -= n
			if l.Quantity <= 0 {
				continue
			}
		}
		kept = append(kept, l)
	}
	if changed {
		e.lines = kept
		e.persistLocked(ctx)
	}
	return e.snapshotLocked()
}

func (e *Engine) ToggleCart() domain.CartSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isOpen = !e.isOpen
	return e.snapshotLocked()
}

func (e *Engine) CloseCart() domain.CartSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isOpen = false
	return e.snapshotLocked()
}

func (e *Engine) GetItemQuantity(productID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx := e.indexOf(productID); idx >= 0 {
		return e.lines[idx].Quantity
	}
	return 0
}

// Snapshot returns a copy of the cart; callers may modify it freely.
func (e *Engine) Snapshot() domain.CartSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() domain.CartSnapshot {
	lines := make([]domain.CartLine, len(e.lines))
	copy(lines, e.lines)

	items, total := Totals(lines)
	return domain.CartSnapshot{
		Lines:      lines,
		TotalItems: items,
		TotalPrice: total,
		IsOpen:     e.isOpen,
	}
}

// Totals derives item count and price sum from lines. Prices are normalised
// and summed as decimals before the single conversion to float64.
func Totals(lines []domain.CartLine) (int, float64) {
	items := 0
	sum := decimal.Zero
	for _, l := range lines {
		items += l.Quantity
		sum = sum.Add(l.Product.Price.Decimal().Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return items, sum.InexactFloat64()
}

func (e *Engine) indexOf(productID string) int {
	for i, l := range e.lines {
		if l.Product.ID == productID {
			return i
		}
	}
	return -1
}

func (e *Engine) clamp(product domain.Product, quantity int) int {
	if e.policy == StockClamp && product.StockQuantity > 0 && quantity > product.StockQuantity {
		return product.StockQuantity
	}
	return quantity
}

// persistedLine is the storage format. AddedAt is kept as an RFC3339 string
// so reads can tolerate malformed timestamps line by line.
type persistedLine struct {
	ID       string         `json:"id"`
	Product  domain.Product `json:"product"`
	Quantity int            `json:"quantity"`
	AddedAt  string         `json:"addedAt"`
}

func (e *Engine) persistLocked(ctx context.Context) {
	if e.store == nil {
		return
	}
	out := make([]persistedLine, 0, len(e.lines))
	for _, l := range e.lines {
		out = append(out, persistedLine{
			ID:       l.ID,
			Product:  l.Product,
			Quantity: l.Quantity,
			AddedAt:  l.AddedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	data, err := json.Marshal(out)
	if err != nil {
		e.logger.Printf("cart engine: encode key=%s error=%v", e.key, err)
		return
	}
	if err := e.store.Set(ctx, e.key, string(data)); err != nil {
		e.logger.Printf("cart engine: persist key=%s error=%v", e.key, err)
	}
}

func (e *Engine) hydrate(ctx context.Context) {
	if e.store == nil {
		return
	}
	raw, found, err := e.store.Get(ctx, e.key)
	if err != nil {
		e.logger.Printf("cart engine: load key=%s error=%v", e.key, err)
		return
	}
	if !found || strings.TrimSpace(raw) == "" {
		return
	}

	var stored []persistedLine
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		e.logger.Printf("cart engine: decode key=%s error=%v", e.key, err)
		return
	}

	lines := make([]domain.CartLine, 0, len(stored))
	for _, p := range stored {
		if p.Product.ID == "" || p.Quantity <= 0 {
			continue
		}
		addedAt, err := time.Parse(time.RFC3339Nano, p.AddedAt)
		if err != nil {
			addedAt = e.now().UTC()
		}
		id := p.ID
		if id == "" {
			id = uuid.NewString()
		}
		lines = append(lines, domain.CartLine{
			ID:       id,
			Product:  p.Product,
			Quantity: p.Quantity,
			AddedAt:  addedAt,
		})
	}
	e.lines = lines
	e.logger.Printf("cart engine: hydrated key=%s lines=%d", e.key, len(lines))
}
