package cart

import (
	"context"
	"sync"

	cartrepo "storefront/internal/repository/cart"
)

// Registry opens carts by owner. Engines live for one request: every Open
// hydrates from the store, which stays the only copy shared between requests
// and replicas. Opens for the same owner are serialised in this process so a
// read-modify-write is not lost to a concurrent one.
type Registry struct {
	mu     sync.Mutex
	locks  map[string]*ownerLock
	store  cartrepo.Store
	prefix string
	opts   []Option
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

func NewRegistry(store cartrepo.Store, prefix string, opts ...Option) *Registry {
	return &Registry{
		locks:  make(map[string]*ownerLock),
		store:  store,
		prefix: prefix,
		opts:   opts,
	}
}

// Key returns the storage key of owner's cart.
func (r *Registry) Key(owner string) string {
	return r.prefix + ":" + owner
}

// Open hydrates owner's cart and holds the owner lock until release is
// called. Release must be called exactly once.
func (r *Registry) Open(ctx context.Context, owner string) (*Engine, func()) {
	key := r.Key(owner)

	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &ownerLock{}
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	engine := NewEngine(ctx, r.store, key, r.opts...)

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Unlock()
			r.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(r.locks, key)
			}
			r.mu.Unlock()
		})
	}
	return engine, release
}

// Active reports how many owners currently have an open cart.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
