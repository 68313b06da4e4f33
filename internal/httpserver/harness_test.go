package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront/internal/auth"
	"storefront/internal/domain"
	"storefront/internal/price"
	"storefront/internal/realtime"
	cartrepo "storefront/internal/repository/cart"
	chatrepo "storefront/internal/repository/chat"
	cartsvc "storefront/internal/service/cart"
	chatsvc "storefront/internal/service/chat"
	"storefront/internal/service/checkout"
	productsvc "storefront/internal/service/product"

	"github.com/gin-gonic/gin"
)

func logDiscard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type stubProductRepo struct {
	products map[string]domain.Product
}

func (s *stubProductRepo) List(_ context.Context) ([]domain.Product, error) {
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubProductRepo) GetByID(_ context.Context, id string) (*domain.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (s *stubProductRepo) Upsert(_ context.Context, p domain.Product) (*domain.Product, error) {
	s.products[p.ID] = p
	return &p, nil
}

type memoryOrders struct {
	mu     sync.Mutex
	orders []domain.Order
}

func (m *memoryOrders) Create(_ context.Context, o domain.Order) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = "order-" + o.UserID
	o.CreatedAt = time.Now()
	m.orders = append(m.orders, o)
	return &o, nil
}

type harness struct {
	router   *gin.Engine
	verifier *auth.Verifier
	chat     *chatsvc.Service
	chatRepo *chatrepo.Memory
	carts    *cartsvc.Registry
	orders   *memoryOrders
}

var testUsers = map[string]domain.User{
	"cust":  {ID: "5b7d1e2a-3c4f-4a6b-8d9e-0f1a2b3c4d01", Email: "cust@example.com", FirstName: "Ama", Role: domain.RoleCustomer},
	"other": {ID: "5b7d1e2a-3c4f-4a6b-8d9e-0f1a2b3c4d02", Email: "other@example.com", FirstName: "Yaw", Role: domain.RoleCustomer},
	"agent": {ID: "5b7d1e2a-3c4f-4a6b-8d9e-0f1a2b3c4d03", Email: "agent@example.com", FirstName: "Kofi", Role: domain.RoleAgent},
}

func newHarness(t *testing.T, mutate ...func(*Deps)) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	products := &stubProductRepo{products: map[string]domain.Product{
		"p1": {ID: "p1", Name: "Data bundle", Price: price.FromString("19.99"), StockQuantity: 5},
		"p2": {ID: "p2", Name: "Airtime", Price: price.FromFloat(5), StockQuantity: 100},
	}}
	productService := productsvc.New(products)
	orders := &memoryOrders{}
	chatRepo := chatrepo.NewMemory()
	for _, u := range testUsers {
		chatRepo.AddUser(u)
	}
	chatService := chatsvc.New(chatRepo, chatRepo, realtime.NewMemoryBroker(), nil)
	verifier := auth.NewVerifier("test-secret", "")

	carts := cartsvc.NewRegistry(cartrepo.NewMemory(), "cart-storage")
	deps := Deps{
		ProductSvc:            productService,
		Carts:                 carts,
		CheckoutSvc:           checkout.New(products, orders, nil),
		ChatSvc:               chatService,
		Verifier:              verifier,
		Users:                 chatRepo,
		ChatSendRatePerMinute: 100,
		ChatPollInterval:      time.Hour,
	}
	for _, m := range mutate {
		m(&deps)
	}
	router, err := buildRouter(logDiscard(), nil, deps)
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	return &harness{router: router, verifier: verifier, chat: chatService, chatRepo: chatRepo, carts: carts, orders: orders}
}

// token signs a token for one of testUsers by alias.
func (h *harness) token(t *testing.T, alias string) string {
	t.Helper()
	u, ok := testUsers[alias]
	if !ok {
		t.Fatalf("unknown test user %s", alias)
	}
	return h.tokenFor(t, u)
}

func (h *harness) tokenFor(t *testing.T, u domain.User) string {
	t.Helper()
	tok, err := h.verifier.Issue(u, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

type request struct {
	method  string
	path    string
	body    string
	user    string
	headers map[string]string
}

func (h *harness) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if r.body != "" {
		body = strings.NewReader(r.body)
	}
	req := httptest.NewRequest(r.method, r.path, body)
	if r.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.user != "" {
		req.Header.Set("Authorization", "Bearer "+h.token(t, r.user))
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d body=%s", want, rec.Code, rec.Body.String())
	}
}

