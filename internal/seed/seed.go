package seed

import (
	"context"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/price"
	productrepo "storefront/internal/repository/product"
	userrepo "storefront/internal/repository/user"
)

// Result lists the records Apply ensured exist.
type Result struct {
	Products []domain.Product
	Users    []domain.User
}

var demoProducts = []domain.Product{
	{
		ID:            "6f1c7a52-5b1e-4c47-9d0e-2f7c1a000001",
		Name:          "Data Bundle 5GB",
		Description:   "30-day mobile data bundle",
		Price:         price.FromString("19.99"),
		StockQuantity: 250,
		ImageURL:      "https://cdn.example.com/products/data-5gb.png",
	},
	{
		ID:            "6f1c7a52-5b1e-4c47-9d0e-2f7c1a000002",
		Name:          "Airtime Top-up 10",
		Description:   "Prepaid airtime voucher",
		Price:         price.FromString("10.00"),
		StockQuantity: 1000,
	},
	{
		ID:            "6f1c7a52-5b1e-4c47-9d0e-2f7c1a000003",
		Name:          "Streaming Pass",
		Description:   "One month of video streaming",
		Price:         price.FromString("7.50"),
		OriginalPrice: ptr(price.FromString("9.99")),
		StockQuantity: 3,
	},
}

var demoUsers = []domain.User{
	{Email: "customer@storefront.local", FirstName: "Ama", LastName: "Mensah", Role: domain.RoleCustomer},
	{Email: "agent@storefront.local", FirstName: "Kofi", LastName: "Boateng", Role: domain.RoleAgent},
	{Email: "admin@storefront.local", FirstName: "Esi", LastName: "Owusu", Role: domain.RoleAdmin},
}

// Apply inserts demo catalog and user data for manual testing. Fixed product
// ids and email upserts make it idempotent.
func Apply(ctx context.Context, products productrepo.Repository, users userrepo.Repository) (*Result, error) {
	res := &Result{}
	for _, p := range demoProducts {
		saved, err := products.Upsert(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("upsert product %s: %w", p.Name, err)
		}
		res.Products = append(res.Products, *saved)
	}
	for _, u := range demoUsers {
		saved, err := users.EnsureByEmail(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("ensure user %s: %w", u.Email, err)
		}
		res.Users = append(res.Users, *saved)
	}
	return res, nil
}

func ptr[T any](v T) *T {
	return &v
}
