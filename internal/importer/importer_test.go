package importer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"storefront/internal/domain"
	"storefront/internal/price"
)

type stubProductRepo struct {
	items []domain.Product
}

func (s *stubProductRepo) Upsert(_ context.Context, p domain.Product) (*domain.Product, error) {
	s.items = append(s.items, p)
	return &p, nil
}

func TestCSVImporter_Run(t *testing.T) {
	csvData := `id,name,description,price,original_price,stock_quantity,image_url
00000000-0000-0000-0000-000000000001,Data bundle 5GB,Monthly bundle,19.99,24.99,40,https://example.com/bundle.png

,Airtime 10,,10,,,
`

	repo := &stubProductRepo{}
	imp := NewCSVImporter(strings.NewReader(csvData), repo)

	count, err := imp.Run(context.Background())
	if err != nil {
		t.Fatalf("import run: %v", err)
	}
	if count != 2 || len(repo.items) != 2 {
		t.Fatalf("expected 2 products imported, got %d (%d saved)", count, len(repo.items))
	}

	first := repo.items[0]
	if first.ID != "00000000-0000-0000-0000-000000000001" || first.Name != "Data bundle 5GB" || first.StockQuantity != 40 {
		t.Fatalf("unexpected product data: %+v", first)
	}
	if first.Price.Kind() != price.KindString || price.Normalize(first.Price) != 19.99 {
		t.Fatalf("expected textual price 19.99, got %+v", first.Price)
	}
	if first.OriginalPrice == nil || price.Normalize(*first.OriginalPrice) != 24.99 {
		t.Fatalf("expected original price, got %+v", first.OriginalPrice)
	}

	second := repo.items[1]
	if second.ID != "" || second.StockQuantity != 0 || second.OriginalPrice != nil {
		t.Fatalf("unexpected defaults: %+v", second)
	}
}

func TestCSVImporter_RejectsInvalidRows(t *testing.T) {
	cases := map[string]string{
		"missing name":   "name,price\n,10\n",
		"bad price":      "name,price\nAirtime,ten\n",
		"negative price": "name,price\nAirtime,-1\n",
		"bad stock":      "name,price,stock_quantity\nAirtime,10,-3\n",
		"bad id":         "id,name,price\nnot-a-uuid,Airtime,10\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			repo := &stubProductRepo{}
			_, err := NewCSVImporter(strings.NewReader(data), repo).Run(context.Background())
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
			if len(repo.items) != 0 {
				t.Fatalf("expected nothing saved, got %d", len(repo.items))
			}
		})
	}
}

func TestCSVImporter_RequiresColumns(t *testing.T) {
	_, err := NewCSVImporter(strings.NewReader("id,name\n"), &stubProductRepo{}).Run(context.Background())
	if err == nil {
		t.Fatalf("expected error for missing price column")
	}
}
