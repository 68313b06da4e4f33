package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"storefront/internal/domain"
	"storefront/internal/price"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

// CSVImporter reads catalog CSV exports and inserts or updates products.
// Recognised columns: id, name, description, price, original_price,
// stock_quantity, image_url. Unknown columns are ignored.
type CSVImporter struct {
	reader      *csv.Reader
	productRepo ProductWriter
}

func NewCSVImporter(r io.Reader, repo ProductWriter) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	csvr.TrimLeadingSpace = true
	return &CSVImporter{
		reader:      csvr,
		productRepo: repo,
	}
}

// Run parses every row and upserts it. It stops at the first invalid row and
// reports how many products were written before it.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	if _, ok := index["name"]; !ok {
		return 0, errors.New("read headers: missing name column")
	}
	if _, ok := index["price"]; !ok {
		return 0, errors.New("read headers: missing price column")
	}

	imported := 0
	for line := 2; ; line++ {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row %d: %w", line, err)
		}
		if blank(record) {
			continue
		}

		p, err := parseRow(record, index)
		if err != nil {
			return imported, fmt.Errorf("row %d: %w", line, err)
		}
		if _, err := i.productRepo.Upsert(ctx, p); err != nil {
			return imported, fmt.Errorf("upsert product %q: %w", p.Name, err)
		}
		imported++
	}

	return imported, nil
}

func parseRow(record []string, index map[string]int) (domain.Product, error) {
	p := domain.Product{
		ID:          pick(record, index, "id"),
		Name:        pick(record, index, "name"),
		Description: pick(record, index, "description"),
		ImageURL:    pick(record, index, "image_url"),
	}
	if p.Name == "" {
		return p, fmt.Errorf("%w: name required", domain.ErrInvalidInput)
	}
	if p.ID != "" {
		if _, err := uuid.Parse(p.ID); err != nil {
			return p, fmt.Errorf("%w: invalid id %q", domain.ErrInvalidInput, p.ID)
		}
	}

	amount, err := parsePrice(pick(record, index, "price"))
	if err != nil {
		return p, fmt.Errorf("price: %w", err)
	}
	p.Price = amount

	if raw := pick(record, index, "original_price"); raw != "" {
		original, err := parsePrice(raw)
		if err != nil {
			return p, fmt.Errorf("original_price: %w", err)
		}
		p.OriginalPrice = &original
	}

	if raw := pick(record, index, "stock_quantity"); raw != "" {
		stock, err := strconv.Atoi(raw)
		if err != nil || stock < 0 {
			return p, fmt.Errorf("%w: invalid stock_quantity %q", domain.ErrInvalidInput, raw)
		}
		p.StockQuantity = stock
	}
	return p, nil
}

// parsePrice keeps the textual form so the catalog serialises what the file said.
func parsePrice(raw string) (price.Numeric, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return price.Numeric{}, fmt.Errorf("%w: invalid amount %q", domain.ErrInvalidInput, raw)
	}
	if d.IsNegative() {
		return price.Numeric{}, fmt.Errorf("%w: negative amount %q", domain.ErrInvalidInput, raw)
	}
	return price.FromString(raw), nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
