package order

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"strconv"

	"storefront/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

const orderColumns = `id::text, user_id::text, lines, total_items, total_price::float8, status, created_at`

func (r *postgresRepo) Create(ctx context.Context, o domain.Order) (*domain.Order, error) {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return nil, err
	}
	status := o.Status
	if status == "" {
		status = domain.OrderStatusPending
	}
	q := `
INSERT INTO orders (user_id, lines, total_items, total_price, status)
VALUES ($1, $2, $3, $4::numeric, $5)
RETURNING ` + orderColumns
	created, err := scanOrder(r.pool.QueryRow(ctx, q,
		o.UserID,
		linesJSON,
		o.TotalItems,
		strconv.FormatFloat(o.TotalPrice, 'f', 2, 64),
		string(status),
	))
	if err != nil {
		r.logger.Printf("order repo: create user_id=%s error=%v", o.UserID, err)
		return nil, err
	}
	r.logger.Printf("order repo: created id=%s user_id=%s total_items=%d", created.ID, created.UserID, created.TotalItems)
	return created, nil
}

func (r *postgresRepo) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		r.logger.Printf("order repo: list user_id=%s error=%v", userID, err)
		return nil, err
	}
	defer rows.Close()

	var result []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *o)
	}
	return result, rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o         domain.Order
		linesJSON []byte
		status    string
	)
	if err := row.Scan(&o.ID, &o.UserID, &linesJSON, &o.TotalItems, &o.TotalPrice, &status, &o.CreatedAt); err != nil {
		return nil, err
	}
	if len(linesJSON) > 0 {
		if err := json.Unmarshal(linesJSON, &o.Lines); err != nil {
			return nil, err
		}
	}
	o.Status = domain.OrderStatus(status)
	return &o, nil
}
