package user

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"

	"storefront/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// NewPostgres returns a Repository backed by Postgres.
func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

const userColumns = `id::text, email, first_name, last_name, role, created_at`

func (r *postgresRepo) Create(ctx context.Context, u domain.User) (*domain.User, error) {
	q := `
INSERT INTO users (email, first_name, last_name, role)
VALUES ($1, $2, $3, $4)
RETURNING ` + userColumns
	return r.scanUser(r.pool.QueryRow(ctx, q, strings.ToLower(u.Email), u.FirstName, u.LastName, roleOrDefault(u.Role)))
}

// EnsureByEmail inserts the user or refreshes names and role of the existing row.
func (r *postgresRepo) EnsureByEmail(ctx context.Context, u domain.User) (*domain.User, error) {
	q := `
INSERT INTO users (email, first_name, last_name, role)
VALUES ($1, $2, $3, $4)
ON CONFLICT (email) DO UPDATE SET
    first_name = EXCLUDED.first_name,
    last_name = EXCLUDED.last_name,
    role = EXCLUDED.role
RETURNING ` + userColumns
	return r.scanUser(r.pool.QueryRow(ctx, q, strings.ToLower(u.Email), u.FirstName, u.LastName, roleOrDefault(u.Role)))
}

// Sync mirrors an identity-provider user by id. Email and role follow the
// token; names set by seed tooling are kept. A user without an email gets a
// placeholder so the unique column stays satisfied.
func (r *postgresRepo) Sync(ctx context.Context, u domain.User) (*domain.User, error) {
	q := `
INSERT INTO users (id, email, role)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET
    email = EXCLUDED.email,
    role = EXCLUDED.role
RETURNING ` + userColumns
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email == "" {
		email = u.ID + "@users.invalid"
	}
	synced, err := r.scanUser(r.pool.QueryRow(ctx, q, u.ID, email, roleOrDefault(u.Role)))
	if err != nil {
		r.logger.Printf("user repo: sync id=%s error=%v", u.ID, err)
		return nil, err
	}
	return synced, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	return r.scanUser(r.pool.QueryRow(ctx, q, id))
}

func (r *postgresRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1) LIMIT 1`
	return r.scanUser(r.pool.QueryRow(ctx, q, email))
}

func (r *postgresRepo) scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrAlreadyExists
		}
		r.logger.Printf("user repo: scan error=%v", err)
		return nil, err
	}
	u.Role = domain.Role(role)
	return &u, nil
}

func roleOrDefault(role domain.Role) string {
	if role == "" {
		return string(domain.RoleCustomer)
	}
	return string(role)
}
