package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"commerce-auth/backend/internal/principal/domain"
)

// customerByLoginSQL prefers an exact username match; customers without a username sort as non-matches.
const customerByLoginSQL = `SELECT id, username, email, password_hash FROM customers
	WHERE username = $1 OR lower(email) = lower($1)
	ORDER BY COALESCE(username = $1, false) DESC
	LIMIT 1`

// PostgresRepository reads users and customers from Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a principal repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetUserByUsername returns the user for username, or nil if not found.
func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var (
		u      domain.User
		roleID sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role_id FROM users WHERE username = $1`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &roleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if roleID.Valid {
		u.RoleID = &roleID.String
	}
	return &u, nil
}

// GetCustomerByLogin matches login against username, then case-insensitively against email.
func (r *PostgresRepository) GetCustomerByLogin(ctx context.Context, login string) (*domain.Customer, error) {
	var (
		c        domain.Customer
		username sql.NullString
	)
	err := r.db.QueryRowContext(ctx, customerByLoginSQL, login).Scan(&c.ID, &username, &c.Email, &c.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	c.Username = username.String
	return &c, nil
}

// GetCustomerByID returns the customer with id, or nil if not found.
func (r *PostgresRepository) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var (
		c        domain.Customer
		username sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash FROM customers WHERE id = $1`, id,
	).Scan(&c.ID, &username, &c.Email, &c.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get customer by id: %w", err)
	}
	c.Username = username.String
	return &c, nil
}

// CreateUser inserts a user unless the username exists. Used by seeding; authentication never writes principals.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *domain.User) error {
	var roleID sql.NullString
	if u.RoleID != nil {
		roleID = sql.NullString{String: *u.RoleID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (id, username, password_hash, role_id)
		VALUES ($1, $2, $3, $4) ON CONFLICT (username) DO NOTHING`,
		u.ID, u.Username, u.PasswordHash, roleID)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// CreateCustomer inserts a customer unless the email exists. Used by seeding.
func (r *PostgresRepository) CreateCustomer(ctx context.Context, c *domain.Customer) error {
	username := sql.NullString{String: c.Username, Valid: c.Username != ""}
	_, err := r.db.ExecContext(ctx, `INSERT INTO customers (id, username, email, password_hash)
		VALUES ($1, $2, $3, $4) ON CONFLICT (email) DO NOTHING`,
		c.ID, username, c.Email, c.PasswordHash)
	if err != nil {
		return fmt.Errorf("create customer: %w", err)
	}
	return nil
}
