package repository

import (
	"context"

	"commerce-auth/backend/internal/principal/domain"
)

// Repository is the read-only principal lookup used by authentication.
type Repository interface {
	// GetUserByUsername returns the internal user, or nil if not found.
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	// GetCustomerByLogin returns the customer whose username or email equals login, or nil if not found.
	GetCustomerByLogin(ctx context.Context, login string) (*domain.Customer, error)
	// GetCustomerByID returns the customer with id, or nil if not found.
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
}
