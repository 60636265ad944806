package repository

import (
	"context"
	"strings"
	"sync"

	"commerce-auth/backend/internal/principal/domain"
)

// MemoryRepository is an in-process Repository for tests and local development.
type MemoryRepository struct {
	mu        sync.Mutex
	users     map[string]*domain.User
	customers map[string]*domain.Customer
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:     make(map[string]*domain.User),
		customers: make(map[string]*domain.Customer),
	}
}

func (r *MemoryRepository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) GetCustomerByLogin(ctx context.Context, login string) (*domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var byEmail *domain.Customer
	for _, c := range r.customers {
		if c.Username != "" && c.Username == login {
			cp := *c
			return &cp, nil
		}
		if strings.EqualFold(c.Email, login) {
			byEmail = c
		}
	}
	if byEmail == nil {
		return nil, nil
	}
	cp := *byEmail
	return &cp, nil
}

func (r *MemoryRepository) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// CreateUser stores a copy of u.
func (r *MemoryRepository) CreateUser(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

// CreateCustomer stores a copy of c.
func (r *MemoryRepository) CreateCustomer(ctx context.Context, c *domain.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.customers[c.ID] = &cp
	return nil
}

// DeleteCustomer removes the customer with id.
func (r *MemoryRepository) DeleteCustomer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.customers, id)
}
