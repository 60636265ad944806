package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"commerce-auth/backend/internal/principal/domain"
)

type userModel struct {
	ID           string  `gorm:"type:varchar(36);primaryKey"`
	Username     string  `gorm:"type:varchar(191);uniqueIndex;not null"`
	PasswordHash string  `gorm:"type:varchar(255);not null"`
	RoleID       *string `gorm:"type:varchar(36)"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userModel) TableName() string { return "users" }

type customerModel struct {
	ID           string  `gorm:"type:varchar(36);primaryKey"`
	Username     *string `gorm:"type:varchar(191);uniqueIndex"`
	Email        string  `gorm:"type:varchar(191);uniqueIndex;not null"`
	PasswordHash string  `gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (customerModel) TableName() string { return "customers" }

func (m *customerModel) toDomain() *domain.Customer {
	c := &domain.Customer{ID: m.ID, Email: m.Email, PasswordHash: m.PasswordHash}
	if m.Username != nil {
		c.Username = *m.Username
	}
	return c
}

// GormRepository reads users and customers through GORM (MySQL or SQLite).
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository returns a principal repository over db.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// AutoMigrate creates or updates the users and customers tables.
func (r *GormRepository) AutoMigrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&userModel{}, &customerModel{}); err != nil {
		return fmt.Errorf("migrate principals: %w", err)
	}
	return nil
}

// GetUserByUsername returns the user for username, or nil if not found.
func (r *GormRepository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var m userModel
	err := r.db.WithContext(ctx).Where("username = ?", username).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &domain.User{ID: m.ID, Username: m.Username, PasswordHash: m.PasswordHash, RoleID: m.RoleID}, nil
}

// GetCustomerByLogin matches login against username first, then case-insensitively against email.
func (r *GormRepository) GetCustomerByLogin(ctx context.Context, login string) (*domain.Customer, error) {
	var m customerModel
	db := r.db.WithContext(ctx)
	err := db.Where("username = ?", login).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = db.Where("LOWER(email) = LOWER(?)", login).Take(&m).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return m.toDomain(), nil
}

// GetCustomerByID returns the customer with id, or nil if not found.
func (r *GormRepository) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var m customerModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get customer by id: %w", err)
	}
	return m.toDomain(), nil
}

// CreateUser inserts a user. Used by seeding; authentication never writes principals.
func (r *GormRepository) CreateUser(ctx context.Context, u *domain.User) error {
	return r.db.WithContext(ctx).Create(&userModel{
		ID: u.ID, Username: u.Username, PasswordHash: u.PasswordHash, RoleID: u.RoleID,
	}).Error
}

// CreateCustomer inserts a customer. Used by seeding; authentication never writes principals.
func (r *GormRepository) CreateCustomer(ctx context.Context, c *domain.Customer) error {
	m := &customerModel{ID: c.ID, Email: c.Email, PasswordHash: c.PasswordHash}
	if c.Username != "" {
		m.Username = &c.Username
	}
	return r.db.WithContext(ctx).Create(m).Error
}
