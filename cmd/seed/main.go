// seed inserts development principals for local testing.
// Idempotent: skips inserts if the dev user already exists.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"commerce-auth/backend/internal/app"
	"commerce-auth/backend/internal/config"
	"commerce-auth/backend/internal/logging"
	principaldomain "commerce-auth/backend/internal/principal/domain"
	"commerce-auth/backend/internal/security"
)

const (
	devUsername      = "dev-staff"
	devPassword      = "password123"
	customerUsername = "shopper"
	customerEmail    = "shopper@example.com"
	customer2Email   = "guest@example.com"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	ctx := context.Background()

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer stores.Close()

	existing, err := stores.Principals.GetUserByUsername(ctx, devUsername)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Printf("Seed already applied (%s exists). Skipping.", devUsername)
		return
	}

	passwordHash, err := security.NewHasher(cfg.HashConfig()).Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	role := uuid.NewString()
	if err := stores.Principals.CreateUser(ctx, &principaldomain.User{
		ID:           uuid.NewString(),
		Username:     devUsername,
		PasswordHash: passwordHash,
		RoleID:       &role,
	}); err != nil {
		log.Fatalf("create dev user: %v", err)
	}
	if err := stores.Principals.CreateCustomer(ctx, &principaldomain.Customer{
		ID:           uuid.NewString(),
		Username:     customerUsername,
		Email:        customerEmail,
		PasswordHash: passwordHash,
	}); err != nil {
		log.Fatalf("create customer: %v", err)
	}
	if err := stores.Principals.CreateCustomer(ctx, &principaldomain.Customer{
		ID:           uuid.NewString(),
		Email:        customer2Email,
		PasswordHash: passwordHash,
	}); err != nil {
		log.Fatalf("create email-only customer: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Staff login:    %s / %s\n", devUsername, devPassword)
	fmt.Printf("Customer login: %s or %s / %s\n", customerUsername, customerEmail, devPassword)
	fmt.Printf("Customer login: %s / %s\n", customer2Email, devPassword)
}
