// seed inserts development accounts for local testing: go run ./cmd/seed.
// Idempotent: accounts whose email already exists are skipped.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	accountdomain "storefront/backend/internal/account/domain"
	accountrepo "storefront/backend/internal/account/repository"
	"storefront/backend/internal/config"
	"storefront/backend/internal/db"
	"storefront/backend/internal/platform/logging"
	"storefront/backend/internal/security"
)

// devPassword satisfies the registration password policy.
const devPassword = "Passw0rd!dev"

type seedAccount struct {
	name     string
	email    string
	role     accountdomain.Role
	verified bool
}

var seedAccounts = []seedAccount{
	{name: "Dev Customer", email: "customer@example.com", role: accountdomain.RoleCustomer, verified: true},
	{name: "Unverified Customer", email: "unverified@example.com", role: accountdomain.RoleCustomer},
	{name: "Dev Seller", email: "seller@example.com", role: accountdomain.RoleSeller, verified: true},
	{name: "Dev Admin", email: "admin@example.com", role: accountdomain.RoleAdmin, verified: true},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Env == "production" {
		logger.Fatal("seed: refusing to run with APP_ENV=production")
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("seed: database", zap.Error(err))
	}
	defer conn.Close()

	repo := accountrepo.NewPostgresRepository(conn)
	hash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(devPassword))
	if err != nil {
		logger.Fatal("seed: hash password", zap.Error(err))
	}

	now := time.Now().UTC()
	created := 0
	for _, s := range seedAccounts {
		existing, err := repo.GetByEmail(ctx, s.email)
		if err != nil {
			logger.Fatal("seed: lookup", zap.String("email", s.email), zap.Error(err))
		}
		if existing != nil {
			logger.Info("seed: account exists; skipping", zap.String("email", s.email))
			continue
		}
		a, err := accountdomain.NewAccount(uuid.NewString(), s.name, s.email, "", hash, now)
		if err != nil {
			logger.Fatal("seed: build account", zap.String("email", s.email), zap.Error(err))
		}
		a.Role = s.role
		a.IsVerified = s.verified
		if err := repo.Create(ctx, a); err != nil {
			logger.Fatal("seed: create account", zap.String("email", s.email), zap.Error(err))
		}
		created++
	}

	logger.Info("seed completed", zap.Int("created", created))
	for _, s := range seedAccounts {
		fmt.Printf("%-8s %s / %s\n", s.role, s.email, devPassword)
	}
}
