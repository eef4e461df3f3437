package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"expense-api/internal/auth"
	"expense-api/internal/config"
	"expense-api/internal/handlers"
	"expense-api/internal/storage"
)

// defaultCategories seed an empty database so new installs have something
// to file expenses under.
var defaultCategories = []string{
	"Food",
	"Transport",
	"Entertainment",
	"Utilities",
	"Housing",
	"Gifts",
	"Other",
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedCategories(db); err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}
	if err := bootstrapAdmin(db, cfg.AdminUser, cfg.AdminPassword); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	issuer := auth.NewTokenIssuer([]byte(cfg.SecretKey), cfg.TokenTTL)
	h := handlers.NewHandlers(db, auth.NewService(db, issuer))

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Mount("/", h.Routes())

	log.Printf("Server starting on port %s...", cfg.Port)
	return http.ListenAndServe(":"+cfg.Port, r)
}

// seedCategories inserts the default category set. Idempotent; does
// nothing if any categories already exist.
func seedCategories(db *storage.DB) error {
	count, err := db.CategoryCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, name := range defaultCategories {
		if _, err := db.CreateCategory(name); err != nil {
			return err
		}
	}
	return nil
}

// bootstrapAdmin creates an initial admin account when the user table is
// empty and ADMIN_USER/ADMIN_PASSWORD are configured.
func bootstrapAdmin(db *storage.DB, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	user, err := db.CreateUser(username, username+"@localhost", hash, true)
	if err != nil {
		return err
	}
	log.Printf("Created admin user %s with ID %d", user.Username, user.ID)
	return nil
}
