// Command seed creates the initial admin account so a fresh
// deployment has someone who can assign tasks.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"taskgrid/internal/config"
	"taskgrid/internal/models"
	"taskgrid/internal/store"
)

func main() {
	username := flag.String("username", "admin", "admin username")
	email := flag.String("email", "admin@example.com", "admin email")
	password := flag.String("password", "", "admin password (required)")
	firstName := flag.String("first-name", "System", "admin first name")
	lastName := flag.String("last-name", "Admin", "admin last name")
	flag.Parse()

	if *password == "" {
		log.Fatal("the -password flag is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	st, err := store.NewMongo(cfg.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer st.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	admin := &models.User{
		Username:     *username,
		Email:        *email,
		PasswordHash: string(hash),
		FirstName:    *firstName,
		LastName:     *lastName,
		Role:         models.RoleAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := st.CreateUser(ctx, admin); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			log.Fatalf("An account with username %q or email %q already exists", *username, *email)
		}
		log.Fatalf("Failed to create admin account: %v", err)
	}
	log.Printf("Created admin account %s (%s)", admin.Username, admin.ID.Hex())
}
