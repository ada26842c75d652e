package services

import (
	"context"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"taskgrid/internal/apperr"
	"taskgrid/internal/models"
	"taskgrid/internal/store"
)

func newAuthEnv(t *testing.T) (*AuthService, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	return NewAuthService(st, NewJWTService("test-secret")), st
}

func TestRegisterAndLogin(t *testing.T) {
	auth, _ := newAuthEnv(t)
	ctx := context.Background()

	user, err := auth.Register(ctx, models.RegisterRequest{
		Username:  "sam",
		Email:     "Sam@Example.com",
		Password:  "hunter22",
		FirstName: "Sam",
		LastName:  "Porter",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Role != models.RoleTeamMember {
		t.Fatalf("default role %s, want team_member", user.Role)
	}
	if user.Email != "sam@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if user.PasswordHash == "hunter22" {
		t.Fatal("password stored in plain text")
	}

	resp, err := auth.Login(ctx, models.LoginRequest{Username: "sam", Password: "hunter22"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("no access token issued")
	}

	// The token round-trips through validation.
	jwtSvc := NewJWTService("test-secret")
	id, claims, err := jwtSvc.ValidateToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if id != user.ID || claims.Role != models.RoleTeamMember {
		t.Fatalf("claims mismatch: id=%s role=%s", id.Hex(), claims.Role)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth, _ := newAuthEnv(t)
	ctx := context.Background()

	if _, err := auth.Register(ctx, models.RegisterRequest{
		Username: "sam", Email: "sam@example.com", Password: "hunter22",
		FirstName: "Sam", LastName: "Porter",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := auth.Login(ctx, models.LoginRequest{Username: "sam", Password: "wrong"}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("bad password must fail validation, got %v", err)
	}
	if _, err := auth.Login(ctx, models.LoginRequest{Username: "nobody", Password: "x"}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("unknown user must fail validation, got %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	auth, _ := newAuthEnv(t)
	ctx := context.Background()

	req := models.RegisterRequest{
		Username: "sam", Email: "sam@example.com", Password: "hunter22",
		FirstName: "Sam", LastName: "Porter",
	}
	if _, err := auth.Register(ctx, req); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := auth.Register(ctx, req); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("duplicate registration must fail validation, got %v", err)
	}
}

func TestLoginRefusesInactiveAccount(t *testing.T) {
	auth, st := newAuthEnv(t)
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := st.CreateUser(ctx, &models.User{
		Username:     "sam",
		Email:        "sam@example.com",
		PasswordHash: string(hash),
		Role:         models.RoleTeamMember,
		IsActive:     false,
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, err := auth.Login(ctx, models.LoginRequest{Username: "sam", Password: "hunter22"}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("inactive login must be forbidden, got %v", err)
	}
}
