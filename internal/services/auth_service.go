package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"taskgrid/internal/apperr"
	"taskgrid/internal/models"
	"taskgrid/internal/store"
)

// AuthService handles registration, login, and profile management.
type AuthService struct {
	store store.Store
	jwt   *JWTService
}

// NewAuthService creates a new auth service.
func NewAuthService(st store.Store, jwt *JWTService) *AuthService {
	return &AuthService{store: st, jwt: jwt}
}

// Register creates a new account. Role defaults to team_member.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	role := req.Role
	if role == "" {
		role = models.RoleTeamMember
	}
	if !models.ValidRole(role) {
		return nil, apperr.Validation("invalid role")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Dependency("password hashing", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Validation("username or email already registered")
		}
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and issues a token. Inactive accounts
// are refused.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	user, err := s.store.UserByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Validation("invalid username or password")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperr.Validation("invalid username or password")
	}
	if !user.IsActive {
		return nil, apperr.Forbidden("active account")
	}

	token, err := s.jwt.GenerateToken(user)
	if err != nil {
		return nil, apperr.Dependency("token signing", err)
	}
	return &models.LoginResponse{
		Message:     "Login successful",
		AccessToken: token,
		User:        user,
	}, nil
}

// Me returns the live user record for the authenticated caller.
func (s *AuthService) Me(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfile patches the caller's own name and email.
func (s *AuthService) UpdateProfile(ctx context.Context, userID primitive.ObjectID, firstName, lastName, email *string) (*models.User, error) {
	if email != nil {
		normalized := strings.ToLower(strings.TrimSpace(*email))
		if normalized == "" {
			return nil, apperr.Validation("email must not be empty")
		}
		email = &normalized
	}
	user, err := s.store.UpdateUserProfile(ctx, userID, firstName, lastName, email)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, apperr.NotFound("user")
		case errors.Is(err, store.ErrDuplicate):
			return nil, apperr.Validation("email already registered")
		}
		return nil, err
	}
	return user, nil
}

// requireUser loads the live user record and checks the account is
// active. Tokens carry a role claim but authorization always uses the
// stored role.
func requireUser(ctx context.Context, st store.Store, id primitive.ObjectID) (*models.User, error) {
	user, err := st.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, apperr.Forbidden("active account")
	}
	return user, nil
}

// requireRole loads the live user and checks it holds one of the
// allowed roles.
func requireRole(ctx context.Context, st store.Store, id primitive.ObjectID, roles ...models.Role) (*models.User, error) {
	user, err := requireUser(ctx, st, id)
	if err != nil {
		return nil, err
	}
	for _, r := range roles {
		if user.Role == r {
			return user, nil
		}
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return nil, apperr.Forbidden(strings.Join(names, " or "))
}
