package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/repositories"
	"github.com/ArowuTest/telegram-marketing-backend/pkg/jwt"
	"golang.org/x/crypto/bcrypt"
)

const defaultAdminRole = "admin"

// AuthService defines the interface for admin authentication operations
type AuthService interface {
	Register(ctx context.Context, req *models.RegisterRequest) (*models.AdminUser, error)
	Login(ctx context.Context, req *models.LoginRequest) (string, *models.AdminUser, error) // Returns JWT token
}

type authService struct {
	adminRepo repositories.AdminUserRepository
	tokens    *jwt.TokenService
	now       func() time.Time
}

// NewAuthService creates a new AuthService implementation
func NewAuthService(adminRepo repositories.AdminUserRepository, tokens *jwt.TokenService) AuthService {
	return &authService{
		adminRepo: adminRepo,
		tokens:    tokens,
		now:       time.Now,
	}
}

// Register creates an admin account
func (s *authService) Register(ctx context.Context, req *models.RegisterRequest) (*models.AdminUser, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.adminRepo.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	admin := &models.AdminUser{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     email,
		Password:  string(hashedPassword),
		Role:      defaultAdminRole,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.adminRepo.Create(ctx, admin); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create admin user: %w", err)
	}
	return admin, nil
}

// Login checks the password and issues an access token
func (s *authService) Login(ctx context.Context, req *models.LoginRequest) (string, *models.AdminUser, error) {
	admin, err := s.adminRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, repositories.ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte(req.Password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(admin.ID.Hex(), admin.Email, admin.Role, s.now())
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return token, admin, nil
}
