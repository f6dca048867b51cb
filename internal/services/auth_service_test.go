package services

import (
	"context"
	"testing"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/repositories"
	"github.com/ArowuTest/telegram-marketing-backend/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

func TestAuthService_Register(t *testing.T) {
	repo := new(MockAdminUserRepository)
	tokens := jwt.NewTokenService("test-secret", time.Hour)
	svc := NewAuthService(repo, tokens)
	ctx := context.Background()

	repo.On("FindByEmail", ctx, "ops@example.com").Return(nil, repositories.ErrNotFound).Once()
	repo.On("Create", ctx, mock.MatchedBy(func(a *models.AdminUser) bool {
		return a.Email == "ops@example.com" && a.Role == "admin" &&
			bcrypt.CompareHashAndPassword([]byte(a.Password), []byte("password123")) == nil
	})).Return(nil).Once()

	admin, err := svc.Register(ctx, &models.RegisterRequest{
		FirstName: "Ada", LastName: "Ops", Email: " Ops@Example.com ", Password: "password123",
	})
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", admin.Email)
	assert.NotEqual(t, "password123", admin.Password)
	repo.AssertExpectations(t)
}

func TestAuthService_RegisterEmailTaken(t *testing.T) {
	repo := new(MockAdminUserRepository)
	svc := NewAuthService(repo, jwt.NewTokenService("test-secret", time.Hour))
	ctx := context.Background()

	repo.On("FindByEmail", ctx, "ops@example.com").Return(&models.AdminUser{Email: "ops@example.com"}, nil).Once()
	_, err := svc.Register(ctx, &models.RegisterRequest{Email: "ops@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	// lost the race on the unique index
	repo.On("FindByEmail", ctx, "new@example.com").Return(nil, repositories.ErrNotFound).Once()
	repo.On("Create", ctx, mock.Anything).Return(repositories.ErrDuplicate).Once()
	_, err = svc.Register(ctx, &models.RegisterRequest{Email: "new@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrEmailTaken)
	repo.AssertExpectations(t)
}

func TestAuthService_Login(t *testing.T) {
	repo := new(MockAdminUserRepository)
	tokens := jwt.NewTokenService("test-secret", time.Hour)
	svc := NewAuthService(repo, tokens)
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	stored := &models.AdminUser{ID: primitive.NewObjectID(), Email: "ops@example.com", Password: string(hash), Role: "admin"}
	repo.On("FindByEmail", ctx, "ops@example.com").Return(stored, nil)
	repo.On("FindByEmail", ctx, "nobody@example.com").Return(nil, repositories.ErrNotFound)

	token, admin, err := svc.Login(ctx, &models.LoginRequest{Email: "ops@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, stored, admin)
	claims, err := tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, stored.ID.Hex(), claims.Subject)
	assert.Equal(t, "admin", claims.Role)

	_, _, err = svc.Login(ctx, &models.LoginRequest{Email: "ops@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, &models.LoginRequest{Email: "nobody@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
