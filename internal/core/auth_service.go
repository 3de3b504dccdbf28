package core

import (
	"context"
	"errors"
	"fmt"

	"insurechat.io/rag-backend/internal/auth"
	"insurechat.io/rag-backend/internal/logger"
	"insurechat.io/rag-backend/internal/store"
)

type AuthService struct {
	admins AdminStore
	tokens *auth.TokenIssuer
	log    *logger.Logger
}

func NewAuthService(admins AdminStore, tokens *auth.TokenIssuer, log *logger.Logger) *AuthService {
	return &AuthService{
		admins: admins,
		tokens: tokens,
		log:    log.With("service", "AuthService"),
	}
}

// Login checks the admin's password and issues an access token.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", ErrInvalidCredentials
	}

	admin, err := s.admins.GetAdminByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("failed to look up admin: %w", err)
	}
	if admin == nil || !auth.CheckPasswordHash(password, admin.PasswordHash) {
		s.log.Warn("Failed login attempt", "username", username)
		return "", ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(admin.Username)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return token, nil
}

// Authenticate resolves a bearer token to an existing admin.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*store.AdminUser, error) {
	username, err := s.tokens.Validate(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	admin, err := s.admins.GetAdminByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up admin: %w", err)
	}
	if admin == nil {
		return nil, ErrUnauthorized
	}
	return admin, nil
}

// EnsureAdmin creates the admin if it does not exist yet. It reports whether a row was created.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, errors.New("admin username and password are required")
	}

	exists, err := s.AdminExists(ctx, username)
	if err != nil || exists {
		return false, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("failed to hash admin password: %w", err)
	}
	if _, err := s.admins.CreateAdmin(ctx, username, hash); err != nil {
		return false, err
	}
	s.log.Info("Admin user created", "username", username)
	return true, nil
}

func (s *AuthService) AdminExists(ctx context.Context, username string) (bool, error) {
	admin, err := s.admins.GetAdminByUsername(ctx, username)
	if err != nil {
		return false, fmt.Errorf("failed to look up admin: %w", err)
	}
	return admin != nil, nil
}

func (s *AuthService) TokenTTL() int64 {
	return int64(s.tokens.TTL().Seconds())
}
