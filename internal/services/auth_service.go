package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"strings"

	"finstack-backend/internal/auth"
	"finstack-backend/internal/config"
)

// Custom errors for auth service
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrCreatingToken      = errors.New("failed to create access token")
	ErrAdminDisabled      = errors.New("admin login not configured")
)

// AuthService authenticates the single operator account configured in the environment.
type AuthService struct {
	cfg *config.Config
}

func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// Login verifies the operator's credentials and returns an admin access token.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	if !s.cfg.AdminEnabled() {
		return "", ErrAdminDisabled
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", ErrInvalidCredentials
	}

	// Check the password even on a username mismatch to keep timing uniform.
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.AdminUsername)) == 1
	passOK := auth.CheckPasswordHash(password, s.cfg.AdminPasswordHash)
	if !userOK || !passOK {
		log.Printf("WARN [AuthService] Login: rejected credentials for %q", username)
		return "", ErrInvalidCredentials
	}

	token, err := auth.NewAccessToken(username, auth.RoleAdmin, s.cfg.JWTSecret, s.cfg.TokenExpiration())
	if err != nil {
		log.Printf("Error generating JWT for %s: %v", username, err)
		return "", ErrCreatingToken
	}

	log.Printf("Successfully logged in operator %s", username)
	return token, nil
}

// TokenTTLSeconds is reported to clients alongside the token.
func (s *AuthService) TokenTTLSeconds() int64 {
	return int64(s.cfg.TokenExpiration().Seconds())
}
