package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/attendance-hub/internal/auth"
	"github.com/spec-kit/attendance-hub/internal/config"
	"github.com/spec-kit/attendance-hub/internal/domain"
	"github.com/spec-kit/attendance-hub/internal/userdata"
)

// RegisterInput carries a new account.
type RegisterInput struct {
	Name       string
	Email      string
	Password   string
	Role       domain.Role
	CompanyID  string
	Department string
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Profile   domain.UserProfile
	Token     string
	ExpiresAt time.Time
}

// AuthService coordinates registration, login and logout. Logging in makes
// the account the session baseline of the profile store.
type AuthService struct {
	profiles   *userdata.Store
	tokenMgr   *auth.TokenManager
	bcryptCost int
	logger     *zap.Logger
}

// AuthDependencies encapsulates requirements for the auth service.
type AuthDependencies struct {
	Profiles *userdata.Store
	Logger   *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		profiles:   deps.Profiles,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
		logger:     logger.Named("auth"),
	}
}

// Register creates the account in the users list, adds the employee record
// when a company is given, and opens a session for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || strings.TrimSpace(in.Name) == "" {
		return AuthResult{}, fmt.Errorf("%w: name and email are required", ErrInvalidInput)
	}
	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return AuthResult{}, err
	}

	role := in.Role
	if role == "" {
		role = domain.RoleEmployee
	}
	profile := domain.UserProfile{
		Email:      email,
		FullName:   strings.TrimSpace(in.Name),
		Department: strings.TrimSpace(in.Department),
		CompanyID:  strings.TrimSpace(in.CompanyID),
		Role:       string(role),
	}
	rec := profile.Record()
	rec[domain.FieldPasswordHash] = hash

	if err := s.profiles.RegisterUser(ctx, rec); err != nil {
		return AuthResult{}, err
	}
	if profile.CompanyID != "" {
		if err := s.profiles.PutEmployee(ctx, profile.CompanyID, profile.Record()); err != nil {
			return AuthResult{}, err
		}
	}
	s.logger.Info("user registered", zap.String("email", email), zap.String("role", string(role)))
	return s.openSession(ctx, rec)
}

// Login checks the password and opens a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	rec, err := s.profiles.FindUser(ctx, email)
	if err != nil {
		if errors.Is(err, userdata.ErrUserNotFound) {
			return AuthResult{}, auth.ErrInvalidCredentials
		}
		return AuthResult{}, err
	}
	if err := auth.ComparePassword(rec.String(domain.FieldPasswordHash), password); err != nil {
		s.logger.Info("login rejected", zap.String("email", email))
		return AuthResult{}, auth.ErrInvalidCredentials
	}
	return s.openSession(ctx, rec)
}

// Logout ends the session. Tokens are stateless; an ended session makes
// profile reads report no session.
func (s *AuthService) Logout(ctx context.Context) error {
	return s.profiles.EndSession(ctx)
}

func (s *AuthService) openSession(ctx context.Context, rec domain.Record) (AuthResult, error) {
	if err := s.profiles.StartSession(ctx, rec); err != nil {
		return AuthResult{}, err
	}
	profile, ok := s.profiles.Get(ctx)
	if !ok {
		return AuthResult{}, userdata.ErrNoSession
	}
	token, exp, err := s.tokenMgr.GenerateToken(profile.Email, domain.ParseRole(profile.Role))
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Profile: profile, Token: token, ExpiresAt: exp}, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
