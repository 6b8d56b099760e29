package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hskprep/hsk-backend/internal/model"
	"github.com/hskprep/hsk-backend/internal/repository"
)

// AccountService handles user registration and profile access.
type AccountService struct {
	users *repository.UserRepository
	auth  *AuthService
	log   zerolog.Logger
}

// NewAccountService creates a new AccountService.
func NewAccountService(users *repository.UserRepository, auth *AuthService, log zerolog.Logger) *AccountService {
	return &AccountService{
		users: users,
		auth:  auth,
		log:   log.With().Str("component", "account_service").Logger(),
	}
}

// newProfile builds the default profile for a fresh registration. Kept as an
// explicit factory so the registration flow shows everything it creates.
func newProfile(req *model.RegisterRequest) *model.Profile {
	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}
	target := req.TargetHSKLevel
	if target == 0 {
		target = 1
	}
	return &model.Profile{DisplayName: displayName, TargetHSKLevel: target}
}

// Register creates a user and their profile in one transaction. Duplicate
// username or email surfaces as repository.ErrDuplicateUser.
func (s *AccountService) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	}
	profile := newProfile(req)

	if err := s.users.Create(ctx, user, profile); err != nil {
		return nil, err
	}

	s.log.Info().Int("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	return user, nil
}

// Login verifies credentials and issues a token for the user.
func (s *AccountService) Login(ctx context.Context, req *model.LoginRequest) (string, *model.User, error) {
	user, err := s.users.GetByUsername(ctx, req.Username)
	if err != nil {
		// Uniform failure regardless of which part was wrong.
		return "", nil, ErrInvalidCredentials
	}
	if err := s.auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.auth.GenerateUserToken(ctx, user.ID)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	return token, user, nil
}

// Profile returns the user's profile.
func (s *AccountService) Profile(ctx context.Context, userID int) (*model.Profile, error) {
	return s.users.GetProfile(ctx, userID)
}
