package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"conti/internal/core"
	"conti/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

// UserStore registers and verifies users. It keeps no state of its own:
// every call reads the repository.
type UserStore struct {
	repo   storage.UserRepository
	logger *slog.Logger
	cost   int
}

func NewUserStore(repo storage.UserRepository, logger *slog.Logger) *UserStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserStore{repo: repo, logger: logger, cost: bcrypt.DefaultCost}
}

// WithCost returns a copy of s hashing with the given bcrypt cost.
func (s *UserStore) WithCost(cost int) *UserStore {
	c := *s
	c.cost = cost
	return &c
}

// Create registers a user, reporting why it could not: ErrInvalidInput,
// ErrDuplicateUser or ErrStorageFailure. The username is stored exactly as
// given, so every later lookup matches it byte for byte.
func (s *UserStore) Create(ctx context.Context, username, password, email string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return fmt.Errorf("%w: username and password are required", core.ErrInvalidInput)
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to read users", "error", err)
		return err
	}
	if _, ok := find(users, username); ok {
		return fmt.Errorf("register %q: %w", username, core.ErrDuplicateUser)
	}

	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrInvalidInput, err)
	}
	u := core.User{Username: username, PasswordHash: hash, Email: strings.TrimSpace(email)}
	if err := s.repo.AppendUser(ctx, u); err != nil {
		if !errors.Is(err, core.ErrDuplicateUser) {
			s.logger.ErrorContext(ctx, "Failed to save user", "username", username, "error", err)
		}
		return err
	}
	s.logger.InfoContext(ctx, "User registered", "username", username)
	return nil
}

// Register is Create reduced to success or failure.
func (s *UserStore) Register(ctx context.Context, username, password, email string) bool {
	return s.Create(ctx, username, password, email) == nil
}

// Authenticate returns the user when password matches, ErrAuthFailure
// otherwise, including for unknown usernames.
func (s *UserStore) Authenticate(ctx context.Context, username, password string) (core.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to read users", "error", err)
		return core.User{}, core.ErrAuthFailure
	}
	u, ok := find(users, username)
	if !ok || !CheckPassword(u.PasswordHash, password) {
		return core.User{}, core.ErrAuthFailure
	}
	return u, nil
}

// Verify reports whether password matches the one registered for username.
func (s *UserStore) Verify(ctx context.Context, username, password string) bool {
	_, err := s.Authenticate(ctx, username, password)
	return err == nil
}

// Info returns the public view of a user.
func (s *UserStore) Info(ctx context.Context, username string) (core.UserInfo, bool) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to read users", "error", err)
		return core.UserInfo{}, false
	}
	u, ok := find(users, username)
	if !ok {
		return core.UserInfo{}, false
	}
	return u.Info(), true
}

func find(users []core.User, username string) (core.User, bool) {
	for _, u := range users {
		if u.Username == username {
			return u, true
		}
	}
	return core.User{}, false
}
