package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"talkroom/internal/core/domain"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// AccountService handles the user lifecycle behind the HTTP auth surface:
// signup with a hashed password and credential checks on login.
type AccountService struct {
	log       *slog.Logger
	directory domain.DirectoryRepository
	txManager TxRunner
}

func NewAccountService(log *slog.Logger, directory domain.DirectoryRepository, txManager TxRunner) *AccountService {
	return &AccountService{
		log:       log,
		directory: directory,
		txManager: txManager,
	}
}

func (s *AccountService) SignUp(ctx context.Context, username, password string) (*domain.User, error) {
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
	}
	if err := s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if existing, err := s.directory.GetUserByUsername(txCtx, username); err == nil && existing != nil {
			return domain.ErrUserExists
		}
		return s.directory.CreateUser(txCtx, user)
	}); err != nil {
		s.log.ErrorContext(ctx, "account - sign up - create user failed", "username", username, "err", err)
		return nil, err
	}
	s.log.InfoContext(ctx, "account - sign up - create user success", "username", username, "user_id", user.ID)
	return user, nil
}

func (s *AccountService) SignIn(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.directory.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrBadCredentials
		}
		s.log.ErrorContext(ctx, "account - sign in - lookup failed", "username", username, "err", err)
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.log.InfoContext(ctx, "account - sign in - wrong password", "username", username)
		return nil, domain.ErrBadCredentials
	}
	return user, nil
}
