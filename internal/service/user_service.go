package service

import (
	"context"
	"fmt"

	"github.com/spec-kit/crm-admin/internal/domain"
	"github.com/spec-kit/crm-admin/internal/repository"
)

// UserService exposes read access to accounts and their audit history.
type UserService struct {
	users   repository.UserRepository
	history repository.HistoryRepository
}

// NewUserService builds the service.
func NewUserService(users repository.UserRepository, history repository.HistoryRepository) *UserService {
	return &UserService{users: users, history: history}
}

// Get returns the user without credentials. Missing users yield
// repository.ErrNotFound.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.Sanitized(), nil
}

// History lists the newest audit entries of a user.
func (s *UserService) History(ctx context.Context, userID string, limit int) ([]domain.HistoryEntry, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	return entries, nil
}
