package service

import (
	"context"
	"strings"

	"slotbook/internal/domain"
	"slotbook/internal/models"

	"github.com/rs/zerolog"
)

type UserService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewUserService(repo domain.Repository, logger *zerolog.Logger) *UserService {
	return &UserService{
		repo:   repo,
		logger: logger,
	}
}

// SearchUsers finds users by phone or email, the same lookup BookNew runs.
func (s *UserService) SearchUsers(ctx context.Context, phone, email string) ([]*models.User, error) {
	if strings.TrimSpace(phone) == "" && strings.TrimSpace(email) == "" {
		return nil, domain.NewValidationError("phone_number", "phone number or email is required")
	}
	users, err := s.repo.FindUsersByContact(ctx, phone, email)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

func (s *UserService) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.GetUserByID(ctx, id)
}
