package services

import (
	"context"
	"errors"

	"github.com/biblio-hub/apiserver/types"
)

// ErrInvalidRole is returned when an operation names an unknown role.
var ErrInvalidRole = errors.New("invalid role")

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Get(ctx context.Context, role types.Role, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	List(ctx context.Context, role types.Role) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, role types.Role, id string) error
}

// UserService encapsulates user-administration use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) Get(ctx context.Context, role types.Role, id string) (types.User, error) {
	if !role.Valid() {
		return types.User{}, ErrInvalidRole
	}
	return s.repo.Get(ctx, role, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

// List returns users of one role, or all users when role is empty.
func (s *UserService) List(ctx context.Context, role types.Role) ([]types.User, error) {
	if role != "" && !role.Valid() {
		return nil, ErrInvalidRole
	}
	return s.repo.List(ctx, role)
}

func (s *UserService) Create(ctx context.Context, user types.User) (types.User, error) {
	if !user.Role.Valid() {
		return types.User{}, ErrInvalidRole
	}
	return s.repo.Create(ctx, user)
}

func (s *UserService) Update(ctx context.Context, user types.User) (types.User, error) {
	if !user.Role.Valid() {
		return types.User{}, ErrInvalidRole
	}
	return s.repo.Update(ctx, user)
}

func (s *UserService) Delete(ctx context.Context, role types.Role, id string) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	return s.repo.Delete(ctx, role, id)
}
