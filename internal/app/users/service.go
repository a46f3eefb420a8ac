package users

import (
	"context"

	"prestige/internal/store"
)

// Store describes the persistence operations required by the user service.
type Store interface {
	CreateUser(ctx context.Context, username, password string) (int64, error)
	Authenticate(ctx context.Context, username, password string) (store.Session, error)
	DeleteSession(ctx context.Context, token string) (int64, error)
}

// Service exposes the account workflows.
type Service interface {
	Signup(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (store.Session, error)
	Logout(ctx context.Context, token string) (int64, error)
}

type service struct {
	store Store
}

// New wires a Service backed by the provided Store.
func New(store Store) Service {
	return &service{store: store}
}

func (s *service) Signup(ctx context.Context, username, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.store.CreateUser(ctx, username, password)
	return err
}

func (s *service) Login(ctx context.Context, username, password string) (store.Session, error) {
	if err := ctx.Err(); err != nil {
		return store.Session{}, err
	}
	return s.store.Authenticate(ctx, username, password)
}

func (s *service) Logout(ctx context.Context, token string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.store.DeleteSession(ctx, token)
}
