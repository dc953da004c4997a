// Package devbypass signs developers in by username without any code
// verification. It is only wired when developer mode is enabled.
package devbypass

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/medconnect-auth/internal/domain"
	"github.com/medconnect-auth/internal/pkg/validate"
)

const authProviderDev = "dev"

type Service interface {
	// LoginOrCreate signs in the dev account for username, creating it and its
	// profile on first use.
	LoginOrCreate(ctx context.Context, username string) (*domain.AuthResult, error)
}

type identityBackend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*domain.AuthResult, error)
	CreateAccount(ctx context.Context, req domain.NewAccount) (*domain.Account, error)
}

type service struct {
	identity identityBackend
	domain   string
	password string
}

type ServiceDeps struct {
	Identity identityBackend
	Domain   string // dev accounts are <username>@<Domain>
	Password string
}

func NewService(deps ServiceDeps) Service {
	return &service{
		identity: deps.Identity,
		domain:   strings.ToLower(strings.TrimSpace(deps.Domain)),
		password: deps.Password,
	}
}

// emailFor returns the derived email of a normalized username.
func (s *service) emailFor(username string) string {
	return username + "@" + s.domain
}

func (s *service) LoginOrCreate(ctx context.Context, username string) (*domain.AuthResult, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if !validate.Username(username) {
		return nil, fmt.Errorf("username must be 2-40 letters or digits: %w", domain.ErrValidation)
	}
	email := s.emailFor(username)

	res, err := s.identity.SignInWithPassword(ctx, email, s.password)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		return nil, err
	}

	_, err = s.identity.CreateAccount(ctx, domain.NewAccount{
		Email:          email,
		Password:       s.password,
		Username:       username,
		FullName:       username,
		Selection:      domain.AccountTypeSelection{Type: domain.AccountTypeDoctor},
		EmailConfirmed: true,
		AuthProvider:   authProviderDev,
	})
	switch {
	case err == nil:
		slog.Info("created dev account", "email", email)
	case errors.Is(err, domain.ErrAccountAlreadyExists):
		// Created by a concurrent login for the same username.
	default:
		return nil, err
	}
	return s.identity.SignInWithPassword(ctx, email, s.password)
}
