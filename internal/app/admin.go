package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"portfolioapi/pkg/auth"
	"portfolioapi/pkg/domain"
	"portfolioapi/pkg/store"
)

// dummyHash keeps the timing of unknown-user logins close to real ones.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z3ZP6j3Zc8r1u7p5x4u4Y1xG"

// AdminToken is a freshly issued admin bearer token.
type AdminToken struct {
	Token     string
	ExpiresAt time.Time
}

// Login checks admin credentials and issues a token.
func (a *App) Login(ctx context.Context, username, password string) (AdminToken, error) {
	if a.tokens == nil {
		return AdminToken{}, ErrAdminDisabled
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return AdminToken{}, ErrUnauthorized
	}
	user, ok, err := a.store.GetUserByUsername(ctx, username)
	if err != nil {
		return AdminToken{}, storageErr("get user", err)
	}
	if !ok {
		auth.CheckPassword(password, dummyHash)
		return AdminToken{}, ErrUnauthorized
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return AdminToken{}, ErrUnauthorized
	}
	token, exp, err := a.tokens.Issue(user.ID)
	if err != nil {
		return AdminToken{}, err
	}
	return AdminToken{Token: token, ExpiresAt: exp}, nil
}

// VerifyAdmin validates a bearer token and returns its claims.
func (a *App) VerifyAdmin(token string) (jwt.RegisteredClaims, error) {
	if a.tokens == nil {
		return jwt.RegisteredClaims{}, ErrAdminDisabled
	}
	claims, err := a.tokens.Verify(token)
	if err != nil {
		return jwt.RegisteredClaims{}, errors.Join(ErrUnauthorized, err)
	}
	return claims, nil
}

// CreateAdmin stores a new admin user with a bcrypt hash of password.
func (a *App) CreateAdmin(ctx context.Context, username, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, errors.New("username required")
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}
	user, err := a.store.CreateUser(ctx, domain.NewUser{Username: username, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUsername) {
			return domain.User{}, err
		}
		return domain.User{}, storageErr("create user", err)
	}
	return user, nil
}
