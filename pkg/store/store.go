package store

import (
	"context"
	"errors"

	"portfolioapi/pkg/domain"
)

// ErrDuplicateUsername is returned by CreateUser when the username is taken.
var ErrDuplicateUsername = errors.New("username already exists")

// Store defines persistence operations for contacts, CV files and users.
// MemoryStore and GormStore implement it with identical semantics.
type Store interface {
	// contacts
	CreateContact(ctx context.Context, in domain.NewContact) (domain.ContactMessage, error)
	ListContacts(ctx context.Context) ([]domain.ContactMessage, error)
	MarkContactRead(ctx context.Context, id string) error

	// cv files
	CreateCvFile(ctx context.Context, in domain.NewCvFile) (domain.CvFile, error)
	GetCvFile(ctx context.Context, id string) (domain.CvFile, bool, error)
	ListCvFiles(ctx context.Context) ([]domain.CvFile, error)
	GetActiveCvFile(ctx context.Context) (domain.CvFile, bool, error)
	DeactivateAllCvFiles(ctx context.Context) error
	ActivateCvFile(ctx context.Context, id string) error

	// users
	CreateUser(ctx context.Context, in domain.NewUser) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, bool, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	// Kind names the backend for health reporting.
	Kind() string
}
