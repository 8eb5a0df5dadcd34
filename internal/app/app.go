package app

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"portfolioapi/internal/admintoken"
	"portfolioapi/internal/notify"
	"portfolioapi/pkg/storage"
	"portfolioapi/pkg/store"
)

const (
	defaultMaxUploadBytes = 5 * 1024 * 1024
	defaultNotifyTimeout  = 30 * time.Second
)

// BundledCV describes the CV shipped with the deployment. When the file at
// Path exists it is always served instead of uploaded files.
type BundledCV struct {
	Path        string
	DisplayName string
	UploadedAt  time.Time
}

// EmailSettings is what the health report says about mail delivery.
type EmailSettings struct {
	User        string
	HasPassword bool
}

// Config holds runtime dependencies for the core application.
type Config struct {
	Store    store.Store
	Objects  storage.ObjectStore
	Notifier notify.Notifier
	Email    EmailSettings
	// Tokens issues admin tokens; nil disables admin login.
	Tokens         *admintoken.Manager
	BundledCV      BundledCV
	MaxUploadBytes int64
	NotifyTimeout  time.Duration
	Logger         *slog.Logger
}

// App is the core application service wiring together storage, blob
// storage and notifications.
type App struct {
	store          store.Store
	objects        storage.ObjectStore
	notifier       notify.Notifier
	email          EmailSettings
	tokens         *admintoken.Manager
	bundled        BundledCV
	maxUploadBytes int64
	notifyTimeout  time.Duration
	logger         *slog.Logger
	now            func() time.Time

	pending sync.WaitGroup
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store required")
	}
	a := &App{
		store:          cfg.Store,
		objects:        cfg.Objects,
		notifier:       cfg.Notifier,
		email:          cfg.Email,
		tokens:         cfg.Tokens,
		bundled:        cfg.BundledCV,
		maxUploadBytes: cfg.MaxUploadBytes,
		notifyTimeout:  cfg.NotifyTimeout,
		logger:         cfg.Logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
	if a.notifier == nil {
		a.notifier = notify.Noop{}
	}
	if a.maxUploadBytes <= 0 {
		a.maxUploadBytes = defaultMaxUploadBytes
	}
	if a.notifyTimeout <= 0 {
		a.notifyTimeout = defaultNotifyTimeout
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a, nil
}

// MaxUploadBytes is the largest accepted CV upload.
func (a *App) MaxUploadBytes() int64 { return a.maxUploadBytes }

// EmailConfigured reports whether contact notifications go out by mail.
func (a *App) EmailConfigured() bool {
	return a.email.User != "" && a.email.HasPassword
}

// AdminEnabled reports whether admin tokens can be issued and verified.
func (a *App) AdminEnabled() bool { return a.tokens != nil }

// Wait blocks until in-flight notifications finish or done is closed.
func (a *App) Wait(done <-chan struct{}) bool {
	finished := make(chan struct{})
	go func() {
		a.pending.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return true
	case <-done:
		return false
	}
}
