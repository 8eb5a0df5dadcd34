package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"portfolioapi/pkg/domain"
)

// MemoryStore keeps records in-process. It is safe for concurrent use and
// serializes every mutation, so CV activation is never observed half done.
type MemoryStore struct {
	mu sync.RWMutex

	contacts      map[string]domain.ContactMessage
	contactOrder  []string
	cvFiles       map[string]domain.CvFile
	cvOrder       []string
	users         map[string]domain.User
	usernames     map[string]string // username -> user ID
	lastTimestamp time.Time

	now func() time.Time
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contacts:  make(map[string]domain.ContactMessage),
		cvFiles:   make(map[string]domain.CvFile),
		users:     make(map[string]domain.User),
		usernames: make(map[string]string),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Kind implements Store.
func (m *MemoryStore) Kind() string { return "memory" }

// Ping implements Store; the memory backend is always reachable.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// stamp returns a timestamp never earlier than the previous one. Callers hold mu.
func (m *MemoryStore) stamp() time.Time {
	ts := m.now()
	if ts.Before(m.lastTimestamp) {
		ts = m.lastTimestamp
	}
	m.lastTimestamp = ts
	return ts
}

// CreateContact stores a new unread message.
func (m *MemoryStore) CreateContact(_ context.Context, in domain.NewContact) (domain.ContactMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := domain.ContactMessage{
		ID:        NewID(),
		Name:      in.Name,
		Email:     in.Email,
		Subject:   in.Subject,
		Message:   in.Message,
		CreatedAt: m.stamp(),
		IsRead:    false,
		Meta:      in.Meta,
	}
	m.contacts[msg.ID] = msg
	m.contactOrder = append(m.contactOrder, msg.ID)
	return msg, nil
}

// ListContacts returns messages in insertion order, oldest first.
func (m *MemoryStore) ListContacts(context.Context) ([]domain.ContactMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ContactMessage, 0, len(m.contactOrder))
	for _, id := range m.contactOrder {
		if c, ok := m.contacts[id]; ok {
			res = append(res, c)
		}
	}
	return res, nil
}

// MarkContactRead flags a message as read; unknown ids are ignored.
func (m *MemoryStore) MarkContactRead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok {
		return nil
	}
	c.IsRead = true
	m.contacts[id] = c
	return nil
}

// CreateCvFile records an uploaded file. New files start inactive.
func (m *MemoryStore) CreateCvFile(_ context.Context, in domain.NewCvFile) (domain.CvFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := domain.CvFile{
		ID:           NewID(),
		Filename:     in.Filename,
		OriginalName: in.OriginalName,
		FilePath:     in.FilePath,
		SizeBytes:    in.SizeBytes,
		PageCount:    in.PageCount,
		UploadedAt:   m.stamp(),
		IsActive:     false,
	}
	m.cvFiles[f.ID] = f
	m.cvOrder = append(m.cvOrder, f.ID)
	return f, nil
}

// GetCvFile returns a file by ID regardless of its active flag.
func (m *MemoryStore) GetCvFile(_ context.Context, id string) (domain.CvFile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.cvFiles[id]
	return f, ok, nil
}

// ListCvFiles returns files in upload order.
func (m *MemoryStore) ListCvFiles(context.Context) ([]domain.CvFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.CvFile, 0, len(m.cvOrder))
	for _, id := range m.cvOrder {
		if f, ok := m.cvFiles[id]; ok {
			res = append(res, f)
		}
	}
	return res, nil
}

// GetActiveCvFile returns the single active file, if any.
func (m *MemoryStore) GetActiveCvFile(context.Context) (domain.CvFile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.cvOrder {
		if f := m.cvFiles[id]; f.IsActive {
			return f, true, nil
		}
	}
	return domain.CvFile{}, false, nil
}

// DeactivateAllCvFiles clears the active flag on every file.
func (m *MemoryStore) DeactivateAllCvFiles(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deactivateAllLocked()
	return nil
}

func (m *MemoryStore) deactivateAllLocked() {
	for id, f := range m.cvFiles {
		if f.IsActive {
			f.IsActive = false
			m.cvFiles[id] = f
		}
	}
}

// ActivateCvFile deactivates every file and then activates id, under one
// lock. An unknown id leaves no file active.
func (m *MemoryStore) ActivateCvFile(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deactivateAllLocked()
	if f, ok := m.cvFiles[id]; ok {
		f.IsActive = true
		m.cvFiles[id] = f
	}
	return nil
}

// CreateUser registers a user with a unique username.
func (m *MemoryStore) CreateUser(_ context.Context, in domain.NewUser) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	username := strings.TrimSpace(in.Username)
	if _, exists := m.usernames[username]; exists {
		return domain.User{}, ErrDuplicateUsername
	}
	u := domain.User{
		ID:           NewID(),
		Username:     username,
		PasswordHash: in.PasswordHash,
		CreatedAt:    m.now(),
	}
	m.users[u.ID] = u
	m.usernames[username] = u.ID
	return u, nil
}

// GetUserByUsername looks up a user by username.
func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.usernames[strings.TrimSpace(username)]
	if !ok {
		return domain.User{}, false, nil
	}
	u, exists := m.users[id]
	return u, exists, nil
}
