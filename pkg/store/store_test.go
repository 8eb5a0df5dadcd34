package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"portfolioapi/pkg/domain"
)

// backends returns every Store implementation so each test checks that
// they behave identically.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	gormStore, err := NewGormStore("sqlite:" + filepath.Join(t.TempDir(), "portfolio.db"))
	if err != nil {
		t.Fatalf("new gorm store: %v", err)
	}
	t.Cleanup(func() { _ = gormStore.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"gorm":   gormStore,
	}
}

func newContact(name string) domain.NewContact {
	return domain.NewContact{
		ContactInput: domain.ContactInput{
			Name:    name,
			Email:   "jo@x.com",
			Subject: domain.SubjectGeneral,
			Message: "Hello, checking availability for a chat.",
		},
		Meta: domain.ContactMeta{ClientIP: "203.0.113.5", RequestID: "req-1"},
	}
}

func TestContactsListInInsertionOrder(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var created []domain.ContactMessage
			for _, n := range []string{"Ann", "Bob", "Cy"} {
				c, err := s.CreateContact(ctx, newContact(n))
				if err != nil {
					t.Fatalf("create contact: %v", err)
				}
				if c.ID == "" || c.IsRead || c.CreatedAt.IsZero() {
					t.Fatalf("unexpected created contact: %+v", c)
				}
				created = append(created, c)
			}
			list, err := s.ListContacts(ctx)
			if err != nil {
				t.Fatalf("list contacts: %v", err)
			}
			if len(list) != 3 {
				t.Fatalf("len(list) = %d, want 3", len(list))
			}
			for i := range list {
				if list[i].ID != created[i].ID {
					t.Fatalf("list[%d] = %s, want %s", i, list[i].ID, created[i].ID)
				}
				if i > 0 && list[i].CreatedAt.Before(list[i-1].CreatedAt) {
					t.Fatalf("timestamps decrease at %d", i)
				}
			}
			if list[0].Meta.ClientIP != "203.0.113.5" {
				t.Fatalf("meta not persisted: %+v", list[0].Meta)
			}
		})
	}
}

func TestMarkContactReadIsIdempotent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c, err := s.CreateContact(ctx, newContact("Jo Lee"))
			if err != nil {
				t.Fatalf("create contact: %v", err)
			}
			for i := 0; i < 2; i++ {
				if err := s.MarkContactRead(ctx, c.ID); err != nil {
					t.Fatalf("mark read: %v", err)
				}
			}
			if err := s.MarkContactRead(ctx, "missing"); err != nil {
				t.Fatalf("mark unknown id should be a no-op, got %v", err)
			}
			list, _ := s.ListContacts(ctx)
			if len(list) != 1 || !list[0].IsRead {
				t.Fatalf("expected single read contact, got %+v", list)
			}
		})
	}
}

func TestActivateCvFileSwitchesActive(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, err := s.CreateCvFile(ctx, domain.NewCvFile{Filename: "cv-a.pdf", OriginalName: "a.pdf", FilePath: "a"})
			if err != nil {
				t.Fatalf("create a: %v", err)
			}
			if a.IsActive {
				t.Fatalf("new file must start inactive")
			}
			b, err := s.CreateCvFile(ctx, domain.NewCvFile{Filename: "cv-b.pdf", OriginalName: "b.pdf", FilePath: "b"})
			if err != nil {
				t.Fatalf("create b: %v", err)
			}
			if _, ok, _ := s.GetActiveCvFile(ctx); ok {
				t.Fatalf("expected no active file before activation")
			}
			if err := s.ActivateCvFile(ctx, a.ID); err != nil {
				t.Fatalf("activate a: %v", err)
			}
			if err := s.ActivateCvFile(ctx, b.ID); err != nil {
				t.Fatalf("activate b: %v", err)
			}
			active, ok, err := s.GetActiveCvFile(ctx)
			if err != nil || !ok {
				t.Fatalf("get active: ok=%v err=%v", ok, err)
			}
			if active.ID != b.ID {
				t.Fatalf("active = %s, want %s", active.ID, b.ID)
			}
			files, err := s.ListCvFiles(ctx)
			if err != nil {
				t.Fatalf("list files: %v", err)
			}
			activeCount := 0
			for _, f := range files {
				if f.IsActive {
					activeCount++
				}
				if f.ID == a.ID && f.IsActive {
					t.Fatalf("a should be inactive")
				}
			}
			if activeCount != 1 {
				t.Fatalf("active count = %d, want 1", activeCount)
			}
			got, ok, err := s.GetCvFile(ctx, a.ID)
			if err != nil || !ok || got.OriginalName != "a.pdf" {
				t.Fatalf("deactivated file should stay retrievable: %+v ok=%v err=%v", got, ok, err)
			}
		})
	}
}

// Activating an unknown id leaves nothing active. This mirrors the
// behavior the public site has always had.
func TestActivateUnknownCvFileLeavesNoneActive(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, _ := s.CreateCvFile(ctx, domain.NewCvFile{Filename: "cv-a.pdf", OriginalName: "a.pdf", FilePath: "a"})
			if err := s.ActivateCvFile(ctx, a.ID); err != nil {
				t.Fatalf("activate a: %v", err)
			}
			if err := s.ActivateCvFile(ctx, "does-not-exist"); err != nil {
				t.Fatalf("activate unknown: %v", err)
			}
			if f, ok, _ := s.GetActiveCvFile(ctx); ok {
				t.Fatalf("expected no active file, got %+v", f)
			}
		})
	}
}

func TestDeactivateAllCvFiles(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, _ := s.CreateCvFile(ctx, domain.NewCvFile{Filename: "cv-a.pdf", OriginalName: "a.pdf", FilePath: "a"})
			_ = s.ActivateCvFile(ctx, a.ID)
			for i := 0; i < 2; i++ {
				if err := s.DeactivateAllCvFiles(ctx); err != nil {
					t.Fatalf("deactivate: %v", err)
				}
			}
			if _, ok, _ := s.GetActiveCvFile(ctx); ok {
				t.Fatalf("expected no active file")
			}
		})
	}
}

func TestConcurrentActivationKeepsSingleActive(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var ids []string
			for _, n := range []string{"a", "b", "c", "d"} {
				f, err := s.CreateCvFile(ctx, domain.NewCvFile{Filename: "cv-" + n + ".pdf", OriginalName: n + ".pdf", FilePath: n})
				if err != nil {
					t.Fatalf("create %s: %v", n, err)
				}
				ids = append(ids, f.ID)
			}
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					_ = s.ActivateCvFile(ctx, id)
				}(ids[i%len(ids)])
			}
			wg.Wait()
			files, err := s.ListCvFiles(ctx)
			if err != nil {
				t.Fatalf("list files: %v", err)
			}
			activeCount := 0
			for _, f := range files {
				if f.IsActive {
					activeCount++
				}
			}
			if activeCount != 1 {
				t.Fatalf("active count = %d, want 1", activeCount)
			}
		})
	}
}

func TestUsersByUsername(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u, err := s.CreateUser(ctx, domain.NewUser{Username: "admin", PasswordHash: "hash"})
			if err != nil {
				t.Fatalf("create user: %v", err)
			}
			got, ok, err := s.GetUserByUsername(ctx, "admin")
			if err != nil || !ok || got.ID != u.ID {
				t.Fatalf("lookup by username: %+v ok=%v err=%v", got, ok, err)
			}
			if _, ok, _ := s.GetUserByUsername(ctx, "nobody"); ok {
				t.Fatalf("unexpected user for unknown name")
			}
			if _, err := s.CreateUser(ctx, domain.NewUser{Username: "admin", PasswordHash: "x"}); !errors.Is(err, ErrDuplicateUsername) {
				t.Fatalf("expected ErrDuplicateUsername, got %v", err)
			}
		})
	}
}

func TestBackendKind(t *testing.T) {
	for name, s := range backends(t) {
		if err := s.Ping(context.Background()); err != nil {
			t.Fatalf("%s ping: %v", name, err)
		}
	}
	if got := NewMemoryStore().Kind(); got != "memory" {
		t.Fatalf("memory kind = %q", got)
	}
}
