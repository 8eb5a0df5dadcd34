package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"portfolioapi/internal/admintoken"
	"portfolioapi/pkg/auth"
)

func TestRunUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(nil, strings.NewReader(""), &out, &errOut); code != 2 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(errOut.String(), "usage: portfolioctl") {
		t.Fatalf("usage not printed: %q", errOut.String())
	}
	errOut.Reset()
	if code := run([]string{"bogus"}, strings.NewReader(""), &out, &errOut); code != 2 {
		t.Fatalf("unknown command exit code = %d", code)
	}
}

func TestHashPasswordFromStdin(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"hash-password"}, strings.NewReader("long enough secret\n"), &out, &errOut)
	if code != 0 {
		t.Fatalf("exit code = %d stderr=%s", code, errOut.String())
	}
	hash := strings.TrimSpace(out.String())
	if !auth.CheckPassword("long enough secret", hash) {
		t.Fatalf("printed hash does not match password: %q", hash)
	}
}

func TestHashPasswordRejectsShortPassword(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"hash-password", "-password", "short"}, strings.NewReader(""), &out, &errOut); code != 1 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestTokenIsVerifiable(t *testing.T) {
	secret := strings.Repeat("z", 32)
	t.Setenv("ADMIN_JWT_SECRET", secret)
	var out, errOut bytes.Buffer
	code := run([]string{"token", "-config", filepath.Join(t.TempDir(), "none.yaml"), "-sub", "ops"}, strings.NewReader(""), &out, &errOut)
	if code != 0 {
		t.Fatalf("exit code = %d stderr=%s", code, errOut.String())
	}
	token := strings.SplitN(out.String(), "\n", 2)[0]
	m, err := admintoken.NewManager(admintoken.Options{Secret: secret})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	claims, err := m.Verify(token)
	if err != nil || claims.Subject != "ops" {
		t.Fatalf("verify: %+v %v", claims, err)
	}
}

func TestCreateAdminNeedsDatabase(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "memory")
	var out, errOut bytes.Buffer
	code := run([]string{"create-admin", "-config", filepath.Join(t.TempDir(), "none.yaml"), "-password", "long enough secret"}, strings.NewReader(""), &out, &errOut)
	if code != 1 || !strings.Contains(errOut.String(), "storageBackend=gorm") {
		t.Fatalf("code=%d stderr=%s", code, errOut.String())
	}
}

func TestCreateAdminWithSQLite(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "gorm")
	t.Setenv("DATABASE_URL", "sqlite:"+filepath.Join(t.TempDir(), "admin.db"))
	var out, errOut bytes.Buffer
	args := []string{"create-admin", "-config", filepath.Join(t.TempDir(), "none.yaml"), "-username", "owner"}
	if code := run(args, strings.NewReader("long enough secret\n"), &out, &errOut); code != 0 {
		t.Fatalf("code=%d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "created admin owner") {
		t.Fatalf("stdout = %q", out.String())
	}
	if code := run(args, strings.NewReader("long enough secret\n"), &out, &errOut); code != 1 {
		t.Fatalf("duplicate admin should fail, code=%d", code)
	}
}

func TestCheckEmailWithoutCredentials(t *testing.T) {
	for _, k := range []string{"EMAIL_USER", "EMAIL_PASSWORD"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	var out, errOut bytes.Buffer
	code := run([]string{"check-email", "-config", filepath.Join(t.TempDir(), "none.yaml")}, strings.NewReader(""), &out, &errOut)
	if code != 1 {
		t.Fatalf("code = %d", code)
	}
	if !strings.Contains(out.String(), "EMAIL_USER: NOT SET") || !strings.Contains(out.String(), "EMAIL_PASSWORD: NOT SET") {
		t.Fatalf("stdout = %q", out.String())
	}
}
