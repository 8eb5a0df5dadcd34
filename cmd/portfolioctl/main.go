package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"portfolioapi/internal/admintoken"
	"portfolioapi/internal/app"
	"portfolioapi/internal/config"
	"portfolioapi/internal/notify"
	"portfolioapi/pkg/auth"
	"portfolioapi/pkg/storage"
	"portfolioapi/pkg/store"
)

const usage = `usage: portfolioctl <command> [flags]

commands:
  hash-password   print a bcrypt hash for an admin password
  create-admin    create an admin user in the configured database
  token           mint an admin token from ADMIN_JWT_SECRET
  check-email     verify SMTP credentials and send a test mail to self
`

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	var err error
	switch args[0] {
	case "hash-password":
		err = hashPassword(args[1:], stdin, stdout)
	case "create-admin":
		err = createAdmin(args[1:], stdin, stdout)
	case "token":
		err = mintToken(args[1:], stdout)
	case "check-email":
		err = checkEmail(args[1:], stdout)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func hashPassword(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	password := fs.String("password", "", "password to hash (read from stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pw, err := passwordOrStdin(*password, stdin)
	if err != nil {
		return err
	}
	if err := auth.ValidatePassword(pw); err != nil {
		return err
	}
	hash, err := auth.HashPassword(pw)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, hash)
	return nil
}

func createAdmin(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	configPath := fs.String("config", envOr("PORTFOLIO_CONFIG", config.ConfigPath), "path to config.yaml")
	username := fs.String("username", "admin", "admin username")
	password := fs.String("password", "", "admin password (read from stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if cfg.StorageBackend != config.StoreGorm {
		return errors.New("create-admin needs storageBackend=gorm; the memory store does not outlive this command")
	}
	pw, err := passwordOrStdin(*password, stdin)
	if err != nil {
		return err
	}
	db, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	core, err := app.New(app.Config{Store: db, Objects: noBlobs{}})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	user, err := core.CreateAdmin(ctx, *username, pw)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "created admin %s (id %s)\n", user.Username, user.ID)
	return nil
}

func mintToken(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	configPath := fs.String("config", envOr("PORTFOLIO_CONFIG", config.ConfigPath), "path to config.yaml")
	subject := fs.String("sub", "admin", "token subject")
	ttl := fs.Duration("ttl", 0, "token lifetime (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	lifetime := *ttl
	if lifetime == 0 {
		if lifetime, err = config.ParseAdminTokenTTL(cfg.AdminTokenTTL); err != nil {
			return err
		}
	}
	m, err := admintoken.NewManager(admintoken.Options{Secret: cfg.AdminJWTSecret, TTL: lifetime})
	if err != nil {
		return err
	}
	token, exp, err := m.Issue(*subject)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	fmt.Fprintf(stdout, "expires %s\n", exp.UTC().Format(time.RFC3339))
	return nil
}

func checkEmail(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("check-email", flag.ContinueOnError)
	configPath := fs.String("config", envOr("PORTFOLIO_CONFIG", config.ConfigPath), "path to config.yaml")
	send := fs.Bool("send", true, "send a test mail after verifying the connection")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "EMAIL_USER: %s\n", notify.MaskAddress(cfg.EmailUser))
	if cfg.EmailPassword != "" {
		fmt.Fprintf(stdout, "EMAIL_PASSWORD: SET (%d characters)\n", len(cfg.EmailPassword))
	} else {
		fmt.Fprintln(stdout, "EMAIL_PASSWORD: NOT SET")
	}
	fmt.Fprintf(stdout, "SMTP: %s:%d\n", cfg.SMTPHost, cfg.SMTPPort)
	if !cfg.EmailConfigured() {
		return errors.New("email credentials are not configured")
	}
	mailer, err := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.EmailUser,
		Password: cfg.EmailPassword,
		To:       cfg.NotificationEmail,
	})
	if err != nil {
		return err
	}
	if err := mailer.Verify(); err != nil {
		return fmt.Errorf("smtp connection failed: %w", err)
	}
	fmt.Fprintln(stdout, "SMTP connection verified")
	if !*send {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := mailer.SendTest(ctx); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "test email sent")
	return nil
}

func passwordOrStdin(flagValue string, stdin io.Reader) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password required")
	}
	return line, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// noBlobs satisfies app.Config for commands that never touch CV files.
type noBlobs struct{}

func (noBlobs) Put(context.Context, string, io.Reader, int64, string) (string, error) {
	return "", errors.New("blob storage not available")
}
func (noBlobs) Open(context.Context, string) (io.ReadCloser, error) { return nil, storage.ErrObjectNotFound }
func (noBlobs) Delete(context.Context, string) error                 { return nil }
func (noBlobs) Kind() string                                         { return "none" }
