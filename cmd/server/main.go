package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"portfolioapi/internal/admintoken"
	"portfolioapi/internal/app"
	"portfolioapi/internal/config"
	"portfolioapi/internal/notify"
	"portfolioapi/internal/server"
	"portfolioapi/internal/util"
	"portfolioapi/pkg/storage"
	"portfolioapi/pkg/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", envOr("PORTFOLIO_CONFIG", config.ConfigPath), "path to config.yaml")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, *configPath, os.Stdout)
	stop()
	if err != nil {
		log.Printf("portfolio server: %v", err)
		os.Exit(1)
	}
}

// run serves until ctx is done. Every resource opened here is closed before
// it returns, including on startup failures.
func run(ctx context.Context, configPath string, logOut io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := util.InitLogger(cfg.LogLevel, logOut)
	if missing := cfg.MissingEnv(); len(missing) > 0 {
		logger.Warn("missing environment variables, related features are degraded", "missing", missing)
	}

	dataStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	if c, ok := dataStore.(io.Closer); ok {
		defer c.Close()
	}
	objects, err := openObjects(cfg)
	if err != nil {
		return fmt.Errorf("init blob storage: %w", err)
	}
	notifier, closers := openNotifiers(cfg, logger)
	for _, c := range closers {
		defer c.Close()
	}
	tokens, err := openTokens(cfg, logger)
	if err != nil {
		return fmt.Errorf("init admin tokens: %w", err)
	}
	uploadedAt, err := cfg.StaticCVUploadedAt()
	if err != nil {
		return fmt.Errorf("parse bundled cv date: %w", err)
	}

	appCore, err := app.New(app.Config{
		Store:    dataStore,
		Objects:  objects,
		Notifier: notifier,
		Email: app.EmailSettings{
			User:        cfg.EmailUser,
			HasPassword: cfg.EmailPassword != "",
		},
		Tokens: tokens,
		BundledCV: app.BundledCV{
			Path:        cfg.CVStaticPath,
			DisplayName: cfg.CVStaticName,
			UploadedAt:  uploadedAt,
		},
		MaxUploadBytes: cfg.CVMaxUploadBytes,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return fmt.Errorf("parse trusted proxies: %w", err)
	}
	httpServer, err := server.New(server.Config{
		App:            appCore,
		AllowedOrigins: cfg.AllowedOrigins,
		TrustedProxies: trusted,
		StaticDir:      cfg.StaticDir,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("portfolio server listening", "addr", addr, "store", dataStore.Kind(), "blob", objects.Kind(), "notifier", notifier.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		err := srv.Shutdown(shutdownCtx)
		if !appCore.Wait(shutdownCtx.Done()) {
			logger.Warn("pending contact notifications abandoned")
		}
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		return err
	}
	return nil
}

// openStore is replaced in tests.
var openStore = func(cfg config.FileConfig) (store.Store, error) {
	switch cfg.StorageBackend {
	case config.StoreGorm:
		return store.NewGormStore(cfg.DatabaseURL)
	default:
		return store.NewMemoryStore(), nil
	}
}

func openObjects(cfg config.FileConfig) (storage.ObjectStore, error) {
	switch cfg.BlobBackend {
	case config.BlobMinio:
		return storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	default:
		return storage.NewFileStore(cfg.UploadDir)
	}
}

// openNotifiers builds every configured transport. A transport that fails
// to start is logged and skipped; the server runs without it.
func openNotifiers(cfg config.FileConfig, logger *slog.Logger) (notify.Notifier, []io.Closer) {
	var (
		transports []notify.Notifier
		closers    []io.Closer
	)
	if cfg.EmailConfigured() {
		mailer, err := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.EmailUser,
			Password: cfg.EmailPassword,
			To:       cfg.NotificationEmail,
		})
		if err != nil {
			logger.Error("smtp notifier disabled", "err", err)
		} else {
			transports = append(transports, mailer)
		}
	} else {
		logger.Warn("email credentials not set, contact notifications will not be emailed")
	}
	if cfg.AMQPURL != "" {
		pub, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Error("amqp notifier disabled", "err", err)
		} else {
			transports = append(transports, pub)
			closers = append(closers, pub)
		}
	}
	return notify.Combine(transports...), closers
}

func openTokens(cfg config.FileConfig, logger *slog.Logger) (*admintoken.Manager, error) {
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set, admin endpoints are unauthenticated")
		return nil, nil
	}
	ttl, err := config.ParseAdminTokenTTL(cfg.AdminTokenTTL)
	if err != nil {
		return nil, err
	}
	m, err := admintoken.NewManager(admintoken.Options{Secret: cfg.AdminJWTSecret, TTL: ttl})
	if err != nil {
		return nil, fmt.Errorf("admin token manager: %w", err)
	}
	return m, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
