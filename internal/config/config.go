package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

const (
	StoreMemory = "memory"
	StoreGorm   = "gorm"

	BlobLocal = "local"
	BlobMinio = "minio"
)

// FileConfig represents configuration loaded from YAML and the environment.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	StorageBackend string `yaml:"storageBackend"`
	DatabaseURL    string `yaml:"databaseURL"`

	BlobBackend    string `yaml:"blobBackend"`
	UploadDir      string `yaml:"uploadDir"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	CVStaticPath       string `yaml:"cvStaticPath"`
	CVStaticName       string `yaml:"cvStaticName"`
	CVStaticUploadedAt string `yaml:"cvStaticUploadedAt"`
	CVMaxUploadBytes   int64  `yaml:"cvMaxUploadBytes"`

	EmailUser         string `yaml:"emailUser"`
	EmailPassword     string `yaml:"emailPassword"`
	NotificationEmail string `yaml:"notificationEmail"`
	SMTPHost          string `yaml:"smtpHost"`
	SMTPPort          int    `yaml:"smtpPort"`

	AMQPURL      string `yaml:"amqpURL"`
	AMQPExchange string `yaml:"amqpExchange"`

	AdminJWTSecret string `yaml:"adminJwtSecret"`
	AdminTokenTTL  string `yaml:"adminTokenTTL"`

	StaticDir         string   `yaml:"staticDir"`
	AllowedOrigins    []string `yaml:"allowedOrigins"`
	TrustedProxyCIDRs []string `yaml:"trustedProxyCidrs"`
}

// Defaults returns the configuration used when neither file nor env set a value.
func Defaults() FileConfig {
	return FileConfig{
		Port:               "5000",
		LogLevel:           "info",
		StorageBackend:     StoreMemory,
		BlobBackend:        BlobLocal,
		UploadDir:          "server/uploads",
		CVStaticPath:       "SwarnavaCV.pdf",
		CVStaticName:       "Swarnava Sinha Ray - CV.pdf",
		CVStaticUploadedAt: "2024-01-01T00:00:00Z",
		CVMaxUploadBytes:   5 * 1024 * 1024,
		SMTPHost:           "smtp.gmail.com",
		SMTPPort:           587,
		AMQPExchange:       "portfolio_events",
		AdminTokenTTL:      "12h",
	}
}

// Load reads config from path (defaults to config.yaml). A missing file is
// not an error so env-only deployments work.
func Load(path string) (FileConfig, error) {
	cfg := Defaults()
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.StorageBackend, "STORAGE_BACKEND")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.BlobBackend, "BLOB_BACKEND")
	setString(&cfg.UploadDir, "UPLOAD_DIR")
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	setString(&cfg.CVStaticPath, "CV_STATIC_PATH")
	setString(&cfg.CVStaticName, "CV_STATIC_NAME")
	if v := os.Getenv("CV_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.CVMaxUploadBytes = n
		}
	}
	setString(&cfg.EmailUser, "EMAIL_USER")
	// Passwords are taken verbatim; app passwords may contain spaces.
	if v := os.Getenv("EMAIL_PASSWORD"); v != "" {
		cfg.EmailPassword = v
	}
	setString(&cfg.NotificationEmail, "NOTIFICATION_EMAIL")
	setString(&cfg.SMTPHost, "SMTP_HOST")
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.SMTPPort = n
		}
	}
	setString(&cfg.AMQPURL, "AMQP_URL")
	setString(&cfg.AMQPExchange, "AMQP_EXCHANGE")
	setString(&cfg.AdminJWTSecret, "ADMIN_JWT_SECRET")
	setString(&cfg.AdminTokenTTL, "ADMIN_TOKEN_TTL")
	setString(&cfg.StaticDir, "STATIC_DIR")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required")
	}
	switch cfg.StorageBackend {
	case StoreMemory:
	case StoreGorm:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required for storageBackend gorm (set in config.yaml or DATABASE_URL)")
		}
	default:
		return fmt.Errorf("config: unknown storageBackend %q (want memory or gorm)", cfg.StorageBackend)
	}
	switch cfg.BlobBackend {
	case BlobLocal:
		if strings.TrimSpace(cfg.UploadDir) == "" {
			return errors.New("config: uploadDir is required for blobBackend local")
		}
	case BlobMinio:
		if cfg.MinioEndpoint == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioEndpoint, minioAccessKey, minioSecretKey and minioBucket are required for blobBackend minio")
		}
	default:
		return fmt.Errorf("config: unknown blobBackend %q (want local or minio)", cfg.BlobBackend)
	}
	if cfg.CVMaxUploadBytes <= 0 {
		return errors.New("config: cvMaxUploadBytes must be > 0")
	}
	if _, err := cfg.StaticCVUploadedAt(); err != nil {
		return err
	}
	if _, err := ParseAdminTokenTTL(cfg.AdminTokenTTL); err != nil {
		return err
	}
	if cfg.SMTPPort <= 0 || cfg.SMTPPort > 65535 {
		return errors.New("config: smtpPort must be between 1 and 65535")
	}
	return nil
}

// StaticCVUploadedAt parses the fixed upload date reported for the bundled CV.
func (c FileConfig) StaticCVUploadedAt() (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(c.CVStaticUploadedAt))
	if err != nil {
		return time.Time{}, fmt.Errorf("config: invalid cvStaticUploadedAt: %w", err)
	}
	return ts.UTC(), nil
}

// EmailConfigured reports whether both mail credentials are present.
func (c FileConfig) EmailConfigured() bool {
	return c.EmailUser != "" && c.EmailPassword != ""
}

// MissingEnv lists the deployment variables that are unset. Absence is not
// fatal; the caller logs it so operators can fix the environment.
func (c FileConfig) MissingEnv() []string {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.EmailUser == "" {
		missing = append(missing, "EMAIL_USER")
	}
	if c.EmailPassword == "" {
		missing = append(missing, "EMAIL_PASSWORD")
	}
	return missing
}

// ParseAdminTokenTTL parses the admin token lifetime; empty means default.
func ParseAdminTokenTTL(ttl string) (time.Duration, error) {
	if strings.TrimSpace(ttl) == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(strings.TrimSpace(ttl))
	if err != nil {
		return 0, fmt.Errorf("config: invalid adminTokenTTL duration: %w", err)
	}
	if dur < 0 {
		return 0, errors.New("config: adminTokenTTL must be >= 0")
	}
	return dur, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
