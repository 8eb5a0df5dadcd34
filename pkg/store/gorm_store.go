package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"portfolioapi/pkg/domain"
)

const (
	migrateLockID  int64 = 51731001
	activateLockID int64 = 51731002
)

const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite"
)

// GormStore implements Store using GORM on Postgres (or SQLite for local
// runs and tests).
type GormStore struct {
	db      *gorm.DB
	dialect string

	// activateMu serializes CV activation inside this process; Postgres
	// additionally takes a transaction-scoped advisory lock.
	activateMu sync.Mutex

	stampMu       sync.Mutex
	lastTimestamp time.Time
}

// NewGormStore opens the DB and runs auto-migrations. DSNs prefixed with
// "sqlite:" open an SQLite database; anything else is handed to Postgres.
func NewGormStore(dsn string) (*GormStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("database dsn required")
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	dialector, dialect := openDialector(dsn)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &GormStore{db: db, dialect: dialect}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func openDialector(dsn string) (gorm.Dialector, string) {
	if rest, ok := strings.CutPrefix(dsn, "sqlite:"); ok {
		return sqlite.Open(rest), dialectSQLite
	}
	return postgres.Open(dsn), dialectPostgres
}

func (s *GormStore) migrate() error {
	run := func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&ContactModel{}, &CvFileModel{}, &UserModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		// At most one active CV, enforced by the database as well.
		if err := tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS cv_files_single_active ON cv_files (is_active) WHERE is_active`).Error; err != nil {
			return fmt.Errorf("create single active index: %w", err)
		}
		return nil
	}
	if s.dialect != dialectPostgres {
		return run(s.db)
	}
	return withMigrationLock(s.db, run)
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Kind implements Store.
func (s *GormStore) Kind() string { return s.dialect }

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// stamp returns a strictly increasing microsecond timestamp so that
// created_at ordering matches insertion order within this process.
func (s *GormStore) stamp() time.Time {
	s.stampMu.Lock()
	defer s.stampMu.Unlock()
	ts := time.Now().UTC().Truncate(time.Microsecond)
	if !ts.After(s.lastTimestamp) {
		ts = s.lastTimestamp.Add(time.Microsecond)
	}
	s.lastTimestamp = ts
	return ts
}

// CreateContact inserts an unread message.
func (s *GormStore) CreateContact(ctx context.Context, in domain.NewContact) (domain.ContactMessage, error) {
	meta, err := json.Marshal(in.Meta)
	if err != nil {
		return domain.ContactMessage{}, fmt.Errorf("encode contact meta: %w", err)
	}
	model := ContactModel{
		ID:        NewID(),
		Name:      in.Name,
		Email:     in.Email,
		Subject:   in.Subject,
		Message:   in.Message,
		IsRead:    false,
		Meta:      datatypes.JSON(meta),
		CreatedAt: s.stamp(),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.ContactMessage{}, err
	}
	return contactFromModel(model), nil
}

// ListContacts returns messages ordered by created_at ascending.
func (s *GormStore) ListContacts(ctx context.Context) ([]domain.ContactMessage, error) {
	var models []ContactModel
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ContactMessage, 0, len(models))
	for _, m := range models {
		res = append(res, contactFromModel(m))
	}
	return res, nil
}

// MarkContactRead flags a message as read; unknown ids update nothing.
func (s *GormStore) MarkContactRead(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&ContactModel{}).
		Where("id = ?", id).
		Update("is_read", true).Error
}

// CreateCvFile inserts an inactive file record.
func (s *GormStore) CreateCvFile(ctx context.Context, in domain.NewCvFile) (domain.CvFile, error) {
	model := CvFileModel{
		ID:           NewID(),
		Filename:     in.Filename,
		OriginalName: in.OriginalName,
		FilePath:     in.FilePath,
		SizeBytes:    in.SizeBytes,
		PageCount:    in.PageCount,
		IsActive:     false,
		UploadedAt:   s.stamp(),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.CvFile{}, err
	}
	return cvFileFromModel(model), nil
}

// GetCvFile retrieves a file by ID.
func (s *GormStore) GetCvFile(ctx context.Context, id string) (domain.CvFile, bool, error) {
	var model CvFileModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.CvFile{}, false, nil
		}
		return domain.CvFile{}, false, err
	}
	return cvFileFromModel(model), true, nil
}

// ListCvFiles returns all files ordered by upload time.
func (s *GormStore) ListCvFiles(ctx context.Context) ([]domain.CvFile, error) {
	var models []CvFileModel
	if err := s.db.WithContext(ctx).Order("uploaded_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.CvFile, 0, len(models))
	for _, m := range models {
		res = append(res, cvFileFromModel(m))
	}
	return res, nil
}

// GetActiveCvFile returns the active file, if any.
func (s *GormStore) GetActiveCvFile(ctx context.Context) (domain.CvFile, bool, error) {
	var model CvFileModel
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.CvFile{}, false, nil
		}
		return domain.CvFile{}, false, err
	}
	return cvFileFromModel(model), true, nil
}

// DeactivateAllCvFiles clears every active flag.
func (s *GormStore) DeactivateAllCvFiles(ctx context.Context) error {
	return deactivateAll(s.db.WithContext(ctx))
}

func deactivateAll(tx *gorm.DB) error {
	return tx.Model(&CvFileModel{}).
		Where("is_active = ?", true).
		Update("is_active", false).Error
}

// ActivateCvFile deactivates all files and activates id in one transaction.
// An unknown id commits with no file active.
func (s *GormStore) ActivateCvFile(ctx context.Context, id string) error {
	s.activateMu.Lock()
	defer s.activateMu.Unlock()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.dialect == dialectPostgres {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", activateLockID).Error; err != nil {
				return fmt.Errorf("acquire activate lock: %w", err)
			}
		}
		if err := deactivateAll(tx); err != nil {
			return err
		}
		return tx.Model(&CvFileModel{}).
			Where("id = ?", id).
			Update("is_active", true).Error
	})
}

// CreateUser inserts a user; a taken username yields ErrDuplicateUsername.
func (s *GormStore) CreateUser(ctx context.Context, in domain.NewUser) (domain.User, error) {
	model := UserModel{
		ID:           NewID(),
		Username:     strings.TrimSpace(in.Username),
		PasswordHash: in.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.User{}, ErrDuplicateUsername
		}
		return domain.User{}, err
	}
	return userFromModel(model), nil
}

// GetUserByUsername looks up a user by username.
func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (domain.User, bool, error) {
	return s.findUser(ctx, "username = ?", strings.TrimSpace(username))
}

func (s *GormStore) findUser(ctx context.Context, cond string, arg any) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where(cond, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func contactFromModel(m ContactModel) domain.ContactMessage {
	var meta domain.ContactMeta
	if len(m.Meta) > 0 {
		_ = json.Unmarshal(m.Meta, &meta)
	}
	return domain.ContactMessage{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Subject:   m.Subject,
		Message:   m.Message,
		CreatedAt: m.CreatedAt.UTC(),
		IsRead:    m.IsRead,
		Meta:      meta,
	}
}

func cvFileFromModel(m CvFileModel) domain.CvFile {
	return domain.CvFile{
		ID:           m.ID,
		Filename:     m.Filename,
		OriginalName: m.OriginalName,
		FilePath:     m.FilePath,
		SizeBytes:    m.SizeBytes,
		PageCount:    m.PageCount,
		UploadedAt:   m.UploadedAt.UTC(),
		IsActive:     m.IsActive,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt.UTC(),
	}
}
