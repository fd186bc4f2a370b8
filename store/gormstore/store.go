package gormstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	_ goRiskAuth.CredentialStore = (*Store)(nil)
	_ goRiskAuth.SessionStore    = (*Store)(nil)
	_ goRiskAuth.EventStore      = (*Store)(nil)
)

// Store is a gorm-backed implementation of every goRiskAuth store interface.
type Store struct {
	db *gorm.DB
}

// New wraps an open database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Connect opens a Postgres pool and verifies it.
func Connect(ctx context.Context, dsn string, maxConns int) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := configurePool(ctx, db, maxConns); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens a SQLite database. Use "file:<name>?mode=memory&cache=shared" for an
// in-memory database shared by the pool.
func OpenSQLite(ctx context.Context, path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := configurePool(ctx, db, 1); err != nil {
		return nil, err
	}
	if !strings.Contains(path, "mode=memory") && path != ":memory:" {
		if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
			return nil, fmt.Errorf("enable wal: %w", err)
		}
	}
	if err := db.Exec("PRAGMA busy_timeout=5000").Error; err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}

func configurePool(ctx context.Context, db *gorm.DB, maxConns int) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 10
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Migrate creates or updates every table the store uses.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(
		&userModel{},
		&mfaSecretModel{},
		&backupCodeModel{},
		&sessionModel{},
		&eventModel{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database reachability.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateUser inserts an account. The email is stored lower-cased.
func (s *Store) CreateUser(ctx context.Context, u *goRiskAuth.User) error {
	if u == nil || u.ID == "" {
		return errors.New("gormstore: user id is required")
	}
	now := time.Now().UTC()
	created := u.CreatedAt.UTC()
	if u.CreatedAt.IsZero() {
		created = now
	}
	m := userModel{
		ID:             u.ID,
		Email:          strings.ToLower(strings.TrimSpace(u.Email)),
		PasswordHash:   u.PasswordHash,
		Roles:          u.Roles,
		Active:         u.Active,
		MFAEnabled:     u.MFAEnabled,
		FailedAttempts: u.FailedAttempts,
		LockedUntil:    utcPtr(u.LockedUntil),
		LastLoginAt:    utcPtr(u.LastLoginAt),
		LastLoginIP:    u.LastLoginIP,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// SetUserActive enables or disables an account.
func (s *Store) SetUserActive(ctx context.Context, userID string, active bool) error {
	res := s.db.WithContext(ctx).Model(&userModel{}).
		Where("id = ?", userID).
		Updates(map[string]any{"active": active, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("set user active: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return goRiskAuth.ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return goRiskAuth.ErrNotFound
	}
	return err
}

func encodeHash(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

func decodeHash(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(out) {
		return out, fmt.Errorf("gormstore: malformed backup code hash")
	}
	copy(out[:], b)
	return out, nil
}
