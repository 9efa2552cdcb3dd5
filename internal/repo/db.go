// Package repo is the GORM persistence layer: polls and votes shared with the
// scheduling application, plus the bridge's own link codes, interaction locks,
// notification events and the mail outbox. Functions take the *gorm.DB
// explicitly so callers choose the transaction.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/pollcord/internal/domain"
)

// sqlitePragmas ride on the DSN so that every pooled connection gets them,
// not just the first.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

func gormConfig() *gorm.Config {
	return &gorm.Config{NowFunc: func() time.Time { return time.Now().UTC() }}
}

// Open connects to driver ("sqlite", the default, or "postgres"), sizes the
// pool and installs the OpenTelemetry plugin so queries show up in traces.
func Open(driver, sqlitePath, postgresDSN string) (*gorm.DB, error) {
	var (
		db      *gorm.DB
		maxOpen int
		err     error
	)
	switch driver {
	case "", "sqlite":
		db, err = OpenSQLite(sqlitePath)
		maxOpen = 10
	case "postgres":
		db, err = gorm.Open(postgres.Open(postgresDSN), gormConfig())
		maxOpen = 20
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := tunePool(db, maxOpen); err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("install tracing plugin: %w", err)
	}
	return db, nil
}

// OpenSQLite opens or creates the database file at path. The parent
// directory must already exist.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("sqlite directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), gormConfig())
	if err != nil {
		return nil, err
	}
	return db, tunePool(db, 10)
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(path)
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

func tunePool(db *gorm.DB, maxOpen int) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen / 2)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return nil
}

// AutoMigrate creates or updates every table the bridge owns or reads.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.InteractionLock{},
		&domain.Poll{},
		&domain.Vote{},
		&domain.Group{},
		&domain.User{},
		&domain.LinkCode{},
		&domain.NotificationEvent{},
		&domain.Notification{},
		&domain.MailMessage{},
	)
}
