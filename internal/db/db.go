package db

import (
	"fmt"
	"log"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sujalbistaa/quill/internal/models"
)

// Init opens a GORM connection for a DATABASE_URL style DSN.
// "postgres://" or "postgresql://" selects PostgreSQL, "sqlite://" the
// pure-Go SQLite driver.
func Init(dbURL string, logSQL bool) (*gorm.DB, error) {
	dialector, err := dialectorFor(dbURL)
	if err != nil {
		return nil, err
	}

	level := logger.Silent
	if logSQL {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	log.Println("Database connection established.")
	return db, nil
}

func dialectorFor(dbURL string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		// pgx parses the URL form itself.
		log.Println("Connecting to PostgreSQL database...")
		return postgres.Open(dbURL), nil
	case strings.HasPrefix(dbURL, "sqlite://"):
		dsn := strings.TrimPrefix(dbURL, "sqlite://")
		log.Println("Connecting to SQLite database at", dsn)
		return sqlite.Open(withForeignKeys(dsn)), nil
	default:
		return nil, fmt.Errorf("invalid DATABASE_URL %q: must start with 'postgres://' or 'sqlite://'", dbURL)
	}
}

// withForeignKeys turns on SQLite FK enforcement so deleting a user that
// still owns posts fails the same way it does on Postgres.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// Migrate creates or updates every table the admin panel uses.
func Migrate(db *gorm.DB) error {
	log.Println("Running database migrations...")
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Println("Migrations complete.")
	return nil
}
