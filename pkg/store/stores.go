package store

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Stores bundles the state shared by the router, the broker hook and the
// admin pages. It is created once at startup and passed down explicitly.
type Stores struct {
	Presence PresenceStore
	History  HistoryStore
	// Accounts is nil when no database is configured.
	Accounts AccountStore
}

// NewMemoryStores returns stores with fresh in-memory presence and history
// and no account database.
func NewMemoryStores() *Stores {
	return &Stores{
		Presence: NewPresence(),
		History:  NewHistory(nil),
	}
}

// OpenAccounts connects to postgres, applies pending migrations and
// attaches the account store.
func (s *Stores) OpenAccounts(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	s.Accounts = NewAccounts(db)
	return db, nil
}

// Migrate brings the account schema up to date.
func Migrate(db *sqlx.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	version, dirty, _ := m.Version()
	slog.Info("account schema ready", "version", version, "dirty", dirty)
	return nil
}
