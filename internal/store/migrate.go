package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/voyagen/iptvcatalog/migrations"
)

// Backend is the storage engine selected by a DSN.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// ParseDSN returns the backend for dsn and, for SQLite, the file path.
// postgres:// and postgresql:// URLs select Postgres; sqlite:// URLs and
// bare paths select SQLite.
func ParseDSN(dsn string) (Backend, string) {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return BackendPostgres, dsn
	case strings.HasPrefix(lower, "sqlite://"):
		return BackendSQLite, dsn[len("sqlite://"):]
	}
	return BackendSQLite, dsn
}

// Open runs migrations and opens the store selected by dsn.
func Open(ctx context.Context, dsn string) (Store, error) {
	if err := RunMigrations(dsn); err != nil {
		return nil, err
	}
	backend, path := ParseDSN(dsn)
	if backend == BackendPostgres {
		return NewPostgres(ctx, dsn)
	}
	return NewSQLite(ctx, path)
}

// EnsureDatabase checks that a Postgres server is reachable with the given
// DSN before migrations run. It is a no-op for SQLite.
func EnsureDatabase(ctx context.Context, dsn string) error {
	if backend, _ := ParseDSN(dsn); backend != BackendPostgres {
		return nil
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// RunMigrations applies the embedded migrations for the backend of dsn. It
// uses its own connection, so it must run before the store is opened.
func RunMigrations(dsn string) error {
	backend, path := ParseDSN(dsn)

	var (
		fsys  fs.FS
		dir   string
		dbURL string
	)
	switch backend {
	case BackendPostgres:
		fsys, dir, dbURL = migrations.Postgres, "postgres", dsn
	default:
		if err := ensureDir(path); err != nil {
			return err
		}
		fsys, dir, dbURL = migrations.SQLite, "sqlite", "sqlite://"+path
	}

	src, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("iofs.New: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return fmt.Errorf("migrate.New: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate.Up: %w", err)
	}
	return nil
}
