// Package migration drives golang-migrate/migrate against the config,
// model_config and audit_log tables that cmd/neuroroute's openDatabase
// otherwise creates via GORM AutoMigrate. It exists for operators who want explicit,
// reviewable schema changes (cmd/migrate) instead of auto-migration at
// process startup.
package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/postgres/*.sql
var postgresFS embed.FS

//go:embed migrations/mysql/*.sql
var mysqlFS embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteFS embed.FS

// DatabaseType identifies which dialect's embedded migration set to use.
type DatabaseType string

const (
	DatabaseTypePostgres DatabaseType = "postgres"
	DatabaseTypeMySQL    DatabaseType = "mysql"
	DatabaseTypeSQLite   DatabaseType = "sqlite"
)

// ParseDatabaseType maps common aliases onto a DatabaseType.
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pg":
		return DatabaseTypePostgres, nil
	case "mysql", "mariadb":
		return DatabaseTypeMySQL, nil
	case "sqlite", "sqlite3":
		return DatabaseTypeSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", s)
	}
}

// Status describes one migration file's applied/dirty state relative to
// the database's current version.
type Status struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// Info summarizes the overall migration state.
type Info struct {
	CurrentVersion    uint
	Dirty             bool
	TotalMigrations   int
	AppliedMigrations int
	PendingMigrations int
}

// Migrator applies and inspects schema migrations for one database
// connection.
type Migrator struct {
	dbType DatabaseType
	db     *sql.DB
	m      *migrate.Migrate
}

// New opens dsn with the driver matching dbType and prepares golang-migrate
// against the embedded migration set for that dialect.
func New(dbType DatabaseType, dsn string) (*Migrator, error) {
	driverName, err := sqlDriverName(dbType)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, stripSchemePrefix(dbType, dsn))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	dbDriver, err := newDatabaseDriver(dbType, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migrate driver: %w", err)
	}

	srcDriver, err := newSourceDriver(dbType)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, string(dbType), dbDriver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	return &Migrator{dbType: dbType, db: db, m: m}, nil
}

func sqlDriverName(dbType DatabaseType) (string, error) {
	switch dbType {
	case DatabaseTypePostgres:
		return "postgres", nil
	case DatabaseTypeMySQL:
		return "mysql", nil
	case DatabaseTypeSQLite:
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// stripSchemePrefix removes the mysql:// prefix neuroroute's
// settings.DatabaseURL carries, which the mysql sql.DB driver doesn't expect
// in its DSN form. Postgres and sqlite DSNs are passed through unchanged.
func stripSchemePrefix(dbType DatabaseType, dsn string) string {
	if dbType == DatabaseTypeMySQL {
		return strings.TrimPrefix(dsn, "mysql://")
	}
	return dsn
}

func newDatabaseDriver(dbType DatabaseType, db *sql.DB) (database.Driver, error) {
	switch dbType {
	case DatabaseTypePostgres:
		return postgres.WithInstance(db, &postgres.Config{})
	case DatabaseTypeMySQL:
		return mysql.WithInstance(db, &mysql.Config{})
	case DatabaseTypeSQLite:
		return sqlite3.WithInstance(db, &sqlite3.Config{})
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

func newSourceDriver(dbType DatabaseType) (source.Driver, error) {
	var fsys fs.FS
	var path string
	switch dbType {
	case DatabaseTypePostgres:
		fsys, path = postgresFS, "migrations/postgres"
	case DatabaseTypeMySQL:
		fsys, path = mysqlFS, "migrations/mysql"
	case DatabaseTypeSQLite:
		fsys, path = sqliteFS, "migrations/sqlite"
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
	return iofs.New(fsys, path)
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down() error {
	if err := m.m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// DownAll rolls back every applied migration.
func (m *Migrator) DownAll() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down all: %w", err)
	}
	return nil
}

// Goto migrates (up or down) to the given version.
func (m *Migrator) Goto(version uint) error {
	if err := m.m.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate goto %d: %w", version, err)
	}
	return nil
}

// Force sets the recorded version without running any migration, clearing
// a dirty flag left by a failed migration.
func (m *Migrator) Force(version int) error {
	if err := m.m.Force(version); err != nil {
		return fmt.Errorf("migrate force %d: %w", version, err)
	}
	return nil
}

// Version reports the current applied version and whether it's dirty.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("migrate version: %w", err)
	}
	return version, dirty, nil
}

// Status lists every embedded migration alongside its applied/dirty state.
func (m *Migrator) Status() ([]Status, error) {
	currentVersion, dirty, err := m.Version()
	if err != nil {
		return nil, err
	}
	files, err := m.availableMigrations()
	if err != nil {
		return nil, err
	}
	statuses := make([]Status, 0, len(files))
	for _, f := range files {
		statuses = append(statuses, Status{
			Version: f.version,
			Name:    f.name,
			Applied: f.version <= currentVersion,
			Dirty:   dirty && f.version == currentVersion,
		})
	}
	return statuses, nil
}

// Info summarizes applied vs. pending migration counts.
func (m *Migrator) Info() (*Info, error) {
	currentVersion, dirty, err := m.Version()
	if err != nil {
		return nil, err
	}
	files, err := m.availableMigrations()
	if err != nil {
		return nil, err
	}
	applied := 0
	for _, f := range files {
		if f.version <= currentVersion {
			applied++
		}
	}
	return &Info{
		CurrentVersion:    currentVersion,
		Dirty:             dirty,
		TotalMigrations:   len(files),
		AppliedMigrations: applied,
		PendingMigrations: len(files) - applied,
	}, nil
}

// Close releases the migrate instance and the underlying *sql.DB.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.m.Close()
	if sourceErr != nil {
		return fmt.Errorf("close source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("close database: %w", dbErr)
	}
	return nil
}

type migrationFile struct {
	version uint
	name    string
}

func (m *Migrator) availableMigrations() ([]migrationFile, error) {
	var fsys fs.FS
	var path string
	switch m.dbType {
	case DatabaseTypePostgres:
		fsys, path = postgresFS, "migrations/postgres"
	case DatabaseTypeMySQL:
		fsys, path = mysqlFS, "migrations/mysql"
	case DatabaseTypeSQLite:
		fsys, path = sqliteFS, "migrations/sqlite"
	default:
		return nil, fmt.Errorf("unsupported database type: %s", m.dbType)
	}

	entries, err := fs.ReadDir(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	seen := make(map[uint]bool)
	var files []migrationFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		parts := strings.SplitN(entry.Name(), "_", 2)
		if len(parts) < 2 {
			continue
		}
		version, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil || seen[uint(version)] {
			continue
		}
		seen[uint(version)] = true
		files = append(files, migrationFile{
			version: uint(version),
			name:    strings.TrimSuffix(parts[1], ".up.sql"),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}
