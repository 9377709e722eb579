// Command migrate applies and inspects neuroroute's config/model_config/
// audit_log schema via golang-migrate, independent of the GORM AutoMigrate
// path cmd/neuroroute's serve command runs at startup.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/piwi3910/neuroroute/internal/migration"
	"github.com/piwi3910/neuroroute/internal/settings"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "up":
		run(os.Args[2:], func(m *migration.Migrator) error { return m.Up() })
	case "down":
		run(os.Args[2:], func(m *migration.Migrator) error { return m.Down() })
	case "reset":
		run(os.Args[2:], func(m *migration.Migrator) error { return m.DownAll() })
	case "status":
		run(os.Args[2:], runStatus)
	case "version":
		run(os.Args[2:], runVersion)
	case "goto":
		runGoto(os.Args[2:])
	case "force":
		runForce(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown migrate command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func flags(args []string) (*flag.FlagSet, *string, *string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbType := fs.String("db-type", "", "database type: postgres, mysql, sqlite (default: inferred from DATABASE_URL)")
	dbURL := fs.String("db-url", "", "database connection URL (default: DATABASE_URL env var)")
	fs.Parse(args)
	return fs, dbType, dbURL
}

func openMigrator(dbTypeFlag, dbURLFlag string) (*migration.Migrator, error) {
	dsn := dbURLFlag
	if dsn == "" {
		cfg, err := settings.Load()
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		dsn = cfg.DatabaseURL
	}
	if dsn == "" {
		return nil, fmt.Errorf("no database URL: pass --db-url or set DATABASE_URL")
	}

	typeStr := dbTypeFlag
	if typeStr == "" {
		typeStr = inferDBType(dsn)
	}
	dbType, err := migration.ParseDatabaseType(typeStr)
	if err != nil {
		return nil, err
	}

	return migration.New(dbType, dsn)
}

func inferDBType(dsn string) string {
	switch {
	case len(dsn) >= 11 && dsn[:11] == "postgres://":
		return "postgres"
	case len(dsn) >= 13 && dsn[:13] == "postgresql://":
		return "postgres"
	case len(dsn) >= 8 && dsn[:8] == "mysql://":
		return "mysql"
	default:
		return "sqlite"
	}
}

func run(args []string, fn func(*migration.Migrator) error) {
	_, dbType, dbURL := flags(args)
	m, err := openMigrator(*dbType, *dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	if err := fn(m); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func runStatus(m *migration.Migrator) error {
	statuses, err := m.Status()
	if err != nil {
		return err
	}
	for _, s := range statuses {
		state := "pending"
		switch {
		case s.Dirty:
			state = "dirty"
		case s.Applied:
			state = "applied"
		}
		fmt.Printf("%06d  %-40s  %s\n", s.Version, s.Name, state)
	}
	return nil
}

func runVersion(m *migration.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	fmt.Printf("version: %d (dirty: %t)\n", version, dirty)
	return nil
}

func runGoto(args []string) {
	fs, dbType, dbURL := flags(args)
	rest := fs.Args()
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "usage: migrate goto <version> [--db-type ...] [--db-url ...]")
		os.Exit(1)
	}
	version, err := strconv.ParseUint(rest[0], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid version: %v\n", err)
		os.Exit(1)
	}
	m, err := openMigrator(*dbType, *dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer m.Close()
	if err := m.Goto(uint(version)); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func runForce(args []string) {
	fs, dbType, dbURL := flags(args)
	rest := fs.Args()
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "usage: migrate force <version> [--db-type ...] [--db-url ...]")
		os.Exit(1)
	}
	version, err := strconv.Atoi(rest[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid version: %v\n", err)
		os.Exit(1)
	}
	m, err := openMigrator(*dbType, *dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer m.Close()
	if err := m.Force(version); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`migrate - apply neuroroute's database schema

Usage:
  migrate <command> [options]

Commands:
  up        Apply all pending migrations
  down      Roll back the last migration
  reset     Roll back all migrations
  status    Show migration status
  version   Show the current migration version
  goto      Migrate to a specific version
  force     Force-set the migration version (clears a dirty flag)
  help      Show this help message

Options:
  --db-type <type>   Database type: postgres, mysql, sqlite (default: inferred from --db-url)
  --db-url <url>     Database connection URL (default: DATABASE_URL env var)`)
}
