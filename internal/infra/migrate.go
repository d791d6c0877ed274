package infra

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/mysql/*.sql
var migrationFS embed.FS

// Target selects which schema a migration run applies.
type Target string

const (
	TargetPostgres Target = "postgres"
	TargetMySQL    Target = "mysql"
)

// MigrateUp applies every pending migration for target and logs the schema
// version before and after.
func MigrateUp(target Target, dsn string, logger *slog.Logger) error {
	m, err := newMigrator(target, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	pre, _, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		pre = 0
	} else if err != nil {
		return fmt.Errorf("read %s schema version: %w", target, err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s up: %w", target, err)
	}

	post, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("read %s schema version: %w", target, err)
	}
	logger.Info("migration status",
		"target", string(target),
		"pre_migration_version", pre,
		"post_migration_version", post,
		"dirty", dirty,
	)
	return nil
}

func newMigrator(target Target, dsn string) (*migrate.Migrate, error) {
	url, err := migrationURL(target, dsn)
	if err != nil {
		return nil, err
	}
	src, err := iofs.New(migrationFS, "migrations/"+string(target))
	if err != nil {
		return nil, fmt.Errorf("open %s migrations: %w", target, err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return nil, fmt.Errorf("init %s migrator: %w", target, err)
	}
	return m, nil
}

// migrationURL rewrites an application DSN into the scheme the migrate
// database drivers register.
func migrationURL(target Target, dsn string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("%s dsn is required", target)
	}
	switch target {
	case TargetPostgres:
		for _, prefix := range []string{"postgres://", "postgresql://"} {
			if strings.HasPrefix(dsn, prefix) {
				return "pgx5://" + strings.TrimPrefix(dsn, prefix), nil
			}
		}
		if strings.HasPrefix(dsn, "pgx5://") {
			return dsn, nil
		}
		return "", fmt.Errorf("unsupported postgres dsn scheme")
	case TargetMySQL:
		if strings.HasPrefix(dsn, "mysql://") {
			return dsn, nil
		}
		return "mysql://" + dsn, nil
	default:
		return "", fmt.Errorf("unknown migration target %q", target)
	}
}
