package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/logtap/errors"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// migration is one numbered schema file, e.g. 001_create_datasets.sql
type migration struct {
	version string
	file    string
}

// Migrate applies every embedded migration not yet recorded in
// schema_migrations, in version order, each in its own transaction.
// 000 creates schema_migrations itself and is the only migration allowed
// to run before that table exists.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) error {
	all, err := embeddedMigrations()
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range all {
		done, err := isApplied(db, m)
		if err != nil {
			return err
		}
		if done {
			continue
		}

		if logger != nil {
			logger.Infow("Applying migration", "migration", m.file, "version", m.version)
		}
		if err := apply(db, m); err != nil {
			return err
		}
		applied++
	}

	if logger != nil {
		logger.Debugw("Schema up to date", "applied", applied, "known", len(all))
	}
	return nil
}

func embeddedMigrations() ([]migration, error) {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	var all []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version, _, _ := strings.Cut(e.Name(), "_")
		all = append(all, migration{version: version, file: e.Name()})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].file < all[j].file })
	return all, nil
}

func isApplied(db *sql.DB, m migration) (bool, error) {
	var exists bool
	err := db.QueryRow(`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)`, m.version).Scan(&exists)
	if err == nil {
		return exists, nil
	}
	if m.version == "000" && !IsClosed(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "check %s", m.file)
}

func apply(db *sql.DB, m migration) error {
	body, err := migrations.ReadFile(path.Join(migrationsDir, m.file))
	if err != nil {
		return errors.Wrapf(err, "read %s", m.file)
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", m.file)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(body)); err != nil {
		return errors.Wrapf(err, "execute %s", m.file)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
		return errors.Wrapf(err, "record %s", m.file)
	}
	return errors.Wrapf(tx.Commit(), "commit %s", m.file)
}
