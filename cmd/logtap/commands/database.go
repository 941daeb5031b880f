package commands

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/teranos/logtap/am"
	"github.com/teranos/logtap/blobstore"
	"github.com/teranos/logtap/db"
	"github.com/teranos/logtap/errors"
	"github.com/teranos/logtap/logger"
)

// loadConfig reads --config if given, otherwise the usual config cascade
func loadConfig(cmd *cobra.Command) (*am.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return am.LoadFromFile(path)
	}
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	return cfg, nil
}

// openStore opens and migrates the dataset database named by database.path.
// The caller closes the returned database.
func openStore(cfg *am.Config) (*blobstore.Store, *sql.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = "logtap.db"
	}

	database, err := db.OpenWithMigrations(dbPath, logger.Logger.Named("db"))
	if err != nil {
		return nil, nil, errors.WithHint(
			errors.Wrapf(err, "failed to open database at %s", dbPath),
			"Set database.path in am.toml or LOGTAP_DATABASE_PATH",
		)
	}
	return blobstore.NewStore(database, cfg.Scanner.StreamChunkSize), database, nil
}
