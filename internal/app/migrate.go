package app

import (
	"context"
	"fmt"

	"pantau/internal/storage"
)

// Migrate creates the sample tables and indexes in the configured database.
func (a *App) Migrate(ctx context.Context) error {
	if a.Config.Database.Driver != "postgres" {
		return fmt.Errorf("migrate requires database.driver=postgres, got %q", a.Config.Database.Driver)
	}

	db, closeDB, err := storage.OpenPostgres(ctx, a.Config.Database)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := storage.InitializeTables(ctx, db); err != nil {
		return err
	}
	a.Logger.Info().Int("statements", len(storage.SchemaStatements())).Msg("schema is up to date")
	return nil
}
