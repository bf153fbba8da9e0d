package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"pantau/internal/models"
)

// SchemaStatements returns the idempotent DDL for every metric table.
func SchemaStatements() []string {
	statements := make([]string, 0, len(models.Metrics)*2)
	for _, m := range models.Metrics {
		cols := make([]string, 0, len(m.Fields()))
		for _, f := range m.Fields() {
			cols = append(cols, fmt.Sprintf("%s DOUBLE PRECISION NOT NULL DEFAULT 0", quoteIdent(f)))
		}
		statements = append(statements,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id BIGSERIAL PRIMARY KEY,
    %s,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`, quoteIdent(m.Table()), strings.Join(cols, ",\n    ")),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (created_at DESC);`,
				quoteIdent(m.Table()+"_created_at_idx"), quoteIdent(m.Table())),
		)
	}
	return statements
}

// InitializeTables creates the metric tables and their time indexes if missing.
func InitializeTables(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return ErrNotConfigured
	}
	for _, stmt := range SchemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initialize tables: %w", err)
		}
	}
	return nil
}
