// Package migrations applies the badge service schema. Statements are
// idempotent so Apply can run on every boot.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS badge_states (
		token_id          TEXT PRIMARY KEY,
		owner_fid         TEXT NOT NULL DEFAULT '',
		base_image_cid    TEXT NOT NULL,
		current_image_cid TEXT NOT NULL,
		equipped_flair    JSONB NOT NULL DEFAULT '[]',
		version           BIGINT NOT NULL DEFAULT 1,
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS badge_states_owner_fid_idx ON badge_states (owner_fid)`,
	`CREATE INDEX IF NOT EXISTS badge_states_updated_at_idx ON badge_states (updated_at)`,
}

// Apply executes all schema statements in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
