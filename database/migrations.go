package database

// migration represents a single database schema migration.
type migration struct {
	Version uint
	Query   string
}

// allMigrations holds all schema changes in order.
var allMigrations = []migration{
	{
		Version: 1,
		Query: `
-- Login looks users up by display name
CREATE INDEX IF NOT EXISTS idx_user_display_name ON user(display_name);
		`,
	},
	{
		Version: 2,
		Query: `
-- Track when a gift was unwrapped
ALTER TABLE post ADD COLUMN opened_at DATETIME;
UPDATE post SET opened_at = created_at WHERE is_opened = 1;
		`,
	},
}
