package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE KV RECORDS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Opaque JSON documents keyed by record name.
CREATE TABLE IF NOT EXISTS kv_records (
    record_key TEXT PRIMARY KEY,
    record_value TEXT NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migration001Down = `
DROP TABLE IF EXISTS kv_records;
`

// Migrations returns the embedded migrations in version order.
func Migrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_kv_records",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
	}
}
