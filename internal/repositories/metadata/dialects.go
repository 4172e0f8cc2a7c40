package metadata

import "github.com/dmitrijs2005/gophenroll/internal/dbx"

var sqliteDialect = dialect{
	read:   `SELECT value FROM metadata WHERE key = ?`,
	upsert: `INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
}

var postgresDialect = dialect{
	read:   `SELECT value FROM metadata WHERE key = $1`,
	upsert: `INSERT INTO metadata (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
}

type SQLiteRepository struct{ kv }

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{kv{db: db, q: sqliteDialect}}
}

type PostgresRepository struct{ kv }

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{kv{db: db, q: postgresDialect}}
}
