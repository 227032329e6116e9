package relay

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/decryptor/internal/message"
)

const keySchemaSQL = `
CREATE TABLE IF NOT EXISTS keys (
	id         TEXT PRIMARY KEY,
	secret     TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// KeyStore persists the key list the agent hands to the relay.
type KeyStore interface {
	Load(ctx context.Context) (message.Keys, error)
	Replace(ctx context.Context, keys message.Keys) error
}

// KeyDB is a SQLite-backed KeyStore.
type KeyDB struct {
	conn *sql.DB
}

// Verify *KeyDB satisfies KeyStore at compile time.
var _ KeyStore = (*KeyDB)(nil)

// OpenKeyStore opens (or creates) the key database at dsn.
func OpenKeyStore(dsn string) (*KeyDB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("relay: open key db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("relay: ping key db: %w", err)
	}
	if _, err := conn.Exec(keySchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("relay: apply key schema: %w", err)
	}
	return &KeyDB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *KeyDB) Close() error {
	return db.conn.Close()
}

// Load returns every stored key.
func (db *KeyDB) Load(ctx context.Context) (message.Keys, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, secret FROM keys ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("relay: load keys: %w", err)
	}
	defer rows.Close()

	keys := make(message.Keys)
	for rows.Next() {
		var id, secret string
		if err := rows.Scan(&id, &secret); err != nil {
			return nil, fmt.Errorf("relay: scan key: %w", err)
		}
		keys[id] = secret
	}
	return keys, rows.Err()
}

// Replace swaps the stored key list for keys.
func (db *KeyDB) Replace(ctx context.Context, keys message.Keys) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("relay: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM keys`); err != nil {
		return fmt.Errorf("relay: clear keys: %w", err)
	}
	for id, secret := range keys {
		if _, err := tx.ExecContext(ctx, `INSERT INTO keys (id, secret) VALUES (?, ?)`, id, secret); err != nil {
			return fmt.Errorf("relay: insert key %q: %w", id, err)
		}
	}
	return tx.Commit()
}
