package kick

import (
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the TokenSet in a SQLite database. It honors the
// same Load/Save contract as FileStore for callers that already keep
// application state in a database. The single-writer assumption still
// applies.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteTokenSchema = `
CREATE TABLE IF NOT EXISTS token_set (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	access_token TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	expires_at INTEGER NOT NULL DEFAULT 0,
	scopes TEXT NOT NULL DEFAULT ''
);
`

// NewSQLiteStore opens (creating if needed) the database at path and
// ensures the token table exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteTokenSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads the persisted record; a missing row is reported as absent.
func (s *SQLiteStore) Load() (*TokenSet, error) {
	var ts TokenSet
	var scopes string
	err := s.db.QueryRow(
		`SELECT access_token, refresh_token, expires_at, scopes FROM token_set WHERE id = 1`,
	).Scan(&ts.AccessToken, &ts.RefreshToken, &ts.ExpiresAt, &scopes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ts.AccessToken == "" {
		return nil, nil
	}
	if scopes != "" {
		ts.Scopes = strings.Fields(scopes)
	}
	return &ts, nil
}

// Save replaces the persisted record wholesale.
func (s *SQLiteStore) Save(ts *TokenSet) error {
	_, err := s.db.Exec(
		`INSERT INTO token_set (id, access_token, refresh_token, expires_at, scopes)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			scopes = excluded.scopes`,
		ts.AccessToken, ts.RefreshToken, ts.ExpiresAt, strings.Join(ts.Scopes, " "),
	)
	return err
}
