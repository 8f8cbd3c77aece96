package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/alumnium-hq/alumnium/pkg/llms"
)

// Store persists committed cache entries in a sqlite file shared by all
// sessions. Keys already encode the model and full prompt, so entries are
// reusable across sessions and process restarts.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and migrates) the sqlite file at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache store: %w", err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS responses (
			key        TEXT PRIMARY KEY,
			response   BLOB NOT NULL,
			created_at INTEGER NOT NULL
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating cache store: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the stored response for a key, or nil when absent.
func (s *Store) Get(key string) (*llms.Response, error) {
	var blob []byte
	err := s.db.QueryRow(`SELECT response FROM responses WHERE key = ?`, key).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}
	var resp llms.Response
	if err := json.Unmarshal(blob, &resp); err != nil {
		return nil, fmt.Errorf("decoding cache entry: %w", err)
	}
	return &resp, nil
}

// Put upserts a response under a key.
func (s *Store) Put(key string, resp *llms.Response) error {
	blob, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO responses (key, response, created_at) VALUES (?, ?, ?)`,
		key, blob, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
